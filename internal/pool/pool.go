package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error kinds surfaced to dispensers, matching the service's documented
// error taxonomy.
var (
	ErrStoreUnavailable = errors.New("pool: store unavailable")
	ErrPoolEmpty        = errors.New("pool: no entropy available")
	ErrPartialPool      = errors.New("pool: insufficient entropy available")
)

const (
	keyBlockPrefix  = "entropy:block:"
	keyUsedPrefix   = "entropy:used:"
	keyBlockIDs     = "entropy:block_ids"
	keyStatsAdded   = "entropy:stats:blocks_added"
	keyStatsTaken   = "entropy:stats:blocks_taken"
	keyStatsBytes   = "entropy:stats:bytes_served"
	keyStatsRejects = "entropy:stats:validation_rejects"
)

// block is the JSON envelope persisted for each entropy block.
type block struct {
	ID           string    `json:"id"`
	Payload      []byte    `json:"payload"`
	QualityScore float64   `json:"quality_score"`
	Size         int       `json:"size"`
	Timestamp    time.Time `json:"timestamp"`
	SourceInfo   string    `json:"source_info"`
}

// Stats is a point-in-time, sampled-and-extrapolated snapshot of pool
// contents plus the lifetime atomic counters.
type Stats struct {
	AvailableBlocks  int
	AvailableBytes   int64
	BlocksAdded      int64
	BlocksTaken      int64
	BytesServed      int64
	ValidationRejects int64
}

// EntropyPool is the Redis-backed entropy block store described by the
// pool's component design: TTL'd blocks, atomic at-most-once claim, and
// atomic per-field statistics.
type EntropyPool struct {
	store             Store
	ttl               time.Duration
	sampleSize        int
	reinsertRemainder bool
}

// New returns an EntropyPool backed by store.
func New(store Store, ttl time.Duration, sampleSize int) *EntropyPool {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	return &EntropyPool{store: store, ttl: ttl, sampleSize: sampleSize}
}

// SetReinsertRemainder controls whether Take pushes the unused tail of the
// last block it consumes back into the pool as a fresh block, instead of
// discarding it. Enabling this lets requests smaller than the block size
// drain a pool down to zero byte waste at the cost of one extra Add per
// Take that doesn't land on an exact block boundary.
func (p *EntropyPool) SetReinsertRemainder(enabled bool) {
	p.reinsertRemainder = enabled
}

// Add admits a validated, conditioned block into the pool.
func (p *EntropyPool) Add(ctx context.Context, payload []byte, qualityScore float64, sourceInfo string) error {
	id := uuid.New().String()
	b := block{
		ID:           id,
		Payload:      payload,
		QualityScore: qualityScore,
		Size:         len(payload),
		Timestamp:    time.Now(),
		SourceInfo:   sourceInfo,
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("pool: marshal block: %w", err)
	}

	blockKey := keyBlockPrefix + id
	if err := p.store.SetWithTTL(ctx, blockKey, data, p.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := p.store.SIndexAdd(ctx, keyBlockIDs, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = p.store.IncrBy(ctx, keyStatsAdded, 1)
	return nil
}

// Take returns exactly n bytes of entropy, atomically removing each
// contributing block from the pool as it is consumed. It returns
// ErrPoolEmpty if nothing is available and ErrPartialPool if fewer than n
// bytes could be assembled from the blocks currently present.
func (p *EntropyPool) Take(ctx context.Context, n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("pool: invalid request size %d", n)
	}

	candidates, err := p.store.SIndexMembers(ctx, keyBlockIDs, p.sampleSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(candidates) == 0 {
		return nil, ErrPoolEmpty
	}

	out := make([]byte, 0, n)
	var lastBlock block
	for _, id := range candidates {
		if len(out) >= n {
			break
		}
		blockKey := keyBlockPrefix + id
		usedKey := keyUsedPrefix + id

		data, err := p.store.Claim(ctx, blockKey, usedKey, p.ttl)
		_ = p.store.SIndexRem(ctx, keyBlockIDs, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		var b block
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}

		out = append(out, b.Payload...)
		lastBlock = b
		_ = p.store.IncrBy(ctx, keyStatsTaken, 1)
	}

	if len(out) == 0 {
		return nil, ErrPoolEmpty
	}
	if len(out) < n {
		// Claimed blocks are discarded rather than returned: the upstream
		// source is non-secret, so this is acceptable leakage, and partial
		// delivery would violate the exact-length contract of Take.
		return nil, fmt.Errorf("%w: have %d want %d", ErrPartialPool, len(out), n)
	}

	if overflow := len(out) - n; overflow > 0 && p.reinsertRemainder && overflow <= len(lastBlock.Payload) {
		remainder := make([]byte, overflow)
		copy(remainder, lastBlock.Payload[len(lastBlock.Payload)-overflow:])
		_ = p.Add(ctx, remainder, lastBlock.QualityScore, lastBlock.SourceInfo)
	}

	_ = p.store.IncrBy(ctx, keyStatsBytes, int64(n))
	return out[:n], nil
}

// RecordValidationReject increments the lifetime validation-reject counter.
// It is advisory: a failure here never blocks the refill loop.
func (p *EntropyPool) RecordValidationReject(ctx context.Context) {
	_ = p.store.IncrBy(ctx, keyStatsRejects, 1)
}

// Stats samples up to sampleSize blocks to estimate available bytes, then
// extrapolates linearly across the full candidate set, merging in the
// lifetime atomic counters.
func (p *EntropyPool) Stats(ctx context.Context) (Stats, error) {
	ids, err := p.store.SIndexMembers(ctx, keyBlockIDs, p.sampleSize)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	allIDs, err := p.store.Keys(ctx, keyBlockPrefix+"*")
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	total := len(allIDs)

	var sampledBytes int64
	sampled := 0
	for _, id := range ids {
		data, err := p.store.Get(ctx, keyBlockPrefix+id)
		if err != nil {
			continue
		}
		var b block
		if err := json.Unmarshal(data, &b); err != nil {
			continue
		}
		sampledBytes += int64(b.Size)
		sampled++
	}

	var availableBytes int64
	if sampled > 0 {
		avgSize := float64(sampledBytes) / float64(sampled)
		availableBytes = int64(avgSize * float64(total))
	}

	counters, err := p.store.GetCounters(ctx, keyStatsAdded, keyStatsTaken, keyStatsBytes, keyStatsRejects)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return Stats{
		AvailableBlocks:   total,
		AvailableBytes:    availableBytes,
		BlocksAdded:       counters[keyStatsAdded],
		BlocksTaken:       counters[keyStatsTaken],
		BytesServed:       counters[keyStatsBytes],
		ValidationRejects: counters[keyStatsRejects],
	}, nil
}

// Clear removes all blocks, used-markers, and the block-id index. Lifetime
// counters are intentionally preserved.
func (p *EntropyPool) Clear(ctx context.Context) error {
	if err := p.store.FlushPattern(ctx, keyBlockPrefix+"*"); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := p.store.FlushPattern(ctx, keyUsedPrefix+"*"); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := p.store.FlushPattern(ctx, keyBlockIDs); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Health reports whether the store is reachable. It does not look at how
// many blocks are available; Stats reports that.
func (p *EntropyPool) Health(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
