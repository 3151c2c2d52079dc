package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *EntropyPool {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	return New(store, time.Hour, 100)
}

func TestAddThenTakeReturnsExactBytes(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, []byte("01234567"), 0.9, "test"))

	got, err := p.Take(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("01234567"), got)
}

func TestTakeOnEmptyPoolReturnsErrPoolEmpty(t *testing.T) {
	p := newTestPool(t)
	_, err := p.Take(context.Background(), 16)
	require.ErrorIs(t, err, ErrPoolEmpty)
}

func TestTakeAcrossMultipleBlocksConcatenates(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, []byte("aaaa"), 0.9, "test"))
	require.NoError(t, p.Add(ctx, []byte("bbbb"), 0.9, "test"))

	got, err := p.Take(ctx, 8)
	require.NoError(t, err)
	require.Len(t, got, 8)
}

func TestTakeZeroReturnsEmptySuccess(t *testing.T) {
	p := newTestPool(t)
	got, err := p.Take(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []byte{}, got)
}

func TestTakeNegativeReturnsError(t *testing.T) {
	p := newTestPool(t)
	_, err := p.Take(context.Background(), -1)
	require.Error(t, err)
}

func TestTakeMoreThanAvailableDiscardsClaimedBytes(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, []byte("aaaa"), 0.9, "test"))

	got, err := p.Take(ctx, 16)
	require.ErrorIs(t, err, ErrPartialPool)
	require.Nil(t, got)
}

// TestTakeReinsertsRemainderWhenEnabled exercises the reinsert-remainder
// policy: ten 4096-byte blocks should serve exactly eighty 512-byte Takes
// with zero bytes wasted, since the unused tail of each partially consumed
// block is pushed back into the pool as a fresh block.
func TestTakeReinsertsRemainderWhenEnabled(t *testing.T) {
	p := newTestPool(t)
	p.SetReinsertRemainder(true)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		payload := make([]byte, 4096)
		for j := range payload {
			payload[j] = byte(i)
		}
		require.NoError(t, p.Add(ctx, payload, 0.9, "test"))
	}

	var served int
	for i := 0; i < 80; i++ {
		got, err := p.Take(ctx, 512)
		require.NoError(t, err)
		require.Len(t, got, 512)
		served += len(got)
	}
	require.Equal(t, 10*4096, served)

	_, err := p.Take(ctx, 1)
	require.ErrorIs(t, err, ErrPoolEmpty)
}

// TestConcurrentTakeNeverDoubleSpendsABlock exercises the atomic claim
// primitive: many goroutines race to drain a pool seeded with a known
// number of single-byte blocks, and the total bytes served must equal
// exactly the number of blocks added, never more.
func TestConcurrentTakeNeverDoubleSpendsABlock(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	const blocks = 50
	for i := 0; i < blocks; i++ {
		require.NoError(t, p.Add(ctx, []byte{byte(i)}, 0.9, "test"))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		totalBytes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := p.Take(ctx, 1)
				if errors.Is(err, ErrPoolEmpty) {
					return
				}
				if err != nil && !errors.Is(err, ErrPartialPool) {
					return
				}
				mu.Lock()
				totalBytes += len(got)
				mu.Unlock()
				if len(got) == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, blocks, totalBytes)
}

func TestStatsReflectsAddedBlocks(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, []byte("0123456789"), 0.9, "test"))
	require.NoError(t, p.Add(ctx, []byte("0123456789"), 0.9, "test"))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.AvailableBlocks)
	require.EqualValues(t, 2, stats.BlocksAdded)
}

func TestClearRemovesBlocksButKeepsCounters(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, []byte("x"), 0.9, "test"))
	require.NoError(t, p.Clear(ctx))

	_, err := p.Take(ctx, 1)
	require.ErrorIs(t, err, ErrPoolEmpty)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.BlocksAdded)
}

func TestHealthReportsStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	p := New(store, time.Hour, 100)

	require.NoError(t, p.Health(context.Background()))

	mr.Close()
	require.ErrorIs(t, p.Health(context.Background()), ErrStoreUnavailable)
}
