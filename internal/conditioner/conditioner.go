// Package conditioner whitens raw noise samples into fixed-size entropy
// blocks via multi-round hashing, timestamp mixing, and hash chaining.
package conditioner

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lukechampine.com/blake3"
)

// ErrEmptyInput is returned when Condition is given no raw noise bytes.
var ErrEmptyInput = errors.New("conditioner: empty input")

const minChunkSize = 1024

// Conditioner carries a running chaining value across successive calls,
// so output blocks form a hash chain. Condition and Reset hold an internal
// mutex, so concurrent calls on one instance run one after another and
// share a single chain.
type Conditioner struct {
	mu      sync.Mutex
	chain   [32]byte
	nonce   uint64
	rounds  int
}

// New returns a Conditioner with a zeroed initial chaining value.
func New() *Conditioner {
	return &Conditioner{rounds: 3}
}

// Reset zeroes the chaining value, starting a fresh chain.
func (c *Conditioner) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain = [32]byte{}
}

// Condition splits raw into floor(len(raw)/chunkSize) chunks, where
// chunkSize is max(blockSize, 1024), whitens each through multiRoundHash,
// mixes in a timestamp, chains it to the previous block, and expands it to
// exactly blockSize bytes via BLAKE3's XOF. Any trailing remainder shorter
// than chunkSize is discarded rather than padded with attacker-predictable
// bytes. Input no longer than chunkSize yields one block from the whole
// buffer.
func (c *Conditioner) Condition(raw []byte, blockSize int) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}
	if blockSize <= 0 {
		blockSize = 32
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chunkSize := blockSize
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}

	if len(raw) <= chunkSize {
		whitened := c.multiRoundHash(raw)
		timestamped := c.hashWithTimestamp(whitened)
		chained := c.hashChain(timestamped)
		return [][]byte{extendToSize(chained, blockSize)}, nil
	}

	nChunks := len(raw) / chunkSize
	blocks := make([][]byte, 0, nChunks)
	for i := 0; i < nChunks; i++ {
		off := i * chunkSize
		chunk := raw[off : off+chunkSize]
		whitened := c.multiRoundHash(chunk)
		timestamped := c.hashWithTimestamp(whitened)
		chained := c.hashChain(timestamped)
		blocks = append(blocks, extendToSize(chained, blockSize))
	}
	return blocks, nil
}

// multiRoundHash alternates BLAKE3 and SHA-256 across rounds so that
// breaking one primitive alone does not compromise the whitening.
func (c *Conditioner) multiRoundHash(data []byte) []byte {
	cur := data
	for round := 0; round < c.rounds; round++ {
		if round%2 == 0 {
			sum := blake3.Sum256(cur)
			cur = sum[:]
		} else {
			sum := sha256.Sum256(cur)
			cur = sum[:]
		}
	}
	return cur
}

// hashWithTimestamp mixes in microseconds-since-epoch plus a monotonic
// per-instance nonce, so two chunks processed within the same microsecond
// still produce distinct digests.
func (c *Conditioner) hashWithTimestamp(digest []byte) []byte {
	n := atomic.AddUint64(&c.nonce, 1)

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(time.Now().UnixMicro()))
	binary.BigEndian.PutUint64(buf[8:16], n)

	h := blake3.New(32, nil)
	h.Write(digest)
	h.Write(buf[:])
	return h.Sum(nil)
}

// hashChain prepends the current chaining value to digest, hashes, and
// advances the chain to the result.
func (c *Conditioner) hashChain(digest []byte) []byte {
	h := blake3.New(32, nil)
	h.Write(c.chain[:])
	h.Write(digest)
	out := h.Sum(nil)
	copy(c.chain[:], out)
	return out
}

// extendToSize expands a digest to targetSize bytes using BLAKE3's
// extensible-output mode, keyed implicitly by the digest itself.
func extendToSize(digest []byte, targetSize int) []byte {
	h := blake3.New(32, nil)
	h.Write(digest)
	out := make([]byte, targetSize)
	xof := h.XOF()
	if _, err := xof.Read(out); err != nil {
		// blake3's XOF reader never returns an error for a well-formed
		// destination buffer; treat it as unreachable.
		panic("conditioner: blake3 xof read failed: " + err.Error())
	}
	return out
}

// MixSources combines several independent noise sources without reducing
// entropy: each source is independently extended to the longest source's
// length, XOR-folded together, and the fold is run through one final
// BLAKE3 hash so no single source's structure survives into the output.
func MixSources(sources [][]byte) []byte {
	maxLen := 0
	for _, s := range sources {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	if maxLen == 0 {
		return nil
	}

	fold := make([]byte, maxLen)
	for _, s := range sources {
		ext := extendToSize(s, maxLen)
		for i, b := range ext {
			fold[i] ^= b
		}
	}

	sum := blake3.Sum256(fold)
	return sum[:]
}
