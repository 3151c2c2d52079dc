package frames

import (
	"sync"

	"github.com/kenneth/solar-entropy-pool/internal/extractor"
)

// Cache retains the most recently fetched frames, evicting the oldest once
// a configured capacity is reached — mirroring the original ingestion
// manager's retention-with-cleanup behavior, but in memory rather than on
// disk.
type Cache struct {
	mu       sync.Mutex
	frames   []extractor.Frame
	capacity int
}

// NewCache returns a Cache retaining up to capacity frames.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 10
	}
	return &Cache{capacity: capacity}
}

// Add inserts a frame, evicting the oldest entry if the cache is full.
func (c *Cache) Add(f extractor.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, f)
	if len(c.frames) > c.capacity {
		c.frames = c.frames[len(c.frames)-c.capacity:]
	}
}

// All returns a copy of the currently retained frames, oldest first.
func (c *Cache) All() []extractor.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]extractor.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Refs returns FrameRef diagnostics for every retained frame.
func (c *Cache) Refs() []FrameRef {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs := make([]FrameRef, len(c.frames))
	for i, f := range c.frames {
		refs[i] = FrameRef{Source: f.Source, FetchedAt: f.FetchedAt}
	}
	return refs
}
