// Package frames fetches solar imagery frames from an external source and
// retains the most recent ones for the refill loop to consume.
package frames

import (
	"context"
	"time"

	"github.com/kenneth/solar-entropy-pool/internal/extractor"
)

// FrameRef identifies a stored frame without its pixel data, for
// diagnostics and stats.
type FrameRef struct {
	Source    string
	FetchedAt time.Time
}

// Source fetches frames from an external imagery provider. Implementations
// must never block indefinitely — ctx governs the fetch timeout.
//
// Current implementations:
//   - SDOSource: NASA Solar Dynamics Observatory HTTP imagery feed
//
// Planned implementations:
//   - Local filesystem replay source, for offline testing against a corpus
//     of previously captured frames.
type Source interface {
	// FetchLatest retrieves the newest available frames.
	FetchLatest(ctx context.Context) ([]extractor.Frame, error)

	// Stored returns references to frames retained in the local cache.
	Stored() []FrameRef
}
