// Package extractor derives raw noise bytes from solar imagery frames using
// channel-wise Laplacian noise, FFT high-pass filtering, Sobel gradient
// magnitude, and random-region sampling. None of these signals are
// XOR-mixed together — concatenation preserves more entropy than folding.
package extractor

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrDecodeFailed is returned when a frame's image cannot be processed.
var ErrDecodeFailed = errors.New("extractor: frame decode failed")

// Frame is one fetched image plus its provenance.
type Frame struct {
	Image     image.Image
	Source    string
	FetchedAt time.Time
}

// Config controls the noise-extraction parameters.
type Config struct {
	CutoffRatio   float64
	RandomRegions int
	RegionSize    int
}

// Extractor turns a Frame into raw noise bytes.
type Extractor interface {
	Extract(ctx context.Context, f Frame) ([]byte, error)
}

type extractor struct {
	cfg Config
}

// New returns an Extractor using the given configuration.
func New(cfg Config) Extractor {
	if cfg.CutoffRatio <= 0 {
		cfg.CutoffRatio = 0.8
	}
	if cfg.RandomRegions <= 0 {
		cfg.RandomRegions = 5
	}
	if cfg.RegionSize <= 0 {
		cfg.RegionSize = 32
	}
	return &extractor{cfg: cfg}
}

// Extract concatenates, in order: per-channel Laplacian noise, an FFT
// high-pass filter applied to the grayscale image, Sobel gradient
// magnitude, and RandomRegions samples of RegionSize x RegionSize Laplacian
// noise from non-deterministic locations.
func (e *extractor) Extract(ctx context.Context, f Frame) ([]byte, error) {
	if f.Image == nil {
		return nil, ErrDecodeFailed
	}

	bounds := f.Image.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, ErrDecodeFailed
	}

	channels := splitChannels(f.Image)
	gray := toGrayscale(f.Image)

	var out []byte
	for _, c := range channels {
		out = append(out, laplacianNoise(c)...)
	}

	out = append(out, fftHighPass(gray, e.cfg.CutoffRatio)...)
	out = append(out, sobelGradient(gray)...)

	seed := regionSeed(f)
	out = append(out, sampleRandomRegions(gray, e.cfg.RandomRegions, e.cfg.RegionSize, seed)...)

	if len(out) == 0 {
		return nil, ErrDecodeFailed
	}
	return out, nil
}
