package frames

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kenneth/solar-entropy-pool/internal/blob"
	"github.com/kenneth/solar-entropy-pool/internal/config"
	"github.com/kenneth/solar-entropy-pool/internal/debug"
	"github.com/kenneth/solar-entropy-pool/internal/extractor"
	"github.com/sirupsen/logrus"
)

// SDOSource fetches solar imagery from NASA's Solar Dynamics Observatory
// HTTP feed. Each configured URL is fetched concurrently and decoded as a
// JPEG frame.
type SDOSource struct {
	urls     []string
	client   *http.Client
	cache    *Cache
	archiver blob.Archiver
	logger   *logrus.Logger
}

// NewSDOSource builds an SDOSource from frame-ingestion configuration.
// archiver may be nil, in which case raw frames are not persisted beyond
// the in-memory cache.
func NewSDOSource(cfg config.FrameSourceConfig, archiver blob.Archiver, logger *logrus.Logger) *SDOSource {
	return &SDOSource{
		urls:     cfg.URLs,
		client:   &http.Client{Timeout: cfg.FetchTimeout},
		cache:    NewCache(cfg.MaxStoredFrames),
		archiver: archiver,
		logger:   logger,
	}
}

// FetchLatest fetches every configured URL concurrently, decodes each
// response as an image, and retains successfully decoded frames in the
// cache. A failure on one URL does not prevent the others from being
// fetched.
func (s *SDOSource) FetchLatest(ctx context.Context) ([]extractor.Frame, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		frames []extractor.Frame
	)

	for _, url := range s.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			frame, err := s.fetchOne(ctx, url)
			if err != nil {
				s.logger.WithError(err).WithField("url", url).Warn("frame fetch failed")
				return
			}
			mu.Lock()
			frames = append(frames, frame)
			mu.Unlock()
		}(url)
	}
	wg.Wait()

	for _, f := range frames {
		s.cache.Add(f)
	}

	if len(frames) == 0 && len(s.urls) > 0 {
		return nil, fmt.Errorf("fetch latest frames: all %d sources failed", len(s.urls))
	}
	return frames, nil
}

func (s *SDOSource) fetchOne(ctx context.Context, url string) (extractor.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return extractor.Frame{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return extractor.Frame{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return extractor.Frame{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return extractor.Frame{}, fmt.Errorf("read body %s: %w", url, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return extractor.Frame{}, fmt.Errorf("decode %s: %w", url, err)
	}

	if debug.Enabled() {
		bounds := img.Bounds()
		s.logger.WithFields(logrus.Fields{
			"url":         url,
			"raw_bytes":   len(raw),
			"decoded_dim": fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		}).Debug("fetched solar imagery frame")
	}

	if s.archiver != nil {
		if _, err := s.archiver.Store(ctx, url, raw); err != nil {
			s.logger.WithError(err).WithField("url", url).Warn("frame archival failed")
		}
	}

	return extractor.Frame{
		Image:     img,
		Source:    url,
		FetchedAt: time.Now(),
	}, nil
}

// Stored returns references to the frames retained in the local cache.
func (s *SDOSource) Stored() []FrameRef {
	return s.cache.Refs()
}
