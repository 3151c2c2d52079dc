package frames

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kenneth/solar-entropy-pool/internal/blob"
	"github.com/kenneth/solar-entropy-pool/internal/config"
	"github.com/kenneth/solar-entropy-pool/internal/extractor"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func frameAt(source string, at time.Time) extractor.Frame {
	return extractor.Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 1, 1)),
		Source:    source,
		FetchedAt: at,
	}
}

func jpegServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(buf.Bytes())
	}))
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func TestSDOSourceFetchLatestDecodesImages(t *testing.T) {
	srv := jpegServer(t)
	defer srv.Close()

	cfg := config.FrameSourceConfig{
		URLs:            []string{srv.URL, srv.URL},
		FetchTimeout:    5 * time.Second,
		MaxStoredFrames: 10,
	}
	src := NewSDOSource(cfg, nil, newTestLogger())

	frames, err := src.FetchLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	for _, f := range frames {
		require.NotNil(t, f.Image)
		require.Equal(t, srv.URL, f.Source)
	}
}

func TestSDOSourceFetchLatestPartialFailure(t *testing.T) {
	ok := jpegServer(t)
	defer ok.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cfg := config.FrameSourceConfig{
		URLs:            []string{ok.URL, bad.URL},
		FetchTimeout:    5 * time.Second,
		MaxStoredFrames: 10,
	}
	src := NewSDOSource(cfg, nil, newTestLogger())

	frames, err := src.FetchLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, ok.URL, frames[0].Source)
}

func TestSDOSourceFetchLatestAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cfg := config.FrameSourceConfig{
		URLs:            []string{bad.URL},
		FetchTimeout:    5 * time.Second,
		MaxStoredFrames: 10,
	}
	src := NewSDOSource(cfg, nil, newTestLogger())

	frames, err := src.FetchLatest(context.Background())
	require.Error(t, err)
	require.Nil(t, frames)
}

func TestSDOSourceStoredReflectsCache(t *testing.T) {
	srv := jpegServer(t)
	defer srv.Close()

	cfg := config.FrameSourceConfig{
		URLs:            []string{srv.URL},
		FetchTimeout:    5 * time.Second,
		MaxStoredFrames: 10,
	}
	src := NewSDOSource(cfg, nil, newTestLogger())

	_, err := src.FetchLatest(context.Background())
	require.NoError(t, err)

	refs := src.Stored()
	require.Len(t, refs, 1)
	require.Equal(t, srv.URL, refs[0].Source)
}

func TestSDOSourceArchivesRawBytesWhenConfigured(t *testing.T) {
	srv := jpegServer(t)
	defer srv.Close()

	arch, err := blob.NewLocalArchiver(t.TempDir())
	require.NoError(t, err)

	cfg := config.FrameSourceConfig{
		URLs:            []string{srv.URL},
		FetchTimeout:    5 * time.Second,
		MaxStoredFrames: 10,
	}
	src := NewSDOSource(cfg, arch, newTestLogger())

	_, err = src.FetchLatest(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(arch.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Add(frameAt("a", time.Unix(1, 0)))
	c.Add(frameAt("b", time.Unix(2, 0)))
	c.Add(frameAt("c", time.Unix(3, 0)))

	refs := c.Refs()
	require.Len(t, refs, 2)
	require.Equal(t, "b", refs[0].Source)
	require.Equal(t, "c", refs[1].Source)
}
