// Package config loads and hot-reloads the pool's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AppConfig holds general process settings.
type AppConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	RoutePrefix        string `yaml:"route_prefix"`
	DefaultRandomBytes int    `yaml:"default_random_bytes"`
	MaxBytesPerRequest int    `yaml:"max_bytes_per_request"`
}

// RedisConfig holds the pool store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PoolConfig holds entropy pool sizing and policy settings.
type PoolConfig struct {
	BlockSize         int           `yaml:"block_size"`
	EntropyTTL        time.Duration `yaml:"entropy_ttl"`
	LowWaterMarkBytes int64         `yaml:"low_water_mark_bytes"`
	ReinsertRemainder bool          `yaml:"reinsert_remainder"`
	MaxFramesPerCycle int           `yaml:"max_frames_per_cycle"`
	RefillInterval    time.Duration `yaml:"refill_interval"`
	StatsSampleSize   int           `yaml:"stats_sample_size"`
}

// ValidatorConfig holds acceptance thresholds for conditioned blocks.
type ValidatorConfig struct {
	MinShannonEntropy float64 `yaml:"min_shannon_entropy"`
	MinQualityScore   float64 `yaml:"min_quality_score"`
}

// FrameSourceConfig holds image-ingestion settings.
type FrameSourceConfig struct {
	URLs            []string      `yaml:"urls"`
	FetchInterval   time.Duration `yaml:"fetch_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxStoredFrames int           `yaml:"max_stored_frames"`
}

// ExtractorConfig holds noise-extraction parameters.
type ExtractorConfig struct {
	CutoffRatio   float64 `yaml:"cutoff_ratio"`
	RandomRegions int     `yaml:"random_regions"`
	RegionSize    int     `yaml:"region_size"`
}

// ArchiveConfig holds optional frame-archival settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// AuditSinkConfig describes where audit events are written.
type AuditSinkConfig struct {
	Type          string            `yaml:"type"` // "stdout", "file", "http"
	FilePath      string            `yaml:"file_path"`
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// AuditConfig holds pool-operation audit logging settings.
type AuditConfig struct {
	Enabled             bool            `yaml:"enabled"`
	MaxEvents           int             `yaml:"max_events"`
	RedactMetadataKeys  []string        `yaml:"redact_metadata_keys"`
	Sink                AuditSinkConfig `yaml:"sink"`
}

// HardwareConfig holds CPU feature-acceleration reporting toggles.
type HardwareConfig struct {
	ReportAVX2 bool `yaml:"report_avx2"`
	ReportNEON bool `yaml:"report_neon"`
}

// Config is the complete process configuration.
type Config struct {
	App       AppConfig         `yaml:"app"`
	API       APIConfig         `yaml:"api"`
	Redis     RedisConfig       `yaml:"redis"`
	Pool      PoolConfig        `yaml:"pool"`
	Validator ValidatorConfig   `yaml:"validator"`
	Frames    FrameSourceConfig `yaml:"frames"`
	Extractor ExtractorConfig   `yaml:"extractor"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Audit     AuditConfig       `yaml:"audit"`
	Hardware  HardwareConfig    `yaml:"hardware"`
}

// Default returns the configuration defaults matching the service's
// documented baseline behavior.
func Default() Config {
	return Config{
		App: AppConfig{Name: "solar-entropy-pool", LogLevel: "info"},
		API: APIConfig{
			ListenAddr:         ":8080",
			RoutePrefix:        "/api/v1",
			DefaultRandomBytes: 256,
			MaxBytesPerRequest: 10240,
		},
		Redis: RedisConfig{Addr: "localhost:6379", DB: 0},
		Pool: PoolConfig{
			BlockSize:         4096,
			EntropyTTL:        time.Hour,
			LowWaterMarkBytes: 1048576,
			ReinsertRemainder: false,
			MaxFramesPerCycle: 1,
			RefillInterval:    30 * time.Second,
			StatsSampleSize:   100,
		},
		Validator: ValidatorConfig{
			MinShannonEntropy: 7.8,
			MinQualityScore:   0.75,
		},
		Frames: FrameSourceConfig{
			FetchInterval:   5 * time.Minute,
			FetchTimeout:    30 * time.Second,
			MaxStoredFrames: 10,
		},
		Extractor: ExtractorConfig{
			CutoffRatio:   0.8,
			RandomRegions: 5,
			RegionSize:    32,
		},
		Archive: ArchiveConfig{Enabled: false, Dir: "./archive"},
		Audit: AuditConfig{
			Enabled:   true,
			MaxEvents: 1000,
			Sink:      AuditSinkConfig{Type: "stdout"},
		},
		Hardware: HardwareConfig{ReportAVX2: true, ReportNEON: true},
	}
}

// Load reads a YAML config file over the defaults and applies known
// environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("POOL_BLOCK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.BlockSize = n
		}
	}
}

// Watcher hot-reloads a config file, keeping the previous good configuration
// in place when a reload fails. It watches the file's parent directory
// rather than the file itself, since editors and orchestrators commonly
// replace config files via rename rather than in-place write.
type Watcher struct {
	mu     sync.RWMutex
	cur    Config
	path   string
	logger *logrus.Logger
	fsw    *fsnotify.Watcher
	onLoad func(Config)
}

// NewWatcher loads the initial configuration and starts watching its
// directory for changes.
func NewWatcher(path string, logger *logrus.Logger, onLoad func(Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	w := &Watcher{cur: cfg, path: path, logger: logger, fsw: fsw, onLoad: onLoad}
	go w.watchLoop()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WithError(err).Warn("config reload failed, keeping previous configuration")
				continue
			}
			w.mu.Lock()
			w.cur = cfg
			w.mu.Unlock()
			w.logger.Info("configuration reloaded")
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}
