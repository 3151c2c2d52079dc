// Package refill drives the pipeline that keeps the entropy pool above its
// low-water mark: fetch frames from the frame source, extract noise,
// condition it into blocks, validate, and admit passing blocks into the pool.
package refill

import (
	"context"
	"time"

	"github.com/kenneth/solar-entropy-pool/internal/audit"
	"github.com/kenneth/solar-entropy-pool/internal/conditioner"
	"github.com/kenneth/solar-entropy-pool/internal/config"
	"github.com/kenneth/solar-entropy-pool/internal/extractor"
	"github.com/kenneth/solar-entropy-pool/internal/frames"
	"github.com/kenneth/solar-entropy-pool/internal/metrics"
	"github.com/kenneth/solar-entropy-pool/internal/pool"
	"github.com/kenneth/solar-entropy-pool/internal/validator"
	"github.com/sirupsen/logrus"
)

// Loop periodically checks the pool's fill level and, when it drops below
// the configured low-water mark, drives frames through the extractor,
// conditioner, and validator until the pool recovers or the available
// frames are exhausted.
type Loop struct {
	pool        *pool.EntropyPool
	source      frames.Source
	extractor   extractor.Extractor
	conditioner *conditioner.Conditioner
	validator   *validator.Validator
	cfg         config.PoolConfig
	metrics     *metrics.Metrics
	audit       audit.Logger
	logger      *logrus.Logger
}

// New builds a Loop from its collaborators.
func New(
	p *pool.EntropyPool,
	source frames.Source,
	ext extractor.Extractor,
	cond *conditioner.Conditioner,
	val *validator.Validator,
	cfg config.PoolConfig,
	m *metrics.Metrics,
	auditLogger audit.Logger,
	logger *logrus.Logger,
) *Loop {
	return &Loop{
		pool:        p,
		source:      source,
		extractor:   ext,
		conditioner: cond,
		validator:   val,
		cfg:         cfg,
		metrics:     m,
		audit:       auditLogger,
		logger:      logger,
	}
}

// Run ticks on cfg.RefillInterval until ctx is cancelled, triggering a
// refill cycle on each tick.
func (l *Loop) Run(ctx context.Context) {
	interval := l.cfg.RefillInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("refill loop stopped")
			return
		case <-ticker.C:
			l.runCycle(ctx)
		}
	}
}

// runCycle checks fill level and, if below the low-water mark, pulls
// frames by calling the source's FetchLatest and conditions them into the
// pool until the mark is cleared or frames run out. Frames already held in
// the source's cache are not read. At most MaxFramesPerCycle frames are
// processed per cycle, and fill level is rechecked after each fetched
// batch, so one refill tick cannot monopolize I/O.
func (l *Loop) runCycle(ctx context.Context) {
	stats, err := l.pool.Stats(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("refill: could not read pool stats")
		return
	}
	if stats.AvailableBytes >= l.cfg.LowWaterMarkBytes {
		return
	}

	maxFrames := l.cfg.MaxFramesPerCycle
	if maxFrames <= 0 {
		maxFrames = 1
	}

	processed := 0
	for processed < maxFrames {
		latest, err := l.source.FetchLatest(ctx)
		if err != nil {
			l.logger.WithError(err).Warn("refill: frame fetch failed")
			break
		}
		if len(latest) == 0 {
			break
		}

		blocksAdded := 0
		for _, frame := range latest {
			if processed >= maxFrames {
				break
			}
			processed++
			added, err := l.processFrame(ctx, frame)
			if err != nil {
				l.logger.WithError(err).WithField("source", frame.Source).Warn("refill: frame processing failed")
				continue
			}
			blocksAdded += added
		}

		l.metrics.RecordRefillCycle()
		l.audit.LogRefillCycle(blocksAdded, true, nil)

		stats, err = l.pool.Stats(ctx)
		if err != nil {
			l.logger.WithError(err).Warn("refill: could not recheck pool stats")
			break
		}
		if stats.AvailableBytes >= l.cfg.LowWaterMarkBytes {
			break
		}
	}
}

// processFrame runs one frame through Extractor -> Conditioner -> Validator
// and, for every block that passes, admits it into the pool. It returns the
// number of blocks admitted.
func (l *Loop) processFrame(ctx context.Context, frame extractor.Frame) (int, error) {
	extractStart := time.Now()
	raw, err := l.extractor.Extract(ctx, frame)
	l.metrics.RecordExtraction(frame.Source, time.Since(extractStart))
	if err != nil {
		return 0, err
	}

	condStart := time.Now()
	blocks, err := l.conditioner.Condition(raw, l.cfg.BlockSize)
	l.metrics.RecordConditioning(time.Since(condStart))
	if err != nil {
		return 0, err
	}

	added := 0
	for _, payload := range blocks {
		valStart := time.Now()
		result := l.validator.Validate(payload)
		l.metrics.RecordValidation(time.Since(valStart), result.Passed)

		if !result.Passed {
			l.pool.RecordValidationReject(ctx)
			continue
		}

		if err := l.pool.Add(ctx, payload, result.QualityScore, frame.Source); err != nil {
			l.audit.LogAdd("", len(payload), result.QualityScore, false, err, 0)
			continue
		}
		l.metrics.RecordPoolAdd(frame.Source)
		l.audit.LogAdd("", len(payload), result.QualityScore, true, nil, 0)
		added++
	}

	return added, nil
}
