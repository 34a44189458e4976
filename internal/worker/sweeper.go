package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seoscope/seoscope/internal/audit"
	"github.com/seoscope/seoscope/internal/metrics"
)

// SweeperConfig controls the stale-claim recovery loop.
type SweeperConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	MaxRequeues int
}

// Sweeper periodically recovers jobs whose claiming worker died.
type Sweeper struct {
	jobs   audit.JobStore
	cfg    SweeperConfig
	logger *zap.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(jobs audit.JobStore, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &Sweeper{jobs: jobs, cfg: cfg, logger: logger}
}

// Run blocks, sweeping on every tick until the context finishes.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single recovery pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	requeued, failed, err := s.jobs.RequeueStale(ctx, s.cfg.StaleAfter, s.cfg.MaxRequeues)
	if err != nil {
		s.logger.Error("stale sweep failed", zap.Error(err))
		return
	}
	metrics.ObserveSweep(requeued, failed)
	if requeued > 0 || failed > 0 {
		s.logger.Warn("recovered stale claims",
			zap.Int("requeued", requeued),
			zap.Int("failed", failed),
		)
	}
}
