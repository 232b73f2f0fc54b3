// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
)

// AutoPoster posts high-confidence matched transactions.
type AutoPoster interface {
	AutoPost(ctx context.Context, minConfidence float64, limit int) (posting.AutoPostResult, error)
}

// AutoPostConfig controls the auto-post sweep.
type AutoPostConfig struct {
	Schedule      string
	MinConfidence float64
	BatchSize     int
	Timeout       time.Duration
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron   *cron.Cron
	poster AutoPoster
	cfg    AutoPostConfig
	logger *slog.Logger

	// running guards against overlapping sweeps
	running sync.Mutex
}

// NewScheduler creates a new job scheduler.
func NewScheduler(poster AutoPoster, cfg AutoPostConfig, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}

	return &Scheduler{
		cron:   c,
		poster: poster,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.autoPost); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("auto_post_schedule", s.cfg.Schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs one sweep synchronously and returns its result.
func (s *Scheduler) RunNow() posting.AutoPostResult {
	return s.sweep()
}

func (s *Scheduler) autoPost() {
	s.sweep()
}

func (s *Scheduler) sweep() posting.AutoPostResult {
	if !s.running.TryLock() {
		s.logger.Warn("auto-post sweep already running, skipping")
		return posting.AutoPostResult{}
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	s.logger.Info("starting auto-post sweep", slog.Float64("min_confidence", s.cfg.MinConfidence))

	res, err := s.poster.AutoPost(ctx, s.cfg.MinConfidence, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("auto-post sweep failed", slog.Any("error", err))
		return res
	}

	s.logger.Info("auto-post sweep completed",
		slog.Int("candidates", res.Candidates),
		slog.Int("posted", res.Posted),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res
}
