package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/monitoring"
)

// InventoryCycles runs the inventory monitor's poll cycles
type InventoryCycles interface {
	RunFullSync(ctx context.Context) *monitoring.SyncResult
	RunPriceCheck(ctx context.Context) *monitoring.SyncResult
}

// DigestRunner publishes a revenue report
type DigestRunner interface {
	Run(ctx context.Context, timeframe models.Timeframe) (*models.RevenueReport, error)
}

// Service handles scheduling of inventory cycles and the revenue digest
type Service struct {
	config    *config.Config
	inventory InventoryCycles
	digest    DigestRunner
	cron      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes robfig/cron's logging through logrus
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

// NewService creates a new scheduler service. digest may be nil.
func NewService(cfg *config.Config, inventory InventoryCycles, digest DigestRunner) *Service {
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:    cfg,
		inventory: inventory,
		digest:    digest,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// Start registers the jobs and begins running them
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(every(s.config.FullSyncInterval), s.runFullSync); err != nil {
		return fmt.Errorf("failed to schedule full sync: %w", err)
	}

	if _, err := s.cron.AddFunc(every(s.config.PriceCheckInterval), s.runPriceCheck); err != nil {
		return fmt.Errorf("failed to schedule price check: %w", err)
	}

	if s.digest != nil {
		if _, err := s.cron.AddFunc(s.config.ReportDigestSchedule, s.runDigest); err != nil {
			return fmt.Errorf("failed to schedule revenue digest: %w", err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (full sync every %s, price check every %s, digest %q)",
		s.config.FullSyncInterval, s.config.PriceCheckInterval, s.config.ReportDigestSchedule)
	return nil
}

// Stop prevents new runs and waits for running jobs to finish. If ctx ends
// first the running jobs are cancelled.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		logrus.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		logrus.Warn("Scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

func (s *Service) runFullSync() {
	logrus.Info("Starting scheduled full inventory sync")
	result := s.inventory.RunFullSync(s.ctx)
	if result.Failed > 0 {
		logrus.Warnf("Scheduled full sync finished with %d failed products", result.Failed)
	}
}

func (s *Service) runPriceCheck() {
	logrus.Info("Starting scheduled price check")
	result := s.inventory.RunPriceCheck(s.ctx)
	if result.Failed > 0 {
		logrus.Warnf("Scheduled price check finished with %d failed products", result.Failed)
	}
}

func (s *Service) runDigest() {
	logrus.Info("Starting scheduled revenue digest")
	if _, err := s.digest.Run(s.ctx, models.TimeframeDay); err != nil {
		logrus.Errorf("Scheduled revenue digest failed: %v", err)
	}
}
