package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
)

// CleanupScheduler runs the retention cleanups on their own intervals.
// Cleanup pauses while a bulk import holds the import lock so the two never
// contend for the same tables.
type CleanupScheduler struct {
	maintenance        *Maintenance
	logger             logger.Logger
	config             SchedulerConfig
	isRunning          bool
	mu                 sync.RWMutex
	cancelFn           context.CancelFunc
	importLock         sync.RWMutex
	isImportInProgress bool
}

// SchedulerConfig contains the cleanup intervals and retention windows.
type SchedulerConfig struct {
	RealtimeCleanupInterval time.Duration
	SampleCleanupInterval   time.Duration
	RealtimeRetention       time.Duration
	SampleRetention         time.Duration
}

// DefaultSchedulerConfig returns sensible defaults: realtime rows live
// minutes, delay samples live long enough to chart a month of history.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RealtimeCleanupInterval: 5 * time.Minute,
		SampleCleanupInterval:   24 * time.Hour,
		RealtimeRetention:       15 * time.Minute,
		SampleRetention:         31 * 24 * time.Hour,
	}
}

func NewCleanupScheduler(database *db.DB, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: New(database, logger),
		logger:      logger,
		config:      config,
	}
}

func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.isRunning = true

	s.logger.Info("Starting cleanup scheduler",
		"realtime_interval", s.config.RealtimeCleanupInterval,
		"sample_interval", s.config.SampleCleanupInterval)

	go s.realtimeCleanupLoop(ctx)
	go s.sampleCleanupLoop(ctx)

	return nil
}

func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.logger.Info("Stopping cleanup scheduler")
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.isRunning = false
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LockForImport pauses cleanup while a bulk import runs.
func (s *CleanupScheduler) LockForImport() {
	s.importLock.Lock()
	s.isImportInProgress = true
	s.logger.Info("Cleanup paused for bulk import")
}

// UnlockAfterImport resumes cleanup after a bulk import finishes.
func (s *CleanupScheduler) UnlockAfterImport() {
	s.isImportInProgress = false
	s.importLock.Unlock()
	s.logger.Info("Cleanup resumed after bulk import")
}

func (s *CleanupScheduler) canPerformCleanup() bool {
	s.importLock.RLock()
	defer s.importLock.RUnlock()
	return !s.isImportInProgress
}

func (s *CleanupScheduler) realtimeCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.RealtimeCleanupInterval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(1 * time.Minute)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Realtime cleanup loop stopping")
			return
		case <-initialDelay.C:
			s.performRealtimeCleanup(ctx)
		case <-ticker.C:
			s.performRealtimeCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) sampleCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SampleCleanupInterval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(5 * time.Minute)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sample cleanup loop stopping")
			return
		case <-initialDelay.C:
			s.performSampleCleanup(ctx)
		case <-ticker.C:
			s.performSampleCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performRealtimeCleanup(ctx context.Context) {
	if !s.canPerformCleanup() {
		s.logger.Debug("Skipping realtime cleanup, bulk import in progress")
		return
	}

	start := time.Now()
	n, err := s.maintenance.CleanupStaleRealtime(ctx, s.config.RealtimeRetention)
	if err != nil {
		s.logger.Error("Realtime cleanup failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Realtime cleanup finished", "rows_deleted", n, "duration", time.Since(start))
}

func (s *CleanupScheduler) performSampleCleanup(ctx context.Context) {
	if !s.canPerformCleanup() {
		s.logger.Debug("Skipping sample cleanup, bulk import in progress")
		return
	}

	start := time.Now()
	n, err := s.maintenance.CleanupOldDelaySamples(ctx, s.config.SampleRetention)
	if err != nil {
		s.logger.Error("Sample cleanup failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Sample cleanup finished", "rows_deleted", n, "duration", time.Since(start))
}

// GetStatus reports the scheduler's current state.
func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	s.importLock.RLock()
	defer s.mu.RUnlock()
	defer s.importLock.RUnlock()

	return map[string]interface{}{
		"is_running":            s.isRunning,
		"is_import_in_progress": s.isImportInProgress,
		"realtime_interval":     s.config.RealtimeCleanupInterval.String(),
		"sample_interval":       s.config.SampleCleanupInterval.String(),
		"realtime_retention":    s.config.RealtimeRetention.String(),
		"sample_retention":      s.config.SampleRetention.String(),
	}
}
