package gtfs_realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
)

// Manager runs the realtime polling loop: fetch the feed on an interval and
// refresh the stored snapshot.
type Manager struct {
	config    config.FeedConfig
	logger    logger.Logger
	fetcher   *Fetcher
	store     *Store
	metrics   *metrics.Collector
	mu        sync.RWMutex
	isRunning bool
	cancelFn  context.CancelFunc
}

func NewManager(cfg config.FeedConfig, database *db.DB, dataset string, m *metrics.Collector, log logger.Logger) *Manager {
	return &Manager{
		config:  cfg,
		logger:  log,
		fetcher: NewFetcher(cfg, log),
		store:   NewStore(database, dataset, log),
		metrics: m,
	}
}

// Store exposes the snapshot store for readers (reconciler, recorder).
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("realtime manager is already running")
	}
	if err := m.validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFn = cancel

	go m.poll(ctx)

	m.isRunning = true
	m.logger.Info("Realtime manager started", "url", m.config.URL, "interval", m.config.PollInterval)
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}
	m.logger.Info("Stopping realtime manager")
	if m.cancelFn != nil {
		m.cancelFn()
	}
	m.isRunning = false
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

func (m *Manager) poll(ctx context.Context) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

func (m *Manager) cycle(ctx context.Context) {
	feed := m.fetcher.Fetch(ctx)
	if feed == nil {
		m.metrics.FeedFetches.WithLabelValues("error").Inc()
		return
	}
	m.metrics.FeedEntities.Set(float64(len(feed.Entity)))
	if len(feed.Entity) == 0 {
		m.metrics.FeedFetches.WithLabelValues("empty").Inc()
		return
	}
	if err := m.store.Refresh(ctx, feed); err != nil {
		m.metrics.FeedFetches.WithLabelValues("error").Inc()
		m.logger.Error("Failed to refresh realtime snapshot", "error", err)
		return
	}
	m.metrics.FeedFetches.WithLabelValues("ok").Inc()
}

func (m *Manager) validateConfig() error {
	if m.config.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if m.config.PollInterval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	return nil
}
