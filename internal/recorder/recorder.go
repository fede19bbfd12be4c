package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
	"github.com/tripwatch-data/internal/schedule"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

const (
	tripBatchSize   = 2000
	maxBatchWorkers = 4
)

// ScheduleSource loads the static schedules the recorder samples against.
type ScheduleSource interface {
	SchedulesDueWithin(ctx context.Context, weekday time.Weekday, start, end gtfstime.WallClock, tripIDs []string) ([]schedule.StaticSchedule, error)
	ExceptionsOn(ctx context.Context, date time.Time) ([]models.CalendarDate, error)
}

// RealtimeSource exposes the current realtime snapshot: which trips are
// reporting, and their update pairs for reconciliation.
type RealtimeSource interface {
	ActiveTripIDs(ctx context.Context) ([]string, error)
	schedule.RealtimeReader
}

// SampleSink persists one batch of delay samples.
type SampleSink interface {
	WriteSamples(ctx context.Context, samples []models.DelaySample) error
}

// Publisher fans recorded samples out to subscribers. Optional.
type Publisher interface {
	PublishSamples(samples []models.DelaySample) error
}

// Recorder periodically captures the observed delay of every due stop visit
// on realtime-active trips into an append-only time series.
type Recorder struct {
	schedules  ScheduleSource
	realtime   RealtimeSource
	sink       SampleSink
	publisher  Publisher
	reconciler *schedule.Reconciler
	config     config.RecorderConfig
	metrics    *metrics.Collector
	logger     logger.Logger
	now        func() time.Time
}

func New(schedules ScheduleSource, realtime RealtimeSource, sink SampleSink, pub Publisher, cfg config.RecorderConfig, m *metrics.Collector, log logger.Logger) *Recorder {
	return &Recorder{
		schedules:  schedules,
		realtime:   realtime,
		sink:       sink,
		publisher:  pub,
		reconciler: schedule.NewReconciler(realtime, log),
		config:     cfg,
		metrics:    m,
		logger:     log,
		now:        time.Now,
	}
}

// Run executes recording passes on the configured interval until the
// context is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("Delay recorder started",
		"interval", r.config.Interval, "due_window", r.config.DueWindow)

	r.runAndReport(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Delay recorder stopped")
			return
		case <-ticker.C:
			r.runAndReport(ctx)
		}
	}
}

func (r *Recorder) runAndReport(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil {
		r.metrics.RecorderRuns.WithLabelValues("error").Inc()
		r.logger.Error("Recorder pass failed", "error", err)
		return
	}
	r.metrics.RecorderRuns.WithLabelValues("ok").Inc()
}

// RunOnce performs one recording pass: find schedules due around now on
// trips the feed is reporting, reconcile them, and persist a sample for
// each entry whose predicted arrival has been reached.
func (r *Recorder) RunOnce(ctx context.Context) error {
	now := r.now()

	tripIDs, err := r.realtime.ActiveTripIDs(ctx)
	if err != nil {
		return err
	}
	if len(tripIDs) == 0 {
		r.logger.Debug("No realtime-active trips, skipping recorder pass")
		return nil
	}

	exceptions, err := r.schedules.ExceptionsOn(ctx, now)
	if err != nil {
		return err
	}

	start := gtfstime.FromTime(now.Add(-r.config.DueWindow))
	end := gtfstime.FromTime(now.Add(r.config.DueWindow))
	weekday := now.Weekday()

	var (
		mu       sync.Mutex
		samples  []models.DelaySample
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)
	sem := make(chan struct{}, maxBatchWorkers)

	for off := 0; off < len(tripIDs); off += tripBatchSize {
		hi := off + tripBatchSize
		if hi > len(tripIDs) {
			hi = len(tripIDs)
		}
		batch := tripIDs[off:hi]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			batchSamples, err := r.collectBatch(ctx, weekday, start, end, batch, now, exceptions)
			if err != nil {
				failOnce.Do(func() { firstErr = err })
				return
			}
			mu.Lock()
			samples = append(samples, batchSamples...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	if len(samples) == 0 {
		r.logger.Debug("No due delay samples this pass", "active_trips", len(tripIDs))
		return nil
	}

	if err := r.sink.WriteSamples(ctx, samples); err != nil {
		return err
	}
	r.metrics.SamplesRecorded.Add(float64(len(samples)))

	if r.publisher != nil {
		if err := r.publisher.PublishSamples(samples); err != nil {
			// Publishing is best effort; the samples are already persisted.
			r.logger.Warn("Failed to publish delay samples", "error", err)
		}
	}

	r.logger.Info("Recorded delay samples",
		"samples", len(samples), "active_trips", len(tripIDs))
	return nil
}

func (r *Recorder) collectBatch(ctx context.Context, weekday time.Weekday, start, end gtfstime.WallClock, tripIDs []string, now time.Time, exceptions []models.CalendarDate) ([]models.DelaySample, error) {
	due, err := r.schedules.SchedulesDueWithin(ctx, weekday, start, end, tripIDs)
	if err != nil {
		return nil, err
	}
	active := schedule.FilterActive(due, now, exceptions)
	reconciled := r.reconciler.Reconcile(ctx, active)

	var samples []models.DelaySample
	for _, rts := range reconciled {
		if rts.StopTimeUpdate == nil {
			continue
		}
		if schedule.MinutesUntil(rts.RealArrival, now) > 0 {
			continue
		}
		samples = append(samples, models.DelaySample{
			Timestamp:     now.UTC(),
			StopID:        rts.Static.Stop.StopID,
			RouteCode:     rts.Static.Route.Code(),
			ScheduledTime: *rts.Static.StopTime.Arrival,
			DelaySeconds:  rts.DelaySeconds,
		})
	}
	return samples, nil
}
