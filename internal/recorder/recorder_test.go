package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tripwatch-data/internal/common/config"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
	"github.com/tripwatch-data/internal/schedule"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// Tuesday.
var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fakeSchedules struct {
	mu         sync.Mutex
	schedules  []schedule.StaticSchedule
	exceptions []models.CalendarDate
	batches    [][]string
}

func (f *fakeSchedules) SchedulesDueWithin(_ context.Context, _ time.Weekday, _, _ gtfstime.WallClock, tripIDs []string) ([]schedule.StaticSchedule, error) {
	f.mu.Lock()
	f.batches = append(f.batches, tripIDs)
	f.mu.Unlock()

	wanted := make(map[string]bool, len(tripIDs))
	for _, id := range tripIDs {
		wanted[id] = true
	}
	var out []schedule.StaticSchedule
	for _, s := range f.schedules {
		if wanted[s.Trip.TripID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) ExceptionsOn(context.Context, time.Time) ([]models.CalendarDate, error) {
	return f.exceptions, nil
}

type fakeRealtime struct {
	active []string
	pairs  []models.RealtimeUpdatePair
	err    error
}

func (f *fakeRealtime) ActiveTripIDs(context.Context) ([]string, error) {
	return f.active, f.err
}

func (f *fakeRealtime) UpdatesForTrips(context.Context, []string) ([]models.RealtimeUpdatePair, error) {
	return f.pairs, nil
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.DelaySample
	err     error
}

func (f *fakeSink) WriteSamples(_ context.Context, samples []models.DelaySample) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.batches = append(f.batches, samples)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) all() []models.DelaySample {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DelaySample
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakePublisher struct {
	published []models.DelaySample
}

func (f *fakePublisher) PublishSamples(samples []models.DelaySample) error {
	f.published = append(f.published, samples...)
	return nil
}

func allWeekCalendar(serviceID string) models.Calendar {
	return models.Calendar{
		ServiceID: serviceID,
		Monday:    true, Tuesday: true, Wednesday: true, Thursday: true,
		Friday: true, Saturday: true, Sunday: true,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func stopVisit(tripID, stopID string, arrival gtfstime.WallClock) schedule.StaticSchedule {
	return schedule.StaticSchedule{
		Route:    models.Route{RouteID: "route-1", RouteShortName: "86"},
		Trip:     models.Trip{TripID: tripID, ServiceID: "svc-" + tripID},
		StopTime: models.StopTime{TripID: tripID, StopID: stopID, Arrival: &arrival},
		Calendar: allWeekCalendar("svc-" + tripID),
		Stop:     models.Stop{StopID: stopID},
	}
}

func delayPair(tripID string, seq, delaySecs int) models.RealtimeUpdatePair {
	return models.RealtimeUpdatePair{
		StopTime: models.RealtimeStopTimeUpdate{
			TripID:       tripID,
			StopID:       "ignored",
			StopSequence: seq,
			ArrivalDelay: &delaySecs,
		},
	}
}

func newTestRecorder(schedules ScheduleSource, realtime RealtimeSource, sink SampleSink, pub Publisher) *Recorder {
	cfg := config.RecorderConfig{Interval: 5 * time.Minute, DueWindow: 20 * time.Minute}
	r := New(schedules, realtime, sink, pub, cfg, metrics.NewCollector(), logger.Discard())
	r.now = func() time.Time { return testNow }
	return r
}

func TestRunOnceRecordsDueSamples(t *testing.T) {
	// Scheduled 09:50, delayed 2 min: predicted 09:52, already due at 10:00.
	src := &fakeSchedules{schedules: []schedule.StaticSchedule{
		stopVisit("trip-1", "stop-a", gtfstime.WallClock{Hour: 9, Minute: 50}),
	}}
	rt := &fakeRealtime{active: []string{"trip-1"}, pairs: []models.RealtimeUpdatePair{delayPair("trip-1", 3, 120)}}
	sink := &fakeSink{}
	pub := &fakePublisher{}

	if err := newTestRecorder(src, rt, sink, pub).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("samples = %d, want 1", len(got))
	}
	s := got[0]
	if s.StopID != "stop-a" || s.RouteCode != "86" || s.DelaySeconds != 120 {
		t.Errorf("sample = %+v, want stop-a/86/120s", s)
	}
	if s.ScheduledTime != (gtfstime.WallClock{Hour: 9, Minute: 50}) {
		t.Errorf("scheduled time = %v, want 09:50:00", s.ScheduledTime)
	}
	if !s.Timestamp.Equal(testNow) {
		t.Errorf("timestamp = %v, want %v", s.Timestamp, testNow)
	}
	if len(pub.published) != 1 {
		t.Errorf("published = %d samples, want 1", len(pub.published))
	}
}

func TestRunOnceSkipsNotYetDueVisits(t *testing.T) {
	// Predicted arrival 10:12 is still ahead of the 10:00 clock.
	src := &fakeSchedules{schedules: []schedule.StaticSchedule{
		stopVisit("trip-1", "stop-a", gtfstime.WallClock{Hour: 10, Minute: 10}),
	}}
	rt := &fakeRealtime{active: []string{"trip-1"}, pairs: []models.RealtimeUpdatePair{delayPair("trip-1", 3, 120)}}
	sink := &fakeSink{}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Errorf("samples = %d, want 0 before the visit is due", len(sink.all()))
	}
}

func TestRunOnceSkipsVisitsWithoutRealtimeData(t *testing.T) {
	src := &fakeSchedules{schedules: []schedule.StaticSchedule{
		stopVisit("trip-1", "stop-a", gtfstime.WallClock{Hour: 9, Minute: 50}),
	}}
	rt := &fakeRealtime{active: []string{"trip-1"}}
	sink := &fakeSink{}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Errorf("samples = %d, want 0 without realtime updates", len(sink.all()))
	}
}

func TestRunOnceNoActiveTripsSkipsScheduleScan(t *testing.T) {
	src := &fakeSchedules{}
	rt := &fakeRealtime{}
	sink := &fakeSink{}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.batches) != 0 {
		t.Errorf("schedule scans = %d, want 0 with no active trips", len(src.batches))
	}
}

func TestRunOnceBatchesActiveTrips(t *testing.T) {
	var active []string
	for i := 0; i < 4500; i++ {
		active = append(active, fmt.Sprintf("trip-%d", i))
	}
	src := &fakeSchedules{}
	rt := &fakeRealtime{active: active}
	sink := &fakeSink{}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.batches) != 3 {
		t.Fatalf("batches = %d, want 3 for 4500 trips", len(src.batches))
	}
	var total int
	for _, b := range src.batches {
		if len(b) > tripBatchSize {
			t.Errorf("batch size = %d, want <= %d", len(b), tripBatchSize)
		}
		total += len(b)
	}
	if total != 4500 {
		t.Errorf("batched trips = %d, want 4500", total)
	}
}

func TestRunOnceExcludesInactiveServices(t *testing.T) {
	visit := stopVisit("trip-1", "stop-a", gtfstime.WallClock{Hour: 9, Minute: 50})
	src := &fakeSchedules{
		schedules: []schedule.StaticSchedule{visit},
		exceptions: []models.CalendarDate{{
			ServiceID:     visit.Calendar.ServiceID,
			Date:          testNow,
			ExceptionType: models.ExceptionRemoved,
		}},
	}
	rt := &fakeRealtime{active: []string{"trip-1"}, pairs: []models.RealtimeUpdatePair{delayPair("trip-1", 3, 120)}}
	sink := &fakeSink{}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Errorf("samples = %d, want 0 for a removed service day", len(sink.all()))
	}
}

func TestRunOnceSinkFailurePropagates(t *testing.T) {
	src := &fakeSchedules{schedules: []schedule.StaticSchedule{
		stopVisit("trip-1", "stop-a", gtfstime.WallClock{Hour: 9, Minute: 50}),
	}}
	rt := &fakeRealtime{active: []string{"trip-1"}, pairs: []models.RealtimeUpdatePair{delayPair("trip-1", 3, 120)}}
	sink := &fakeSink{err: errors.New("disk full")}

	if err := newTestRecorder(src, rt, sink, nil).RunOnce(context.Background()); err == nil {
		t.Fatal("expected sink error to propagate")
	}
}
