package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
	"github.com/tripwatch-data/internal/schedule"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

type fakeStore struct {
	stops     map[string]models.Stop
	schedules []schedule.StaticSchedule
}

func (f *fakeStore) Stop(_ context.Context, stopID string) (models.Stop, error) {
	stop, ok := f.stops[stopID]
	if !ok {
		return models.Stop{}, schedule.ErrNotFound
	}
	return stop, nil
}

func (f *fakeStore) SchedulesForStop(_ context.Context, stopID string, _ time.Weekday, _, _ gtfstime.WallClock) ([]schedule.StaticSchedule, error) {
	var out []schedule.StaticSchedule
	for _, s := range f.schedules {
		if s.Stop.StopID == stopID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ExceptionsOn(context.Context, time.Time) ([]models.CalendarDate, error) {
	return nil, nil
}

type fakeReader struct {
	pairs []models.RealtimeUpdatePair
}

func (f *fakeReader) UpdatesForTrips(context.Context, []string) ([]models.RealtimeUpdatePair, error) {
	return f.pairs, nil
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

func visit(tripID, stopID string, arrival gtfstime.WallClock) schedule.StaticSchedule {
	return schedule.StaticSchedule{
		Route:    models.Route{RouteID: "route-1", RouteShortName: "86", RouteLongName: "Waterfront City"},
		Trip:     models.Trip{TripID: tripID, ServiceID: "svc", TripHeadsign: "Docklands"},
		StopTime: models.StopTime{TripID: tripID, StopID: stopID, Arrival: &arrival},
		Calendar: allWeekCalendar("svc"),
		Stop:     models.Stop{StopID: stopID, StopName: "Flinders St"},
	}
}

func newTestRouter(store ScheduleStore, reader schedule.RealtimeReader) http.Handler {
	h := NewDeparturesHandler(store, schedule.NewReconciler(reader, logger.Discard()), metrics.NewCollector(), logger.Discard())
	r := chi.NewRouter()
	r.Get("/api/stops/{stopID}/departures", h.Get)
	return r
}

func get(t *testing.T, handler http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDeparturesUnknownStopIs404(t *testing.T) {
	store := &fakeStore{stops: map[string]models.Stop{}}
	rec := get(t, newTestRouter(store, &fakeReader{}), "/api/stops/nope/departures")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeparturesMalformedTimesAre400(t *testing.T) {
	store := &fakeStore{stops: map[string]models.Stop{"s1": {StopID: "s1"}}}
	router := newTestRouter(store, &fakeReader{})

	for _, url := range []string{
		"/api/stops/s1/departures?start=25-00-00",
		"/api/stops/s1/departures?end=9:99:00",
		"/api/stops/s1/departures?date=2026-09-01",
	} {
		if rec := get(t, router, url); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, rec.Code)
		}
	}
}

func TestDeparturesServesSortedBoard(t *testing.T) {
	lateNight := visit("trip-a", "s1", gtfstime.WallClock{Hour: 0, Minute: 15})
	evening := visit("trip-b", "s1", gtfstime.WallClock{Hour: 23, Minute: 50})
	store := &fakeStore{
		stops:     map[string]models.Stop{"s1": lateNight.Stop},
		schedules: []schedule.StaticSchedule{lateNight, evening},
	}

	rec := get(t, newTestRouter(store, &fakeReader{}), "/api/stops/s1/departures?date=20260901&start=23:30:00&end=01:00:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp DeparturesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.StopID != "s1" || resp.StopName != "Flinders St" {
		t.Errorf("stop = %s/%s, want s1/Flinders St", resp.StopID, resp.StopName)
	}
	if resp.Count != 2 || len(resp.Departures) != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Post-midnight departures display after the late-evening ones.
	if resp.Departures[0].TripID != "trip-b" || resp.Departures[1].TripID != "trip-a" {
		t.Errorf("order = [%s, %s], want [trip-b, trip-a]",
			resp.Departures[0].TripID, resp.Departures[1].TripID)
	}
}

func TestDeparturesIncludeRealtimeDelay(t *testing.T) {
	v := visit("trip-a", "s1", gtfstime.WallClock{Hour: 10, Minute: 0})
	delay := 120
	reader := &fakeReader{pairs: []models.RealtimeUpdatePair{{
		StopTime: models.RealtimeStopTimeUpdate{
			TripID:       "trip-a",
			StopID:       "s1",
			StopSequence: 1,
			ArrivalDelay: &delay,
		},
	}}}
	store := &fakeStore{
		stops:     map[string]models.Stop{"s1": v.Stop},
		schedules: []schedule.StaticSchedule{v},
	}

	rec := get(t, newTestRouter(store, reader), "/api/stops/s1/departures?date=20260901&start=09:00:00&end=11:00:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp DeparturesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Departures) != 1 {
		t.Fatalf("departures = %d, want 1", len(resp.Departures))
	}
	d := resp.Departures[0]
	if d.Delay != "2 min" || d.DelaySeconds != 120 {
		t.Errorf("delay = %q/%d, want \"2 min\"/120", d.Delay, d.DelaySeconds)
	}
	if d.Scheduled != "10:00:00" || d.Predicted != "10:02:00" {
		t.Errorf("times = %s -> %s, want 10:00:00 -> 10:02:00", d.Scheduled, d.Predicted)
	}
	if d.Status != string(schedule.StatusOnTime) {
		t.Errorf("status = %s, want ON_TIME", d.Status)
	}
}

func TestDeparturesWithoutRealtimeAreUnknown(t *testing.T) {
	v := visit("trip-a", "s1", gtfstime.WallClock{Hour: 10, Minute: 0})
	store := &fakeStore{
		stops:     map[string]models.Stop{"s1": v.Stop},
		schedules: []schedule.StaticSchedule{v},
	}

	rec := get(t, newTestRouter(store, &fakeReader{}), "/api/stops/s1/departures?date=20260901&start=09:00:00&end=11:00:00")
	var resp DeparturesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Departures) != 1 {
		t.Fatalf("departures = %d, want 1", len(resp.Departures))
	}
	d := resp.Departures[0]
	if d.Status != string(schedule.StatusUnknown) || d.Delay != "-" {
		t.Errorf("departure = %+v, want UNKNOWN status and \"-\" delay", d)
	}
}
