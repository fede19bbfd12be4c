package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/common/metrics"
	"github.com/tripwatch-data/internal/schedule"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// ScheduleStore is the read side the departures endpoint needs.
type ScheduleStore interface {
	Stop(ctx context.Context, stopID string) (models.Stop, error)
	SchedulesForStop(ctx context.Context, stopID string, weekday time.Weekday, start, end gtfstime.WallClock) ([]schedule.StaticSchedule, error)
	ExceptionsOn(ctx context.Context, date time.Time) ([]models.CalendarDate, error)
}

// DeparturesHandler serves the reconciled departure board for a stop.
type DeparturesHandler struct {
	store      ScheduleStore
	reconciler *schedule.Reconciler
	metrics    *metrics.Collector
	logger     logger.Logger
	now        func() time.Time
}

func NewDeparturesHandler(store ScheduleStore, reconciler *schedule.Reconciler, m *metrics.Collector, log logger.Logger) *DeparturesHandler {
	return &DeparturesHandler{
		store:      store,
		reconciler: reconciler,
		metrics:    m,
		logger:     log,
		now:        time.Now,
	}
}

// Departure is one row of the departure board.
type Departure struct {
	TripID       string `json:"tripId"`
	RouteCode    string `json:"routeCode"`
	RouteName    string `json:"routeName,omitempty"`
	Headsign     string `json:"headsign,omitempty"`
	Scheduled    string `json:"scheduled"`
	Predicted    string `json:"predicted"`
	Delay        string `json:"delay"`
	DelaySeconds int    `json:"delaySeconds"`
	ETA          string `json:"eta"`
	Status       string `json:"status"`
}

type DeparturesResponse struct {
	StopID     string      `json:"stopId"`
	StopName   string      `json:"stopName"`
	Date       string      `json:"date"`
	Departures []Departure `json:"departures"`
	Count      int         `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Get handles GET /api/stops/{stopID}/departures. Query parameters:
// date (YYYYMMDD, default today), start and end (HH:MM:SS). A window with
// start after end wraps across midnight.
func (h *DeparturesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stopID := chi.URLParam(r, "stopID")
	now := h.now()

	date, start, end, err := h.parseWindow(r, now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	stop, err := h.store.Stop(ctx, stopID)
	if errors.Is(err, schedule.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "stop not found"})
		return
	}
	if err != nil {
		h.logger.Error("Stop lookup failed", "stop_id", stopID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load stop"})
		return
	}

	schedules, err := h.store.SchedulesForStop(ctx, stopID, date.Weekday(), start, end)
	if err != nil {
		h.logger.Error("Schedule lookup failed", "stop_id", stopID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load schedules"})
		return
	}
	exceptions, err := h.store.ExceptionsOn(ctx, date)
	if err != nil {
		h.logger.Error("Exception lookup failed", "stop_id", stopID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load service exceptions"})
		return
	}

	active := schedule.FilterActive(schedules, date, exceptions)
	reconcileStart := time.Now()
	reconciled := h.reconciler.Reconcile(ctx, active)
	h.metrics.ReconcileDuration.Observe(time.Since(reconcileStart).Seconds())
	schedule.SortRealtimeDisplayOrder(reconciled)

	h.metrics.DeparturesServed.Inc()

	departures := make([]Departure, 0, len(reconciled))
	for _, rts := range reconciled {
		departures = append(departures, toDeparture(rts))
	}
	writeJSON(w, http.StatusOK, DeparturesResponse{
		StopID:     stop.StopID,
		StopName:   stop.StopName,
		Date:       date.Format("20060102"),
		Departures: departures,
		Count:      len(departures),
	})
}

func (h *DeparturesHandler) parseWindow(r *http.Request, now time.Time) (time.Time, gtfstime.WallClock, gtfstime.WallClock, error) {
	q := r.URL.Query()

	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if raw := q.Get("date"); raw != "" {
		parsed, err := gtfstime.ParsePackedDate(raw)
		if err != nil {
			return time.Time{}, gtfstime.WallClock{}, gtfstime.WallClock{}, errors.New("invalid date, want YYYYMMDD")
		}
		date = parsed
	}

	start := gtfstime.FromTime(now)
	if raw := q.Get("start"); raw != "" {
		parsed, err := gtfstime.ParseExtendedTime(raw)
		if err != nil {
			return time.Time{}, gtfstime.WallClock{}, gtfstime.WallClock{}, errors.New("invalid start time, want HH:MM:SS")
		}
		start = parsed
	}

	end := start.AddSeconds(2 * 60 * 60)
	if raw := q.Get("end"); raw != "" {
		parsed, err := gtfstime.ParseExtendedTime(raw)
		if err != nil {
			return time.Time{}, gtfstime.WallClock{}, gtfstime.WallClock{}, errors.New("invalid end time, want HH:MM:SS")
		}
		end = parsed
	}

	return date, start, end, nil
}

func toDeparture(rts schedule.RealTimeSchedule) Departure {
	d := Departure{
		TripID:       rts.Static.Trip.TripID,
		RouteCode:    rts.Static.Route.Code(),
		RouteName:    rts.Static.Route.RouteLongName,
		Headsign:     rts.Static.Trip.TripHeadsign,
		Predicted:    rts.RealArrival.String(),
		Delay:        rts.Delay,
		DelaySeconds: rts.DelaySeconds,
		ETA:          rts.ETAText,
		Status:       string(rts.Status),
	}
	if rts.Static.StopTime.Arrival != nil {
		d.Scheduled = rts.Static.StopTime.Arrival.String()
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
