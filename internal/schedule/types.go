// Package schedule joins static GTFS entities into stop-level schedules and
// reconciles them against realtime delay updates.
package schedule

import (
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// StaticSchedule is one scheduled stop visit, produced by joining the
// normalized entities. It is never mutated after creation.
type StaticSchedule struct {
	Route    models.Route
	Trip     models.Trip
	StopTime models.StopTime
	Calendar models.Calendar
	Stop     models.Stop
}

// OnTimeStatus classifies a reconciled schedule against its timetable.
type OnTimeStatus string

const (
	StatusEarly   OnTimeStatus = "EARLY"
	StatusOnTime  OnTimeStatus = "ON_TIME"
	StatusLate    OnTimeStatus = "LATE"
	StatusUnknown OnTimeStatus = "UNKNOWN"
	StatusNoData  OnTimeStatus = "NO_DATA"
)

// RealTimeSchedule wraps a StaticSchedule with its matching realtime update
// pair and the derived prediction fields. All fields are computed once at
// construction.
type RealTimeSchedule struct {
	Static         StaticSchedule
	TripUpdate     *models.RealtimeTripUpdate
	StopTimeUpdate *models.RealtimeStopTimeUpdate

	Delay        string
	DelaySeconds int
	RealArrival  gtfstime.WallClock
	ETAText      string
	Status       OnTimeStatus
}
