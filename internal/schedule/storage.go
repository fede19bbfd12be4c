package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// ErrNotFound marks a requested entity that does not exist. Distinct from a
// query that succeeds with zero rows.
var ErrNotFound = errors.New("not found")

// Storage resolves static schedules from the normalized GTFS tables for one
// dataset. Queries are batched by stop and time window; per-trip lookups are
// deliberately not offered.
type Storage struct {
	db      *sql.DB
	dataset string
}

func NewStorage(db *sql.DB, dataset string) *Storage {
	return &Storage{db: db, dataset: dataset}
}

// Stop fetches a single stop, returning ErrNotFound when absent.
func (s *Storage) Stop(ctx context.Context, stopID string) (models.Stop, error) {
	var stop models.Stop
	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT stop_id, stop_name, stop_lat, stop_lon, parent_station, location_type
		FROM gtfs.stops
		WHERE dataset = $1 AND stop_id = $2
	`, s.dataset, stopID).Scan(
		&stop.StopID, &stop.StopName, &stop.StopLat, &stop.StopLon,
		&parent, &stop.LocationType,
	)
	if err == sql.ErrNoRows {
		return models.Stop{}, fmt.Errorf("stop %q: %w", stopID, ErrNotFound)
	}
	if err != nil {
		return models.Stop{}, fmt.Errorf("querying stop: %w", err)
	}
	stop.ParentStation = parent.String
	return stop, nil
}

const scheduleSelect = `
	SELECT
		r.route_id, r.agency_id, r.route_short_name, r.route_long_name,
		r.route_type, r.route_color, r.route_text_color,
		t.trip_id, t.route_id, t.service_id, t.shape_id, t.trip_headsign,
		t.direction_id, t.block_id,
		st.trip_id, st.stop_id, st.stop_sequence, st.arrival_secs,
		st.departure_secs, st.stop_headsign, st.pickup_type, st.drop_off_type,
		c.service_id, c.monday, c.tuesday, c.wednesday, c.thursday,
		c.friday, c.saturday, c.sunday, c.start_date, c.end_date,
		s.stop_id, s.stop_name, s.stop_lat, s.stop_lon, s.parent_station,
		s.location_type
	FROM gtfs.stop_times st
	JOIN gtfs.trips t
		ON t.dataset = st.dataset AND t.trip_id = st.trip_id
	JOIN gtfs.routes r
		ON r.dataset = t.dataset AND r.route_id = t.route_id
	JOIN gtfs.calendar c
		ON c.dataset = t.dataset AND c.service_id = t.service_id
	JOIN gtfs.stops s
		ON s.dataset = st.dataset AND s.stop_id = st.stop_id
	WHERE st.dataset = $1
		AND st.arrival_secs IS NOT NULL`

// SchedulesForStop returns all schedule tuples for trips serving the stop on
// the given weekday with scheduled arrival inside [start, end].
//
// When start is later than end the window wraps past midnight: a schedule
// matches when its arrival is at or after start OR at or before end. That
// disjunction is the intended wrap-around policy.
//
// Results come back ordered by raw arrival time; callers apply
// SortDisplayOrder before display.
func (s *Storage) SchedulesForStop(ctx context.Context, stopID string, weekday time.Weekday, start, end gtfstime.WallClock) ([]StaticSchedule, error) {
	query := scheduleSelect + `
		AND st.stop_id = $2
		AND c.` + weekdayColumn(weekday) + ` = TRUE
		AND ` + windowClause(start, end, "$3", "$4") + `
	ORDER BY st.arrival_secs`

	rows, err := s.db.QueryContext(ctx, query,
		s.dataset, stopID, start.SecondsOfDay(), end.SecondsOfDay())
	if err != nil {
		return nil, fmt.Errorf("querying schedules for stop %q: %w", stopID, err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// SchedulesDueWithin returns schedule tuples arriving inside [start, end] on
// the given weekday, restricted to the supplied trips. The recorder uses it
// to avoid reconciling trips with no chance of realtime data.
func (s *Storage) SchedulesDueWithin(ctx context.Context, weekday time.Weekday, start, end gtfstime.WallClock, tripIDs []string) ([]StaticSchedule, error) {
	if len(tripIDs) == 0 {
		return nil, nil
	}
	query := scheduleSelect + `
		AND st.trip_id = ANY($2)
		AND c.` + weekdayColumn(weekday) + ` = TRUE
		AND ` + windowClause(start, end, "$3", "$4") + `
	ORDER BY st.arrival_secs`

	rows, err := s.db.QueryContext(ctx, query,
		s.dataset, pq.Array(tripIDs), start.SecondsOfDay(), end.SecondsOfDay())
	if err != nil {
		return nil, fmt.Errorf("querying due schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ExceptionsOn returns the calendar_dates exceptions recorded for a date.
func (s *Storage) ExceptionsOn(ctx context.Context, date time.Time) ([]models.CalendarDate, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, date, exception_type
		FROM gtfs.calendar_dates
		WHERE dataset = $1 AND date = $2
	`, s.dataset, day)
	if err != nil {
		return nil, fmt.Errorf("querying calendar exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []models.CalendarDate
	for rows.Next() {
		var ex models.CalendarDate
		var rawType int
		if err := rows.Scan(&ex.ServiceID, &ex.Date, &rawType); err != nil {
			return nil, fmt.Errorf("scanning calendar exception: %w", err)
		}
		et, err := models.ParseExceptionType(rawType)
		if err != nil {
			return nil, fmt.Errorf("calendar exception for %s: %w", ex.ServiceID, err)
		}
		ex.ExceptionType = et
		exceptions = append(exceptions, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calendar exceptions: %w", err)
	}
	return exceptions, nil
}

func weekdayColumn(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	}
	return "sunday"
}

// windowClause builds the arrival-window predicate, switching from a
// conjunctive BETWEEN to the disjunctive wrap-around form when the window
// crosses midnight.
func windowClause(start, end gtfstime.WallClock, startParam, endParam string) string {
	if start.SecondsOfDay() > end.SecondsOfDay() {
		return "(st.arrival_secs >= " + startParam + " OR st.arrival_secs <= " + endParam + ")"
	}
	return "(st.arrival_secs >= " + startParam + " AND st.arrival_secs <= " + endParam + ")"
}

func scanSchedules(rows *sql.Rows) ([]StaticSchedule, error) {
	var schedules []StaticSchedule
	for rows.Next() {
		var (
			sch          StaticSchedule
			rawRouteType int
			agencyID     sql.NullString
			shortName    sql.NullString
			longName     sql.NullString
			routeColor   sql.NullString
			textColor    sql.NullString
			shapeID      sql.NullString
			tripHeadsign sql.NullString
			blockID      sql.NullString
			arrival      sql.NullInt64
			departure    sql.NullInt64
			stopHeadsign sql.NullString
			parent       sql.NullString
		)
		err := rows.Scan(
			&sch.Route.RouteID, &agencyID, &shortName,
			&longName, &rawRouteType, &routeColor,
			&textColor,
			&sch.Trip.TripID, &sch.Trip.RouteID, &sch.Trip.ServiceID,
			&shapeID, &tripHeadsign, &sch.Trip.DirectionID, &blockID,
			&sch.StopTime.TripID, &sch.StopTime.StopID,
			&sch.StopTime.StopSequence, &arrival, &departure,
			&stopHeadsign, &sch.StopTime.PickupType, &sch.StopTime.DropOffType,
			&sch.Calendar.ServiceID, &sch.Calendar.Monday, &sch.Calendar.Tuesday,
			&sch.Calendar.Wednesday, &sch.Calendar.Thursday, &sch.Calendar.Friday,
			&sch.Calendar.Saturday, &sch.Calendar.Sunday,
			&sch.Calendar.StartDate, &sch.Calendar.EndDate,
			&sch.Stop.StopID, &sch.Stop.StopName, &sch.Stop.StopLat,
			&sch.Stop.StopLon, &parent, &sch.Stop.LocationType,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule row: %w", err)
		}

		rt, err := models.ParseRouteType(rawRouteType)
		if err != nil {
			return nil, fmt.Errorf("schedule for trip %s: %w", sch.Trip.TripID, err)
		}
		sch.Route.RouteType = rt
		sch.Route.AgencyID = agencyID.String
		sch.Route.RouteShortName = shortName.String
		sch.Route.RouteLongName = longName.String
		sch.Route.RouteColor = routeColor.String
		sch.Route.RouteTextColor = textColor.String
		sch.Trip.ShapeID = shapeID.String
		sch.Trip.TripHeadsign = tripHeadsign.String
		sch.Trip.BlockID = blockID.String
		sch.StopTime.StopHeadsign = stopHeadsign.String
		sch.Stop.ParentStation = parent.String
		if arrival.Valid {
			t := gtfstime.FromSeconds(int(arrival.Int64))
			sch.StopTime.Arrival = &t
		}
		if departure.Valid {
			t := gtfstime.FromSeconds(int(departure.Int64))
			sch.StopTime.Departure = &t
		}

		schedules = append(schedules, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule rows: %w", err)
	}
	return schedules, nil
}
