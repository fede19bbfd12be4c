package importer

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnsupportedFile is returned for feed files no importer is registered
// for, before any row is read.
var ErrUnsupportedFile = errors.New("unsupported GTFS file")

// Kind is the closed set of importable GTFS entity files.
type Kind int

const (
	KindAgency Kind = iota
	KindStops
	KindRoutes
	KindCalendar
	KindCalendarDates
	KindShapes
	KindTrips
	KindStopTimes
)

// AllKinds lists every kind in referential-integrity import order.
var AllKinds = []Kind{
	KindAgency, KindStops, KindRoutes, KindCalendar,
	KindCalendarDates, KindShapes, KindTrips, KindStopTimes,
}

// KindForFile maps a GTFS file name onto its importer kind.
func KindForFile(path string) (Kind, error) {
	switch filepath.Base(path) {
	case "agency.txt":
		return KindAgency, nil
	case "stops.txt":
		return KindStops, nil
	case "routes.txt":
		return KindRoutes, nil
	case "calendar.txt":
		return KindCalendar, nil
	case "calendar_dates.txt":
		return KindCalendarDates, nil
	case "shapes.txt":
		return KindShapes, nil
	case "trips.txt":
		return KindTrips, nil
	case "stop_times.txt":
		return KindStopTimes, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
}

func (k Kind) FileName() string {
	switch k {
	case KindAgency:
		return "agency.txt"
	case KindStops:
		return "stops.txt"
	case KindRoutes:
		return "routes.txt"
	case KindCalendar:
		return "calendar.txt"
	case KindCalendarDates:
		return "calendar_dates.txt"
	case KindShapes:
		return "shapes.txt"
	case KindTrips:
		return "trips.txt"
	case KindStopTimes:
		return "stop_times.txt"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Table() string {
	switch k {
	case KindAgency:
		return "agency"
	case KindStops:
		return "stops"
	case KindRoutes:
		return "routes"
	case KindCalendar:
		return "calendar"
	case KindCalendarDates:
		return "calendar_dates"
	case KindShapes:
		return "shapes"
	case KindTrips:
		return "trips"
	case KindStopTimes:
		return "stop_times"
	}
	return ""
}

func (k Kind) Columns() []string {
	switch k {
	case KindAgency:
		return []string{"dataset", "agency_id", "agency_name", "agency_url", "agency_timezone", "agency_lang"}
	case KindStops:
		return []string{"dataset", "stop_id", "stop_name", "stop_lat", "stop_lon", "parent_station", "location_type"}
	case KindRoutes:
		return []string{"dataset", "route_id", "agency_id", "route_short_name", "route_long_name", "route_type", "route_color", "route_text_color"}
	case KindCalendar:
		return []string{"dataset", "service_id", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "start_date", "end_date"}
	case KindCalendarDates:
		return []string{"dataset", "service_id", "date", "exception_type"}
	case KindShapes:
		return []string{"dataset", "shape_id", "shape_pt_lat", "shape_pt_lon", "shape_pt_sequence", "shape_dist_traveled"}
	case KindTrips:
		return []string{"dataset", "trip_id", "route_id", "service_id", "shape_id", "trip_headsign", "direction_id", "block_id"}
	case KindStopTimes:
		return []string{"dataset", "trip_id", "stop_id", "stop_sequence", "arrival_secs", "departure_secs", "stop_headsign", "pickup_type", "drop_off_type"}
	}
	return nil
}

// BatchSize returns the rows per transaction for the kind. High-volume
// entities take larger batches to keep the transaction count down.
func (k Kind) BatchSize() int {
	switch k {
	case KindTrips, KindShapes, KindStopTimes:
		return 20000
	}
	return 10000
}

func (k Kind) String() string {
	return k.Table()
}
