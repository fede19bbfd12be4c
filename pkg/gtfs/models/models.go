// Package models holds the plain domain types shared across the importer,
// the schedule resolver and the realtime reconciler. These carry no
// persistence concerns; storage mapping lives with the packages that own
// the queries.
package models

import (
	"fmt"
	"time"

	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
)

type Agency struct {
	AgencyID       string
	AgencyName     string
	AgencyURL      string
	AgencyTimezone string
	AgencyLang     string
}

type Stop struct {
	StopID        string
	StopName      string
	StopLat       float64
	StopLon       float64
	ParentStation string
	LocationType  int
}

// RouteType is the closed GTFS route_type enum. Values outside the set fail
// row conversion during import rather than defaulting.
type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCableTram  RouteType = 5
	RouteTypeAerialLift RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

// ParseRouteType validates a raw route_type value against the closed enum.
func ParseRouteType(v int) (RouteType, error) {
	switch rt := RouteType(v); rt {
	case RouteTypeTram, RouteTypeSubway, RouteTypeRail, RouteTypeBus,
		RouteTypeFerry, RouteTypeCableTram, RouteTypeAerialLift,
		RouteTypeFunicular, RouteTypeTrolleybus, RouteTypeMonorail:
		return rt, nil
	default:
		return 0, fmt.Errorf("invalid route_type %d", v)
	}
}

func (rt RouteType) String() string {
	switch rt {
	case RouteTypeTram:
		return "tram"
	case RouteTypeSubway:
		return "subway"
	case RouteTypeRail:
		return "rail"
	case RouteTypeBus:
		return "bus"
	case RouteTypeFerry:
		return "ferry"
	case RouteTypeCableTram:
		return "cable_tram"
	case RouteTypeAerialLift:
		return "aerial_lift"
	case RouteTypeFunicular:
		return "funicular"
	case RouteTypeTrolleybus:
		return "trolleybus"
	case RouteTypeMonorail:
		return "monorail"
	}
	return fmt.Sprintf("route_type(%d)", int(rt))
}

type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteType      RouteType
	RouteColor     string
	RouteTextColor string
}

// Code returns the rider-facing route label, preferring the short name.
func (r Route) Code() string {
	if r.RouteShortName != "" {
		return r.RouteShortName
	}
	return r.RouteLongName
}

type Trip struct {
	TripID       string
	RouteID      string
	ServiceID    string
	ShapeID      string
	TripHeadsign string
	DirectionID  int
	BlockID      string
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
	Arrival      *gtfstime.WallClock
	Departure    *gtfstime.WallClock
	StopHeadsign string
	PickupType   int
	DropOffType  int
}

// Calendar is a weekly recurring service pattern with a validity window.
type Calendar struct {
	ServiceID string
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
	Sunday    bool
	StartDate time.Time
	EndDate   time.Time
}

// ActiveOn reports whether the weekly pattern covers the given date: the
// date falls inside [StartDate, EndDate] and the weekday flag is set.
// CalendarDate exceptions are layered on top by the schedule resolver.
func (c Calendar) ActiveOn(date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(c.StartDate) || day.After(c.EndDate) {
		return false
	}
	switch day.Weekday() {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	case time.Sunday:
		return c.Sunday
	}
	return false
}

// ExceptionType is the calendar_dates exception_type enum.
type ExceptionType int

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

// ParseExceptionType validates a raw exception_type value.
func ParseExceptionType(v int) (ExceptionType, error) {
	switch et := ExceptionType(v); et {
	case ExceptionAdded, ExceptionRemoved:
		return et, nil
	default:
		return 0, fmt.Errorf("invalid exception_type %d", v)
	}
}

type CalendarDate struct {
	ServiceID     string
	Date          time.Time
	ExceptionType ExceptionType
}

type Shape struct {
	ShapeID           string
	ShapePtLat        float64
	ShapePtLon        float64
	ShapePtSequence   int
	ShapeDistTraveled float64
}
