// Package parser streams GTFS CSV files into typed entity callbacks.
package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

type Parser struct {
	logger logger.Logger
}

func New(logger logger.Logger) *Parser {
	return &Parser{logger: logger}
}

type Callbacks struct {
	OnAgency       func(*models.Agency) error
	OnStop         func(*models.Stop) error
	OnRoute        func(*models.Route) error
	OnTrip         func(*models.Trip) error
	OnStopTime     func(*models.StopTime) error
	OnCalendar     func(*models.Calendar) error
	OnCalendarDate func(*models.CalendarDate) error
	OnShape        func(*models.Shape) error
	OnFileComplete func(fileName string) error
}

// parseOrder lists the GTFS files in referential-integrity order.
var parseOrder = []string{
	"agency.txt",
	"stops.txt",
	"routes.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"shapes.txt",
	"trips.txt",
	"stop_times.txt",
}

// ParseDir parses every known GTFS file found in dir, skipping files that
// are absent.
func (p *Parser) ParseDir(ctx context.Context, dir string, callbacks Callbacks) error {
	for _, fileName := range parseOrder {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(dir, fileName)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			p.logger.Debug("File not found in feed directory", "file", fileName)
			continue
		}
		if err != nil {
			return fmt.Errorf("opening %s: %w", fileName, err)
		}

		err = p.ParseFile(ctx, fileName, f, callbacks)
		f.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", fileName, err)
		}
	}

	p.logger.Info("GTFS parsing completed")
	return nil
}

// ParseFile parses one named GTFS CSV stream. A malformed row aborts the
// file: import is fail-fast, not skip-and-continue.
func (p *Parser) ParseFile(ctx context.Context, fileName string, r io.Reader, callbacks Callbacks) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // variable field count
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	headerMap := make(map[string]int, len(header))
	for i, h := range header {
		headerMap[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}

		if err := p.dispatch(fileName, record, headerMap, callbacks); err != nil {
			return fmt.Errorf("row %d: %w", count+2, err)
		}

		count++
		if count%10000 == 0 {
			p.logger.Debug("Progress", "file", fileName, "records", count)
		}
	}

	p.logger.Info("File parsed", "name", fileName, "records", count)

	if callbacks.OnFileComplete != nil {
		if err := callbacks.OnFileComplete(fileName); err != nil {
			return fmt.Errorf("file complete callback: %w", err)
		}
	}

	return nil
}

func (p *Parser) dispatch(fileName string, record []string, headerMap map[string]int, callbacks Callbacks) error {
	switch fileName {
	case "agency.txt":
		if callbacks.OnAgency != nil {
			return callbacks.OnAgency(p.parseAgency(record, headerMap))
		}
	case "stops.txt":
		if callbacks.OnStop != nil {
			return callbacks.OnStop(p.parseStop(record, headerMap))
		}
	case "routes.txt":
		if callbacks.OnRoute != nil {
			route, err := p.parseRoute(record, headerMap)
			if err != nil {
				return err
			}
			return callbacks.OnRoute(route)
		}
	case "trips.txt":
		if callbacks.OnTrip != nil {
			return callbacks.OnTrip(p.parseTrip(record, headerMap))
		}
	case "stop_times.txt":
		if callbacks.OnStopTime != nil {
			stopTime, err := p.parseStopTime(record, headerMap)
			if err != nil {
				return err
			}
			return callbacks.OnStopTime(stopTime)
		}
	case "calendar.txt":
		if callbacks.OnCalendar != nil {
			calendar, err := p.parseCalendar(record, headerMap)
			if err != nil {
				return err
			}
			return callbacks.OnCalendar(calendar)
		}
	case "calendar_dates.txt":
		if callbacks.OnCalendarDate != nil {
			calendarDate, err := p.parseCalendarDate(record, headerMap)
			if err != nil {
				return err
			}
			return callbacks.OnCalendarDate(calendarDate)
		}
	case "shapes.txt":
		if callbacks.OnShape != nil {
			return callbacks.OnShape(p.parseShape(record, headerMap))
		}
	}
	return nil
}

// Helper functions to safely get values from CSV records
func (p *Parser) getString(record []string, headerMap map[string]int, field string) string {
	if idx, ok := headerMap[field]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func (p *Parser) getInt(record []string, headerMap map[string]int, field string, defaultVal int) int {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	return val
}

func (p *Parser) getFloat(record []string, headerMap map[string]int, field string, defaultVal float64) float64 {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// requireInt parses a field that must be a valid integer when present,
// used for closed enums where silent defaulting would corrupt the data.
func (p *Parser) requireInt(record []string, headerMap map[string]int, field string) (int, error) {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, str, err)
	}
	return val, nil
}

// optionalTime parses a GTFS time field, mapping blank to nil.
func (p *Parser) optionalTime(record []string, headerMap map[string]int, field string) (*gtfstime.WallClock, error) {
	str := p.getString(record, headerMap, field)
	if str == "" {
		return nil, nil
	}
	t, err := gtfstime.ParseExtendedTime(str)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return &t, nil
}

func (p *Parser) parseAgency(record []string, headerMap map[string]int) *models.Agency {
	return &models.Agency{
		AgencyID:       p.getString(record, headerMap, "agency_id"),
		AgencyName:     p.getString(record, headerMap, "agency_name"),
		AgencyURL:      p.getString(record, headerMap, "agency_url"),
		AgencyTimezone: p.getString(record, headerMap, "agency_timezone"),
		AgencyLang:     p.getString(record, headerMap, "agency_lang"),
	}
}

func (p *Parser) parseStop(record []string, headerMap map[string]int) *models.Stop {
	return &models.Stop{
		StopID:        p.getString(record, headerMap, "stop_id"),
		StopName:      p.getString(record, headerMap, "stop_name"),
		StopLat:       p.getFloat(record, headerMap, "stop_lat", 0),
		StopLon:       p.getFloat(record, headerMap, "stop_lon", 0),
		ParentStation: p.getString(record, headerMap, "parent_station"),
		LocationType:  p.getInt(record, headerMap, "location_type", 0),
	}
}

func (p *Parser) parseRoute(record []string, headerMap map[string]int) (*models.Route, error) {
	rawType, err := p.requireInt(record, headerMap, "route_type")
	if err != nil {
		return nil, err
	}
	routeType, err := models.ParseRouteType(rawType)
	if err != nil {
		return nil, err
	}

	return &models.Route{
		RouteID:        p.getString(record, headerMap, "route_id"),
		AgencyID:       p.getString(record, headerMap, "agency_id"),
		RouteShortName: p.getString(record, headerMap, "route_short_name"),
		RouteLongName:  p.getString(record, headerMap, "route_long_name"),
		RouteType:      routeType,
		RouteColor:     p.getString(record, headerMap, "route_color"),
		RouteTextColor: p.getString(record, headerMap, "route_text_color"),
	}, nil
}

func (p *Parser) parseTrip(record []string, headerMap map[string]int) *models.Trip {
	return &models.Trip{
		TripID:       p.getString(record, headerMap, "trip_id"),
		RouteID:      p.getString(record, headerMap, "route_id"),
		ServiceID:    p.getString(record, headerMap, "service_id"),
		ShapeID:      p.getString(record, headerMap, "shape_id"),
		TripHeadsign: p.getString(record, headerMap, "trip_headsign"),
		DirectionID:  p.getInt(record, headerMap, "direction_id", 0),
		BlockID:      p.getString(record, headerMap, "block_id"),
	}
}

func (p *Parser) parseStopTime(record []string, headerMap map[string]int) (*models.StopTime, error) {
	arrival, err := p.optionalTime(record, headerMap, "arrival_time")
	if err != nil {
		return nil, err
	}
	departure, err := p.optionalTime(record, headerMap, "departure_time")
	if err != nil {
		return nil, err
	}

	return &models.StopTime{
		TripID:       p.getString(record, headerMap, "trip_id"),
		StopID:       p.getString(record, headerMap, "stop_id"),
		StopSequence: p.getInt(record, headerMap, "stop_sequence", 0),
		Arrival:      arrival,
		Departure:    departure,
		StopHeadsign: p.getString(record, headerMap, "stop_headsign"),
		PickupType:   p.getInt(record, headerMap, "pickup_type", 0),
		DropOffType:  p.getInt(record, headerMap, "drop_off_type", 0),
	}, nil
}

func (p *Parser) parseCalendar(record []string, headerMap map[string]int) (*models.Calendar, error) {
	startDate, err := gtfstime.ParsePackedDate(p.getString(record, headerMap, "start_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	endDate, err := gtfstime.ParsePackedDate(p.getString(record, headerMap, "end_date"))
	if err != nil {
		return nil, fmt.Errorf("parsing end_date: %w", err)
	}

	return &models.Calendar{
		ServiceID: p.getString(record, headerMap, "service_id"),
		Monday:    p.getInt(record, headerMap, "monday", 0) == 1,
		Tuesday:   p.getInt(record, headerMap, "tuesday", 0) == 1,
		Wednesday: p.getInt(record, headerMap, "wednesday", 0) == 1,
		Thursday:  p.getInt(record, headerMap, "thursday", 0) == 1,
		Friday:    p.getInt(record, headerMap, "friday", 0) == 1,
		Saturday:  p.getInt(record, headerMap, "saturday", 0) == 1,
		Sunday:    p.getInt(record, headerMap, "sunday", 0) == 1,
		StartDate: startDate,
		EndDate:   endDate,
	}, nil
}

func (p *Parser) parseCalendarDate(record []string, headerMap map[string]int) (*models.CalendarDate, error) {
	date, err := gtfstime.ParsePackedDate(p.getString(record, headerMap, "date"))
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}
	rawType, err := p.requireInt(record, headerMap, "exception_type")
	if err != nil {
		return nil, err
	}
	exceptionType, err := models.ParseExceptionType(rawType)
	if err != nil {
		return nil, err
	}

	return &models.CalendarDate{
		ServiceID:     p.getString(record, headerMap, "service_id"),
		Date:          date,
		ExceptionType: exceptionType,
	}, nil
}

func (p *Parser) parseShape(record []string, headerMap map[string]int) *models.Shape {
	return &models.Shape{
		ShapeID:           p.getString(record, headerMap, "shape_id"),
		ShapePtLat:        p.getFloat(record, headerMap, "shape_pt_lat", 0),
		ShapePtLon:        p.getFloat(record, headerMap, "shape_pt_lon", 0),
		ShapePtSequence:   p.getInt(record, headerMap, "shape_pt_sequence", 0),
		ShapeDistTraveled: p.getFloat(record, headerMap, "shape_dist_traveled", 0),
	}
}
