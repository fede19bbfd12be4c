package schedule

import (
	"time"

	"github.com/tripwatch-data/pkg/gtfs/models"
)

// FilterActive keeps only schedules whose service runs on the given date.
//
// Two layers apply: the weekly calendar pattern with its validity window,
// then calendar_dates exceptions for that date. A REMOVED exception excludes
// a service that the calendar would otherwise run; an ADDED exception
// resurrects a service whose calendar is inactive on that date.
func FilterActive(schedules []StaticSchedule, date time.Time, exceptions []models.CalendarDate) []StaticSchedule {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	removed := make(map[string]bool)
	added := make(map[string]bool)
	for _, ex := range exceptions {
		if !sameDay(ex.Date, day) {
			continue
		}
		switch ex.ExceptionType {
		case models.ExceptionRemoved:
			removed[ex.ServiceID] = true
		case models.ExceptionAdded:
			added[ex.ServiceID] = true
		}
	}

	active := make([]StaticSchedule, 0, len(schedules))
	for _, s := range schedules {
		serviceID := s.Calendar.ServiceID
		if removed[serviceID] {
			continue
		}
		if !s.Calendar.ActiveOn(day) && !added[serviceID] {
			continue
		}
		active = append(active, s)
	}
	return active
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
