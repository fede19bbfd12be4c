package schedule

import (
	"sort"

	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
)

// lateNightCutoffHour bounds the window of small-hour times that display at
// the end of the day: a 00:15 arrival belongs after a 23:45 one, but a 03:00
// arrival is an early-morning service and sorts normally.
const lateNightCutoffHour = 2

// displayKey orders times so that trips crossing midnight list in continuous
// chronological order. Times in hours 0 through 2 key past hour 24.
func displayKey(t gtfstime.WallClock) int {
	secs := t.SecondsOfDay()
	if t.Hour <= lateNightCutoffHour {
		secs += 24 * 3600
	}
	return secs
}

// SortDisplayOrder sorts static schedules by scheduled arrival using the
// midnight-aware key. Schedules without an arrival time sort first.
func SortDisplayOrder(schedules []StaticSchedule) {
	sort.SliceStable(schedules, func(i, j int) bool {
		a, b := schedules[i].StopTime.Arrival, schedules[j].StopTime.Arrival
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return displayKey(*a) < displayKey(*b)
	})
}

// SortRealtimeDisplayOrder sorts reconciled schedules by their predicted
// arrival, so known delays reorder the board.
func SortRealtimeDisplayOrder(schedules []RealTimeSchedule) {
	sort.SliceStable(schedules, func(i, j int) bool {
		return displayKey(schedules[i].RealArrival) < displayKey(schedules[j].RealArrival)
	})
}
