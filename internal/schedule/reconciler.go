package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// RealtimeReader loads realtime update pairs for a set of trips in one bulk
// query. Zero pairs for a trip is valid and means no realtime data.
type RealtimeReader interface {
	UpdatesForTrips(ctx context.Context, tripIDs []string) ([]models.RealtimeUpdatePair, error)
}

// Reconciler merges static schedules with realtime delay updates. Missing or
// malformed realtime data always degrades to the no-data branch; the
// reconciliation path never fails a request over absent updates.
type Reconciler struct {
	reader RealtimeReader
	logger logger.Logger
	now    func() time.Time
}

func NewReconciler(reader RealtimeReader, log logger.Logger) *Reconciler {
	return &Reconciler{
		reader: reader,
		logger: log,
		now:    time.Now,
	}
}

// Reconcile produces one RealTimeSchedule per input schedule, preserving the
// input order. Callers re-apply SortRealtimeDisplayOrder before display so
// that known delays reorder the board.
func (r *Reconciler) Reconcile(ctx context.Context, schedules []StaticSchedule) []RealTimeSchedule {
	tripIDs := distinctTripIDs(schedules)

	var pairs []models.RealtimeUpdatePair
	if len(tripIDs) > 0 {
		var err error
		pairs, err = r.reader.UpdatesForTrips(ctx, tripIDs)
		if err != nil {
			// Degrade to no realtime data rather than failing the request.
			r.logger.Warn("Realtime update lookup failed, serving static schedule only", "error", err)
			pairs = nil
		}
	}

	latest := mostRecentByTrip(pairs)
	now := r.now()

	out := make([]RealTimeSchedule, 0, len(schedules))
	for _, s := range schedules {
		if pair, ok := latest[s.Trip.TripID]; ok {
			out = append(out, r.buildWithUpdate(s, pair, now))
		} else {
			out = append(out, r.buildWithoutUpdate(s, now))
		}
	}
	return out
}

func distinctTripIDs(schedules []StaticSchedule) []string {
	seen := make(map[string]bool, len(schedules))
	ids := make([]string, 0, len(schedules))
	for _, s := range schedules {
		if id := s.Trip.TripID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// mostRecentByTrip keeps exactly one update pair per trip: the one with the
// highest stop_sequence. The highest sequence marks the vehicle's most
// recently confirmed stop, which is the best proxy for current progress when
// update timestamps are coarse. Map iteration order downstream is
// unspecified; the merge step restores deterministic ordering.
func mostRecentByTrip(pairs []models.RealtimeUpdatePair) map[string]models.RealtimeUpdatePair {
	latest := make(map[string]models.RealtimeUpdatePair, len(pairs))
	for _, p := range pairs {
		best, ok := latest[p.StopTime.TripID]
		if !ok || p.StopTime.StopSequence > best.StopTime.StopSequence {
			latest[p.StopTime.TripID] = p
		}
	}
	return latest
}

func (r *Reconciler) buildWithoutUpdate(s StaticSchedule, now time.Time) RealTimeSchedule {
	rts := RealTimeSchedule{
		Static: s,
		Delay:  "-",
		Status: StatusUnknown,
	}
	if s.StopTime.Arrival != nil {
		rts.RealArrival = *s.StopTime.Arrival
		rts.ETAText = etaText(rts.RealArrival, now)
	}
	return rts
}

func (r *Reconciler) buildWithUpdate(s StaticSchedule, pair models.RealtimeUpdatePair, now time.Time) RealTimeSchedule {
	if s.StopTime.Arrival == nil {
		// No scheduled arrival to anchor a prediction on.
		return r.buildWithoutUpdate(s, now)
	}
	scheduled := *s.StopTime.Arrival

	stu := pair.StopTime
	delaySeconds := maxDelay(stu.ArrivalDelay, stu.DepartureDelay)

	rts := RealTimeSchedule{
		Static:         s,
		TripUpdate:     pair.Trip,
		StopTimeUpdate: &stu,
		DelaySeconds:   delaySeconds,
		Delay:          fmt.Sprintf("%d min", floorDiv(delaySeconds, 60)),
		RealArrival:    scheduled.AddSeconds(delaySeconds),
	}
	rts.ETAText = etaText(rts.RealArrival, now)

	if stu.ScheduleRelationship == models.RelationshipNoData {
		rts.Status = StatusNoData
	} else {
		rts.Status = onTimeStatus(rts.RealArrival, scheduled)
	}
	return rts
}

// maxDelay takes the larger of the two delay signals. Arrival and departure
// delay are reported independently and may disagree; the larger value is the
// pessimistic estimate.
func maxDelay(arrival, departure *int) int {
	a, d := 0, 0
	if arrival != nil {
		a = *arrival
	}
	if departure != nil {
		d = *departure
	}
	if a > d {
		return a
	}
	return d
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// dayBoundaryCorrection compensates the raw minute difference between two
// times that straddle midnight: hour 23 on one side and hour 0 on the other
// means the raw difference is off by a full day.
func dayBoundaryCorrection(fromHour, toHour int) float64 {
	switch {
	case toHour == 23 && fromHour == 0:
		return -24 * 60
	case toHour == 0 && fromHour == 23:
		return 24 * 60
	}
	return 0
}

// MinutesUntil is the minutes between the wall clock and a predicted
// arrival, corrected for the midnight boundary. Negative values mean the
// arrival has passed; the recorder treats those entries as due.
func MinutesUntil(arrival gtfstime.WallClock, now time.Time) float64 {
	nowClock := gtfstime.FromTime(now)
	diff := float64(arrival.SecondsOfDay()-nowClock.SecondsOfDay()) / 60
	return diff + dayBoundaryCorrection(nowClock.Hour, arrival.Hour)
}

// etaText renders the predicted arrival relative to the wall clock:
// already departed, about to depart, under a minute out, or N minutes out.
func etaText(arrival gtfstime.WallClock, now time.Time) string {
	diff := MinutesUntil(arrival, now)

	switch {
	case diff <= -1:
		return "Left"
	case diff < 0:
		return "Due"
	case diff < 1:
		return "<1 min"
	default:
		return fmt.Sprintf("%d min", int(diff))
	}
}

// onTimeStatus compares the predicted arrival to the originally scheduled
// one. Thresholds are asymmetric: riders miss an early bus outright but
// merely wait out a late one.
func onTimeStatus(real, scheduled gtfstime.WallClock) OnTimeStatus {
	diff := float64(real.SecondsOfDay()-scheduled.SecondsOfDay()) / 60
	diff += dayBoundaryCorrection(scheduled.Hour, real.Hour)

	switch {
	case diff < -1:
		return StatusEarly
	case diff > 5:
		return StatusLate
	default:
		return StatusOnTime
	}
}
