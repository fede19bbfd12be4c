package models

import (
	"time"

	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
)

// ScheduleRelationship describes how a realtime update relates to the static
// schedule, covering both the trip-level and stop-time-level GTFS-RT enums.
type ScheduleRelationship string

const (
	RelationshipScheduled   ScheduleRelationship = "SCHEDULED"
	RelationshipSkipped     ScheduleRelationship = "SKIPPED"
	RelationshipNoData      ScheduleRelationship = "NO_DATA"
	RelationshipUnscheduled ScheduleRelationship = "UNSCHEDULED"
	RelationshipAdded       ScheduleRelationship = "ADDED"
	RelationshipCanceled    ScheduleRelationship = "CANCELED"
)

// RealtimeStopTimeUpdate is one reported delay observation for a scheduled
// stop visit. The store keeps only the most recent observation per
// (stop_id, trip_id, stop_sequence, dataset).
type RealtimeStopTimeUpdate struct {
	StopID               string
	TripID               string
	StopSequence         int
	Dataset              string
	ArrivalDelay         *int // seconds, nil when not reported
	DepartureDelay       *int // seconds, nil when not reported
	ScheduleRelationship ScheduleRelationship
	CreatedAt            time.Time
}

// RealtimeTripUpdate is per-trip realtime metadata with the same
// most-recent-wins semantics as stop-time updates.
type RealtimeTripUpdate struct {
	TripID               string
	RouteID              string
	Dataset              string
	StartTime            string
	StartDate            string
	DirectionID          int
	ScheduleRelationship ScheduleRelationship
	CreatedAt            time.Time
}

// RealtimeUpdatePair couples a stop-time update with its trip update as
// loaded from storage. Trip may be nil when the feed carried no trip-level
// metadata for the entity.
type RealtimeUpdatePair struct {
	StopTime RealtimeStopTimeUpdate
	Trip     *RealtimeTripUpdate
}

// DelaySample is one append-only time-series point recorded by the delay
// recorder and aggregated downstream.
type DelaySample struct {
	Timestamp     time.Time
	StopID        string
	RouteCode     string
	ScheduledTime gtfstime.WallClock
	DelaySeconds  int
}
