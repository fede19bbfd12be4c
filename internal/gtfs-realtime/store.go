package gtfs_realtime

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/lib/pq"

	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// Store persists decoded feed messages into the gtfs_rt schema and serves
// them back to the reconciler. Each refresh replaces the dataset's realtime
// partition so readers only ever see the latest feed snapshot.
type Store struct {
	db      *db.DB
	dataset string
	logger  logger.Logger
	now     func() time.Time
}

func NewStore(database *db.DB, dataset string, log logger.Logger) *Store {
	return &Store{
		db:      database,
		dataset: dataset,
		logger:  log,
		now:     time.Now,
	}
}

// Refresh extracts trip and stop-time updates from a feed message and
// replaces the dataset's stored realtime rows in one transaction.
// Malformed entities are skipped with a warning rather than failing the
// whole feed.
func (s *Store) Refresh(ctx context.Context, feed *gtfs.FeedMessage) error {
	trips, stopTimes := s.extract(feed)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning realtime transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gtfs_rt.stop_time_updates WHERE dataset = $1`, s.dataset); err != nil {
		return fmt.Errorf("clearing stop time updates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gtfs_rt.trip_updates WHERE dataset = $1`, s.dataset); err != nil {
		return fmt.Errorf("clearing trip updates: %w", err)
	}

	if err := s.copyTripUpdates(ctx, tx, trips); err != nil {
		return err
	}
	if err := s.copyStopTimeUpdates(ctx, tx, stopTimes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing realtime transaction: %w", err)
	}

	s.logger.Debug("Refreshed realtime partition",
		"dataset", s.dataset, "trips", len(trips), "stop_times", len(stopTimes))
	return nil
}

// extract flattens feed entities into update rows, deduplicating on the
// natural keys so the last occurrence in the feed wins.
func (s *Store) extract(feed *gtfs.FeedMessage) ([]models.RealtimeTripUpdate, []models.RealtimeStopTimeUpdate) {
	createdAt := s.now().UTC()
	tripsByID := make(map[string]models.RealtimeTripUpdate)
	stopTimesByKey := make(map[string]models.RealtimeStopTimeUpdate)

	for _, entity := range feed.Entity {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		trip := tu.GetTrip()
		if trip == nil || trip.GetTripId() == "" {
			s.logger.Warn("Skipping trip update without trip id", "entity", entity.GetId())
			continue
		}
		tripID := trip.GetTripId()

		tripsByID[tripID] = models.RealtimeTripUpdate{
			TripID:               tripID,
			RouteID:              trip.GetRouteId(),
			Dataset:              s.dataset,
			StartTime:            trip.GetStartTime(),
			StartDate:            trip.GetStartDate(),
			DirectionID:          int(trip.GetDirectionId()),
			ScheduleRelationship: models.ScheduleRelationship(trip.GetScheduleRelationship().String()),
			CreatedAt:            createdAt,
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() == "" {
				s.logger.Warn("Skipping stop time update without stop id", "trip_id", tripID)
				continue
			}
			update := models.RealtimeStopTimeUpdate{
				StopID:               stu.GetStopId(),
				TripID:               tripID,
				StopSequence:         int(stu.GetStopSequence()),
				Dataset:              s.dataset,
				ScheduleRelationship: models.ScheduleRelationship(stu.GetScheduleRelationship().String()),
				CreatedAt:            createdAt,
			}
			if arr := stu.GetArrival(); arr != nil && arr.Delay != nil {
				d := int(arr.GetDelay())
				update.ArrivalDelay = &d
			}
			if dep := stu.GetDeparture(); dep != nil && dep.Delay != nil {
				d := int(dep.GetDelay())
				update.DepartureDelay = &d
			}
			key := fmt.Sprintf("%s|%s|%d", update.StopID, update.TripID, update.StopSequence)
			stopTimesByKey[key] = update
		}
	}

	trips := make([]models.RealtimeTripUpdate, 0, len(tripsByID))
	for _, t := range tripsByID {
		trips = append(trips, t)
	}
	stopTimes := make([]models.RealtimeStopTimeUpdate, 0, len(stopTimesByKey))
	for _, st := range stopTimesByKey {
		stopTimes = append(stopTimes, st)
	}
	return trips, stopTimes
}

func (s *Store) copyTripUpdates(ctx context.Context, tx *sql.Tx, trips []models.RealtimeTripUpdate) error {
	if len(trips) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("gtfs_rt", "trip_updates",
		"trip_id", "route_id", "dataset", "start_time", "start_date",
		"direction_id", "schedule_relationship", "created_at"))
	if err != nil {
		return fmt.Errorf("preparing trip updates copy: %w", err)
	}
	defer stmt.Close()

	for _, t := range trips {
		if _, err := stmt.ExecContext(ctx, t.TripID, nullIfEmpty(t.RouteID), t.Dataset,
			nullIfEmpty(t.StartTime), nullIfEmpty(t.StartDate), t.DirectionID,
			string(t.ScheduleRelationship), t.CreatedAt); err != nil {
			return fmt.Errorf("copying trip update: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing trip updates copy: %w", err)
	}
	return nil
}

func (s *Store) copyStopTimeUpdates(ctx context.Context, tx *sql.Tx, updates []models.RealtimeStopTimeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("gtfs_rt", "stop_time_updates",
		"stop_id", "trip_id", "stop_sequence", "dataset",
		"arrival_delay", "departure_delay", "schedule_relationship", "created_at"))
	if err != nil {
		return fmt.Errorf("preparing stop time updates copy: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.StopID, u.TripID, u.StopSequence, u.Dataset,
			nullIntPtr(u.ArrivalDelay), nullIntPtr(u.DepartureDelay),
			string(u.ScheduleRelationship), u.CreatedAt); err != nil {
			return fmt.Errorf("copying stop time update: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing stop time updates copy: %w", err)
	}
	return nil
}

// UpdatesForTrips loads the stored stop-time updates for the given trips,
// joined with their trip-level metadata. One round trip regardless of how
// many trips the caller is reconciling.
func (s *Store) UpdatesForTrips(ctx context.Context, tripIDs []string) ([]models.RealtimeUpdatePair, error) {
	if len(tripIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT
			stu.stop_id, stu.trip_id, stu.stop_sequence,
			stu.arrival_delay, stu.departure_delay,
			stu.schedule_relationship, stu.created_at,
			tu.route_id, tu.start_time, tu.start_date,
			tu.direction_id, tu.schedule_relationship, tu.created_at
		FROM gtfs_rt.stop_time_updates stu
		LEFT JOIN gtfs_rt.trip_updates tu
			ON tu.trip_id = stu.trip_id AND tu.dataset = stu.dataset
		WHERE stu.dataset = $1 AND stu.trip_id = ANY($2)
	`, s.dataset, pq.Array(tripIDs))
	if err != nil {
		return nil, fmt.Errorf("querying stop time updates: %w", err)
	}
	defer rows.Close()

	var pairs []models.RealtimeUpdatePair
	for rows.Next() {
		var (
			pair           models.RealtimeUpdatePair
			arrivalDelay   sql.NullInt64
			departureDelay sql.NullInt64
			routeID        sql.NullString
			startTime      sql.NullString
			startDate      sql.NullString
			directionID    sql.NullInt64
			tripRel        sql.NullString
			tripCreatedAt  sql.NullTime
		)
		if err := rows.Scan(
			&pair.StopTime.StopID, &pair.StopTime.TripID, &pair.StopTime.StopSequence,
			&arrivalDelay, &departureDelay,
			&pair.StopTime.ScheduleRelationship, &pair.StopTime.CreatedAt,
			&routeID, &startTime, &startDate,
			&directionID, &tripRel, &tripCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning stop time update: %w", err)
		}
		pair.StopTime.Dataset = s.dataset
		if arrivalDelay.Valid {
			d := int(arrivalDelay.Int64)
			pair.StopTime.ArrivalDelay = &d
		}
		if departureDelay.Valid {
			d := int(departureDelay.Int64)
			pair.StopTime.DepartureDelay = &d
		}
		if tripRel.Valid {
			pair.Trip = &models.RealtimeTripUpdate{
				TripID:               pair.StopTime.TripID,
				RouteID:              routeID.String,
				Dataset:              s.dataset,
				StartTime:            startTime.String,
				StartDate:            startDate.String,
				DirectionID:          int(directionID.Int64),
				ScheduleRelationship: models.ScheduleRelationship(tripRel.String),
				CreatedAt:            tripCreatedAt.Time,
			}
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stop time updates: %w", err)
	}
	return pairs, nil
}

// ActiveTripIDs returns the trips present in the current realtime snapshot.
// The delay recorder uses this to restrict its schedule scan.
func (s *Store) ActiveTripIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT DISTINCT trip_id
		FROM gtfs_rt.stop_time_updates
		WHERE dataset = $1
	`, s.dataset)
	if err != nil {
		return nil, fmt.Errorf("querying active trips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning trip id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active trips: %w", err)
	}
	return ids, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIntPtr(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
