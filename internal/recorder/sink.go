package recorder

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

// PostgresSink appends delay samples into the analytics schema with COPY,
// one transaction per batch.
type PostgresSink struct {
	db      *db.DB
	dataset string
	logger  logger.Logger
}

func NewPostgresSink(database *db.DB, dataset string, log logger.Logger) *PostgresSink {
	return &PostgresSink{db: database, dataset: dataset, logger: log}
}

func (s *PostgresSink) WriteSamples(ctx context.Context, samples []models.DelaySample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning sample transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("analytics", "delay_samples",
		"recorded_at", "dataset", "stop_id", "route_code", "scheduled_secs", "delay_secs"))
	if err != nil {
		return fmt.Errorf("preparing delay samples copy: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx, sample.Timestamp, s.dataset, sample.StopID,
			sample.RouteCode, sample.ScheduledTime.SecondsOfDay(), sample.DelaySeconds); err != nil {
			return fmt.Errorf("copying delay sample: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing delay samples copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing delay samples copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delay samples: %w", err)
	}

	s.logger.Debug("Wrote delay samples", "count", len(samples))
	return nil
}
