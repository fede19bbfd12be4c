package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/tripwatch-data/internal/common/db"
	"github.com/tripwatch-data/internal/common/logger"
)

// Maintenance handles retention cleanup: realtime updates go stale within
// minutes, delay samples are kept for a configurable number of days.
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// CleanupStaleRealtime deletes realtime rows older than the retention
// window. Stale predictions are worse than none, so this runs frequently.
func (m *Maintenance) CleanupStaleRealtime(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	var total int64
	for _, table := range []string{"stop_time_updates", "trip_updates"} {
		res, err := m.db.DB().ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM gtfs_rt.%s WHERE created_at < $1`, table), cutoff)
		if err != nil {
			return total, fmt.Errorf("deleting stale gtfs_rt.%s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if total > 0 {
		m.logger.Info("Cleaned up stale realtime rows",
			"rows_deleted", total, "retention", retention)
	} else {
		m.logger.Debug("No stale realtime rows to clean up")
	}
	return total, nil
}

// CleanupOldDelaySamples trims the delay time series down to the retention
// window.
func (m *Maintenance) CleanupOldDelaySamples(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := m.db.DB().ExecContext(ctx,
		`DELETE FROM analytics.delay_samples WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old delay samples: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		m.logger.Info("Cleaned up old delay samples",
			"rows_deleted", n, "retention", retention)
	} else {
		m.logger.Debug("No old delay samples to clean up")
	}
	return n, nil
}
