package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tripwatch-data/internal/common/logger"
)

// PostgresWriter writes batches into the gtfs schema using COPY, one
// transaction per batch.
type PostgresWriter struct {
	db  *sql.DB
	log logger.Logger
}

func NewPostgresWriter(db *sql.DB, log logger.Logger) *PostgresWriter {
	return &PostgresWriter{db: db, log: log}
}

// ClearDataset removes the dataset's existing rows for one entity so a
// reload never mixes old and new feed versions. Other datasets are left
// untouched.
func (w *PostgresWriter) ClearDataset(ctx context.Context, kind Kind, dataset string) error {
	query := fmt.Sprintf(`DELETE FROM gtfs.%s WHERE dataset = $1`, kind.Table())
	res, err := w.db.ExecContext(ctx, query, dataset)
	if err != nil {
		return fmt.Errorf("clearing gtfs.%s: %w", kind.Table(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		w.log.Debug("cleared previous rows", "entity", kind.String(), "dataset", dataset, "rows", n)
	}
	return nil
}

// WriteBatch copies one batch inside its own transaction.
func (w *PostgresWriter) WriteBatch(ctx context.Context, batch Batch) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("gtfs", batch.Kind.Table(), batch.Kind.Columns()...))
	if err != nil {
		return fmt.Errorf("preparing copy for gtfs.%s: %w", batch.Kind.Table(), err)
	}

	for _, row := range batch.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return fmt.Errorf("copying row into gtfs.%s: %w", batch.Kind.Table(), err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing copy for gtfs.%s: %w", batch.Kind.Table(), err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy statement: %w", err)
	}
	return tx.Commit()
}
