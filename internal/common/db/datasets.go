package db

import (
	"context"
	"fmt"
)

// DatasetInspector reports what datasets are loaded and how many rows each
// entity table carries for them. The import tool uses it to verify a reload.
type DatasetInspector struct {
	db *DB
}

func NewDatasetInspector(db *DB) *DatasetInspector {
	return &DatasetInspector{db: db}
}

// entityTables lists every dataset-partitioned static table.
var entityTables = []string{
	"agency", "stops", "routes", "calendar", "calendar_dates",
	"shapes", "trips", "stop_times",
}

// Datasets returns the distinct dataset labels present in the trips table.
func (di *DatasetInspector) Datasets(ctx context.Context) ([]string, error) {
	rows, err := di.db.conn.QueryContext(ctx,
		`SELECT DISTINCT dataset FROM gtfs.trips ORDER BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("querying datasets: %w", err)
	}
	defer rows.Close()

	var datasets []string
	for rows.Next() {
		var ds string
		if err := rows.Scan(&ds); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datasets: %w", err)
	}
	return datasets, nil
}

// RowCounts returns per-table row counts for one dataset.
func (di *DatasetInspector) RowCounts(ctx context.Context, dataset string) (map[string]int64, error) {
	counts := make(map[string]int64, len(entityTables))
	for _, table := range entityTables {
		// Table names come from the fixed list above, never from input.
		query := fmt.Sprintf("SELECT COUNT(*) FROM gtfs.%s WHERE dataset = $1", table)
		var n int64
		if err := di.db.conn.QueryRowContext(ctx, query, dataset).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting gtfs.%s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
