package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tripwatch-data/internal/common/logger"
)

type memWriter struct {
	mu      sync.Mutex
	cleared []string
	rows    map[Kind][]Row
	writes  int
	failOn  int // fail the Nth WriteBatch call (1-based), 0 = never
}

func newMemWriter() *memWriter {
	return &memWriter{rows: make(map[Kind][]Row)}
}

func (w *memWriter) ClearDataset(_ context.Context, kind Kind, dataset string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleared = append(w.cleared, kind.String()+":"+dataset)
	return nil
}

func (w *memWriter) WriteBatch(_ context.Context, batch Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failOn != 0 && w.writes >= w.failOn {
		return errors.New("copy rejected")
	}
	w.rows[batch.Kind] = append(w.rows[batch.Kind], batch.Rows...)
	return nil
}

func (w *memWriter) count(kind Kind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows[kind])
}

func stopsCSV(n int) string {
	var b strings.Builder
	b.WriteString("stop_id,stop_name,stop_lat,stop_lon\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "S%d,Stop %d,-37.8%d,144.9%d\n", i, i, i%10, i%10)
	}
	return b.String()
}

func TestImportStreamWritesEveryRow(t *testing.T) {
	const n = 25
	for workers := 1; workers <= 4; workers++ {
		writer := newMemWriter()
		im := New(writer, "metro", logger.Discard())
		im.workers = workers
		im.batchSizeFor = func(Kind) int { return 7 }

		got, err := im.ImportStream(context.Background(), KindStops, strings.NewReader(stopsCSV(n)))
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		if got != n {
			t.Errorf("workers=%d: reported %d rows, want %d", workers, got, n)
		}
		if c := writer.count(KindStops); c != n {
			t.Errorf("workers=%d: writer holds %d rows, want %d", workers, c, n)
		}
	}
}

func TestImportStreamClearsDatasetFirst(t *testing.T) {
	writer := newMemWriter()
	im := New(writer, "metro", logger.Discard())

	if _, err := im.ImportStream(context.Background(), KindStops, strings.NewReader(stopsCSV(3))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.cleared) != 1 || writer.cleared[0] != "stops:metro" {
		t.Errorf("cleared = %v, want exactly [stops:metro]", writer.cleared)
	}
}

func TestImportStreamConsumerFailureStopsProducer(t *testing.T) {
	writer := newMemWriter()
	writer.failOn = 1
	im := New(writer, "metro", logger.Discard())
	// Small batches against a large file: without cancellation the producer
	// would block forever on the bounded channel once consumers give up.
	im.batchSizeFor = func(Kind) int { return 3 }

	_, err := im.ImportStream(context.Background(), KindStops, strings.NewReader(stopsCSV(5000)))
	if err == nil {
		t.Fatal("expected error from failing writer, got nil")
	}
	if !strings.Contains(err.Error(), "copy rejected") {
		t.Errorf("error = %v, want it to wrap the writer failure", err)
	}
}

func TestKindForFile(t *testing.T) {
	kind, err := KindForFile("/feeds/latest/stop_times.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindStopTimes {
		t.Errorf("kind = %v, want stop_times", kind)
	}

	if _, err := KindForFile("fare_rules.txt"); !errors.Is(err, ErrUnsupportedFile) {
		t.Errorf("error = %v, want ErrUnsupportedFile", err)
	}
}

func TestColumnsMatchRowWidth(t *testing.T) {
	for _, kind := range AllKinds {
		if len(kind.Columns()) == 0 {
			t.Errorf("%v has no columns", kind)
		}
		if kind.Table() == "" {
			t.Errorf("%v has no table", kind)
		}
	}
}
