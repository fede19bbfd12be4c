package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tripwatch-data/internal/common/logger"
	"github.com/tripwatch-data/internal/gtfs-static/parser"
	"github.com/tripwatch-data/pkg/gtfs/gtfstime"
	"github.com/tripwatch-data/pkg/gtfs/models"
)

const (
	defaultWorkers  = 2
	defaultQueueCap = 2
)

// Row holds one record's values in the column order of its kind.
type Row []interface{}

// Batch is a group of rows for a single entity, written in one transaction.
type Batch struct {
	Kind Kind
	Rows []Row
}

// BatchWriter persists batches of rows. Implementations commit each batch
// atomically so a failed batch leaves no partial rows behind.
type BatchWriter interface {
	ClearDataset(ctx context.Context, kind Kind, dataset string) error
	WriteBatch(ctx context.Context, batch Batch) error
}

// Importer streams GTFS files into a BatchWriter through a bounded
// producer/consumer pipeline.
type Importer struct {
	writer  BatchWriter
	log     logger.Logger
	dataset string

	workers  int
	queueCap int

	// batchSizeFor is overridable in tests; defaults to Kind.BatchSize.
	batchSizeFor func(Kind) int
}

func New(writer BatchWriter, dataset string, log logger.Logger) *Importer {
	return &Importer{
		writer:       writer,
		log:          log,
		dataset:      dataset,
		workers:      defaultWorkers,
		queueCap:     defaultQueueCap,
		batchSizeFor: Kind.BatchSize,
	}
}

// ImportDir imports every supported GTFS file found in dir, in
// referential-integrity order. Missing files are skipped. Returns the
// number of rows written per kind.
func (im *Importer) ImportDir(ctx context.Context, dir string) (map[Kind]int64, error) {
	counts := make(map[Kind]int64, len(AllKinds))
	for _, kind := range AllKinds {
		path := filepath.Join(dir, kind.FileName())
		if _, err := os.Stat(path); os.IsNotExist(err) {
			im.log.Warn("GTFS file missing, skipping", "file", kind.FileName())
			continue
		}
		n, err := im.ImportFile(ctx, path)
		if err != nil {
			return counts, fmt.Errorf("importing %s: %w", kind.FileName(), err)
		}
		counts[kind] = n
	}
	return counts, nil
}

// ImportFile imports a single GTFS file, replacing the dataset's existing
// rows for that entity. Returns the number of rows written.
func (im *Importer) ImportFile(ctx context.Context, path string) (int64, error) {
	kind, err := KindForFile(path)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportStream(ctx, kind, f)
}

// ImportStream imports one entity's rows from r. The dataset's existing
// rows for the entity are deleted first, then rows are batched and written
// by a pool of consumer workers. The batch channel is closed to signal
// completion; a consumer failure cancels the pipeline so the producer does
// not keep parsing into a dead queue.
func (im *Importer) ImportStream(ctx context.Context, kind Kind, r io.Reader) (int64, error) {
	if err := im.writer.ClearDataset(ctx, kind, im.dataset); err != nil {
		return 0, fmt.Errorf("clearing %s for dataset %s: %w", kind, im.dataset, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan Batch, im.queueCap)
	var (
		written  int64
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)
	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < im.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				if ctx.Err() != nil {
					continue
				}
				if err := im.writer.WriteBatch(ctx, batch); err != nil {
					fail(fmt.Errorf("writing %s batch: %w", batch.Kind, err))
					continue
				}
				atomic.AddInt64(&written, int64(len(batch.Rows)))
			}
		}()
	}

	produceErr := im.produce(ctx, kind, r, batches)
	close(batches)
	wg.Wait()

	if firstErr != nil {
		return atomic.LoadInt64(&written), firstErr
	}
	if produceErr != nil {
		return atomic.LoadInt64(&written), produceErr
	}
	n := atomic.LoadInt64(&written)
	im.log.Info("GTFS file imported", "entity", kind.String(), "rows", n, "dataset", im.dataset)
	return n, nil
}

// produce parses rows and pushes full batches onto the channel, flushing
// the final partial batch when the file ends.
func (im *Importer) produce(ctx context.Context, kind Kind, r io.Reader, batches chan<- Batch) error {
	size := im.batchSizeFor(kind)
	pending := make([]Row, 0, size)

	send := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := Batch{Kind: kind, Rows: pending}
		select {
		case batches <- batch:
			pending = make([]Row, 0, size)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	push := func(row Row) error {
		pending = append(pending, row)
		if len(pending) >= size {
			return send()
		}
		return nil
	}

	p := parser.New(im.log)
	if err := p.ParseFile(ctx, kind.FileName(), r, im.callbacks(kind, push)); err != nil {
		return err
	}
	return send()
}

// callbacks wires the parser's typed records into column-ordered rows for
// the one kind being imported.
func (im *Importer) callbacks(kind Kind, push func(Row) error) parser.Callbacks {
	ds := im.dataset
	cb := parser.Callbacks{}
	switch kind {
	case KindAgency:
		cb.OnAgency = func(a *models.Agency) error {
			return push(Row{ds, a.AgencyID, a.AgencyName, a.AgencyURL, a.AgencyTimezone, nullString(a.AgencyLang)})
		}
	case KindStops:
		cb.OnStop = func(s *models.Stop) error {
			return push(Row{ds, s.StopID, s.StopName, s.StopLat, s.StopLon, nullString(s.ParentStation), s.LocationType})
		}
	case KindRoutes:
		cb.OnRoute = func(rt *models.Route) error {
			return push(Row{ds, rt.RouteID, nullString(rt.AgencyID), nullString(rt.RouteShortName), nullString(rt.RouteLongName), int(rt.RouteType), nullString(rt.RouteColor), nullString(rt.RouteTextColor)})
		}
	case KindCalendar:
		cb.OnCalendar = func(c *models.Calendar) error {
			return push(Row{ds, c.ServiceID, c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday, c.Sunday, c.StartDate, c.EndDate})
		}
	case KindCalendarDates:
		cb.OnCalendarDate = func(cd *models.CalendarDate) error {
			return push(Row{ds, cd.ServiceID, cd.Date, int(cd.ExceptionType)})
		}
	case KindShapes:
		cb.OnShape = func(s *models.Shape) error {
			return push(Row{ds, s.ShapeID, s.ShapePtLat, s.ShapePtLon, s.ShapePtSequence, s.ShapeDistTraveled})
		}
	case KindTrips:
		cb.OnTrip = func(t *models.Trip) error {
			return push(Row{ds, t.TripID, t.RouteID, t.ServiceID, nullString(t.ShapeID), nullString(t.TripHeadsign), t.DirectionID, nullString(t.BlockID)})
		}
	case KindStopTimes:
		cb.OnStopTime = func(st *models.StopTime) error {
			return push(Row{ds, st.TripID, st.StopID, st.StopSequence, nullSeconds(st.Arrival), nullSeconds(st.Departure), nullString(st.StopHeadsign), st.PickupType, st.DropOffType})
		}
	}
	return cb
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullSeconds(wc *gtfstime.WallClock) interface{} {
	if wc == nil {
		return nil
	}
	return wc.SecondsOfDay()
}
