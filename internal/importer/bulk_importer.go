// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/fhirimport/internal/logctx"
	"github.com/cardinalhq/fhirimport/internal/window"
)

const (
	DefaultMaxResourceCountInBatch = 10000
	DefaultMaxConcurrentFlushes    = 3
)

// TableBulkImporter routes wrappers through an ordered list of table
// generators and bulk copies each table's rows once enough accumulate.
type TableBulkImporter struct {
	copier     BulkCopier
	projector  RowProjector
	generators []TableGenerator

	threshold  int
	maxFlushes int
}

type BulkImporterOption func(*TableBulkImporter)

// WithMaxResourceCountInBatch sets the row count at which a table buffer
// is flushed.
func WithMaxResourceCountInBatch(n int) BulkImporterOption {
	return func(b *TableBulkImporter) {
		if n > 0 {
			b.threshold = n
		}
	}
}

func WithMaxConcurrentFlushes(n int) BulkImporterOption {
	return func(b *TableBulkImporter) {
		if n > 0 {
			b.maxFlushes = n
		}
	}
}

func NewTableBulkImporter(copier BulkCopier, projector RowProjector, generators []TableGenerator, opts ...BulkImporterOption) *TableBulkImporter {
	if projector == nil {
		projector = SearchProjector{}
	}
	b := &TableBulkImporter{
		copier:     copier,
		projector:  projector,
		generators: generators,
		threshold:  DefaultMaxResourceCountInBatch,
		maxFlushes: DefaultMaxConcurrentFlushes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type flushWindow = window.Window[Checkpoint]

// ImportResource consumes in until it is closed and returns the number of
// rows written across all tables. progress is called from this goroutine
// once per successful flush, in the order flushes were scheduled.
//
// On a storage error the failed flush and every flush queued behind it go
// unreported. On cancellation, flushes that completed ahead of the first
// failure are still reported before the error is returned.
func (b *TableBulkImporter) ImportResource(ctx context.Context, in <-chan BulkImportResourceWrapper, progress func(Checkpoint)) (int64, error) {
	logger := logctx.FromContext(ctx)
	win := window.New[Checkpoint](b.maxFlushes)
	buffers := make(map[string]*TableBuffer, len(b.generators))

	var imported int64
	report := func(cp Checkpoint) {
		imported += cp.RowCount
		if progress != nil {
			progress(cp)
		}
	}

	var lastSurrogateID int64
	for {
		var (
			w  BulkImportResourceWrapper
			ok bool
		)
		select {
		case w, ok = <-in:
		case <-ctx.Done():
			return imported, b.abort(win, report, fmt.Errorf("bulk import cancelled: %w", ctx.Err()))
		}
		if !ok {
			break
		}
		lastSurrogateID = w.SurrogateID

		proj, err := b.projector.Project(w)
		if err != nil {
			return imported, b.abort(win, report, fmt.Errorf("project surrogate id %d: %w", w.SurrogateID, err))
		}
		for _, g := range b.generators {
			name := g.TableName()
			buf, ok := buffers[name]
			if !ok {
				buf = g.NewBuffer()
				buffers[name] = buf
			}
			if err := g.Fill(buf, proj); err != nil {
				return imported, b.abort(win, report, fmt.Errorf("fill %s for surrogate id %d: %w", name, w.SurrogateID, err))
			}
		}

		for _, g := range b.generators {
			name := g.TableName()
			buf := buffers[name]
			if buf == nil || buf.Len() < b.threshold {
				continue
			}
			delete(buffers, name)
			if err := b.schedule(ctx, win, buf, lastSurrogateID, report); err != nil {
				return imported, err
			}
		}
	}

	for _, g := range b.generators {
		name := g.TableName()
		buf := buffers[name]
		delete(buffers, name)
		if buf == nil || buf.Len() == 0 {
			continue
		}
		if err := b.schedule(ctx, win, buf, lastSurrogateID, report); err != nil {
			return imported, err
		}
	}

	if err := b.settle(win, report); err != nil {
		return imported, err
	}
	logger.Info("Bulk import complete",
		slog.Int64("rows", imported),
		slog.Int64("endSurrogateId", lastSurrogateID))
	return imported, nil
}

// schedule frees a window slot, reporting the oldest flush, then submits
// buf. It returns a non-nil error only after the window has been emptied.
func (b *TableBulkImporter) schedule(ctx context.Context, win *flushWindow, buf *TableBuffer, endSurrogateID int64, report func(Checkpoint)) error {
	for win.Full() {
		// Flushes observe ctx through the copier, so awaiting without it
		// still ends promptly on cancellation.
		cp, err := win.Oldest(context.Background())
		if err != nil {
			win.Wait()
			return err
		}
		report(cp)
	}
	if err := ctx.Err(); err != nil {
		return b.abort(win, report, fmt.Errorf("bulk import cancelled: %w", err))
	}

	return win.Submit(func() (Checkpoint, error) {
		return b.flush(ctx, buf, endSurrogateID)
	})
}

// abort settles in-flight flushes and returns cause combined with the
// first flush error, if any.
func (b *TableBulkImporter) abort(win *flushWindow, report func(Checkpoint), cause error) error {
	if err := b.settle(win, report); err != nil && !errors.Is(err, context.Canceled) {
		return multierror.Append(cause, err)
	}
	return cause
}

// settle awaits every in-flight flush in FIFO order, reporting each until
// the first failure. Results behind a failure are discarded.
func (b *TableBulkImporter) settle(win *flushWindow, report func(Checkpoint)) error {
	for win.Len() > 0 {
		cp, err := win.Oldest(context.Background())
		if err != nil {
			win.Wait()
			return err
		}
		report(cp)
	}
	return nil
}

func (b *TableBulkImporter) flush(ctx context.Context, buf *TableBuffer, endSurrogateID int64) (Checkpoint, error) {
	attrs := metric.WithAttributes(attribute.String("table", buf.Table))
	start := time.Now()
	err := b.copier.BulkCopy(ctx, buf)
	flushDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		flushErrors.Add(ctx, 1, attrs)
		return Checkpoint{}, fmt.Errorf("bulk copy %d rows into %s: %w", buf.Len(), buf.Table, err)
	}

	rowsFlushed.Add(ctx, int64(buf.Len()), attrs)
	logctx.FromContext(ctx).Debug("Flushed table buffer",
		slog.String("table", buf.Table),
		slog.Int("rows", buf.Len()),
		slog.Int64("endSurrogateId", endSurrogateID))
	return Checkpoint{
		Table:          buf.Table,
		EndSurrogateID: endSurrogateID,
		RowCount:       int64(buf.Len()),
	}, nil
}
