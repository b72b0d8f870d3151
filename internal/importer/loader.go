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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/fhirimport/internal/blobstore"
	"github.com/cardinalhq/fhirimport/internal/idgen"
	"github.com/cardinalhq/fhirimport/internal/logctx"
	"github.com/cardinalhq/fhirimport/internal/window"
)

const (
	DefaultLoaderBatchSize       = 1000
	DefaultLoaderChannelCapacity = 3000
)

// DefaultMaxConcurrency is the parse and sequencing window size used when
// none is configured.
func DefaultMaxConcurrency() int {
	return 2 * runtime.GOMAXPROCS(0)
}

// ResourceLoader streams a source file and emits one ImportResource per
// line at or after the resume index.
type ResourceLoader struct {
	store  blobstore.Opener
	parser ResourceParser
	errs   ErrorSerializer

	batchSize       int
	channelCapacity int
	maxConcurrency  int
	etag            string
}

type LoaderOption func(*ResourceLoader)

func WithLoaderBatchSize(n int) LoaderOption {
	return func(l *ResourceLoader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func WithLoaderChannelCapacity(n int) LoaderOption {
	return func(l *ResourceLoader) {
		if n >= 0 {
			l.channelCapacity = n
		}
	}
}

func WithLoaderMaxConcurrency(n int) LoaderOption {
	return func(l *ResourceLoader) {
		if n > 0 {
			l.maxConcurrency = n
		}
	}
}

// WithExpectedETag makes the open fail with blobstore.ErrETagMismatch if
// the source changed since the job was created.
func WithExpectedETag(etag string) LoaderOption {
	return func(l *ResourceLoader) {
		l.etag = etag
	}
}

func NewResourceLoader(store blobstore.Opener, parser ResourceParser, errs ErrorSerializer, opts ...LoaderOption) *ResourceLoader {
	l := &ResourceLoader{
		store:           store,
		parser:          parser,
		errs:            errs,
		batchSize:       DefaultLoaderBatchSize,
		channelCapacity: DefaultLoaderChannelCapacity,
		maxConcurrency:  DefaultMaxConcurrency(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Task is the completion handle of a background stage.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Done is closed when the stage has exited and its output channel is closed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the stage exits and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// LoadResources starts loading location in the background. The returned
// channel is always closed when the task finishes, whatever the outcome.
func (l *ResourceLoader) LoadResources(ctx context.Context, location string, startIndex int64, idGen idgen.SequenceGenerator) (<-chan ImportResource, *Task) {
	if idGen == nil {
		idGen = idgen.Identity
	}
	out := make(chan ImportResource, l.channelCapacity)
	task := newTask()
	go func() {
		defer close(task.done)
		task.err = l.load(ctx, out, location, startIndex, idGen)
	}()
	return out, task
}

func (l *ResourceLoader) load(ctx context.Context, out chan<- ImportResource, location string, startIndex int64, idGen idgen.SequenceGenerator) (err error) {
	logger := logctx.FromContext(ctx).With(slog.String("location", location))
	win := window.New[[]ImportResource](l.maxConcurrency)

	defer func() {
		if err != nil {
			win.Wait()
		}
		close(out)
	}()

	logger.Info("Loading resources", slog.Int64("startIndex", startIndex))

	rc, err := l.store.Open(ctx, location, 0, l.etag)
	if err != nil {
		return fmt.Errorf("open %s: %w", location, err)
	}
	defer func() { _ = rc.Close() }()

	reader := bufio.NewReaderSize(rc, 256*1024)
	batch := make([]rawLine, 0, l.batchSize)
	var index int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("load cancelled at line %d: %w", index, err)
		}

		line, rerr := reader.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return fmt.Errorf("read %s at line %d: %w", location, index, rerr)
		}
		if rerr == io.EOF && line == "" {
			break
		}

		if index >= startIndex {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			batch = append(batch, rawLine{content: line, index: index})
		}
		index++

		if len(batch) == l.batchSize {
			if err := l.dispatch(ctx, win, out, batch, idGen); err != nil {
				return err
			}
			batch = make([]rawLine, 0, l.batchSize)
		}
		if rerr == io.EOF {
			break
		}
	}

	if err := l.dispatch(ctx, win, out, batch, idGen); err != nil {
		return err
	}
	for win.Len() > 0 {
		if err := l.forwardOldest(ctx, win, out); err != nil {
			return err
		}
	}

	logger.Info("Loaded resources", slog.Int64("lines", index))
	return nil
}

// dispatch makes room in the window by forwarding the oldest batches, then
// submits batch for parsing.
func (l *ResourceLoader) dispatch(ctx context.Context, win *window.Window[[]ImportResource], out chan<- ImportResource, batch []rawLine, idGen idgen.SequenceGenerator) error {
	for win.Full() {
		if err := l.forwardOldest(ctx, win, out); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load cancelled: %w", err)
	}

	batchesDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "load")))
	return win.Submit(func() ([]ImportResource, error) {
		return l.parseBatch(ctx, batch, idGen), nil
	})
}

func (l *ResourceLoader) forwardOldest(ctx context.Context, win *window.Window[[]ImportResource], out chan<- ImportResource) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load cancelled: %w", err)
	}
	records, err := win.Oldest(ctx)
	if err != nil {
		return fmt.Errorf("await parse batch: %w", err)
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("load cancelled: %w", err)
		}
		select {
		case out <- r:
		case <-ctx.Done():
			return fmt.Errorf("load cancelled: %w", ctx.Err())
		}
	}
	return nil
}

// parseBatch never fails: a line that does not parse becomes an error record.
func (l *ResourceLoader) parseBatch(ctx context.Context, batch []rawLine, idGen idgen.SequenceGenerator) []ImportResource {
	records := make([]ImportResource, 0, len(batch))
	var failed int64
	for _, raw := range batch {
		id := idGen(raw.index)
		res, err := l.parser.Parse(raw.content)
		if err != nil {
			failed++
			records = append(records, ImportResource{
				ID:    id,
				Index: raw.index,
				Error: l.errs.Serialize(raw.index, err),
			})
			continue
		}
		records = append(records, ImportResource{ID: id, Index: raw.index, Resource: res})
	}

	linesParsed.Add(ctx, int64(len(batch)))
	if failed > 0 {
		parseFailures.Add(ctx, failed)
	}
	return records
}
