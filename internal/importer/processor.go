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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/fhirimport/internal/window"
)

const DefaultProcessorBatchSize = 1000

type processorOptions struct {
	batchSize      int
	maxConcurrency int
}

type ProcessorOption func(*processorOptions)

func WithProcessorBatchSize(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithProcessorMaxConcurrency(n int) ProcessorOption {
	return func(o *processorOptions) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// BulkRawResourceProcessor batches a stream, assigns each item a surrogate
// id and wraps it. Batches are wrapped concurrently and forwarded in the
// order they were dispatched.
type BulkRawResourceProcessor[In, Out any] struct {
	wrap func(In, int64) (Out, error)
	opts processorOptions
}

func NewBulkRawResourceProcessor[In, Out any](wrap func(In, int64) (Out, error), opts ...ProcessorOption) *BulkRawResourceProcessor[In, Out] {
	o := processorOptions{
		batchSize:      DefaultProcessorBatchSize,
		maxConcurrency: DefaultMaxConcurrency(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &BulkRawResourceProcessor[In, Out]{wrap: wrap, opts: o}
}

// ProcessingData drains in until it is closed, writing wrapped items to
// out. Surrogate ids start at startSurrogateID and advance by one per item
// with no gaps. out is closed when ProcessingData returns.
func (p *BulkRawResourceProcessor[In, Out]) ProcessingData(ctx context.Context, in <-chan In, out chan<- Out, startSurrogateID int64) (err error) {
	win := window.New[[]Out](p.opts.maxConcurrency)
	defer func() {
		if err != nil {
			win.Wait()
		}
		close(out)
	}()

	next := startSurrogateID
	batch := make([]In, 0, p.opts.batchSize)
	for {
		var (
			item In
			ok   bool
		)
		select {
		case item, ok = <-in:
		case <-ctx.Done():
			return fmt.Errorf("processing cancelled: %w", ctx.Err())
		}
		if !ok {
			break
		}

		batch = append(batch, item)
		if len(batch) < p.opts.batchSize {
			continue
		}
		if err := p.dispatch(ctx, win, out, batch, next); err != nil {
			return err
		}
		next += int64(len(batch))
		batch = make([]In, 0, p.opts.batchSize)
	}

	if len(batch) > 0 {
		if err := p.dispatch(ctx, win, out, batch, next); err != nil {
			return err
		}
	}
	for win.Len() > 0 {
		if err := p.forwardOldest(ctx, win, out); err != nil {
			return err
		}
	}
	return nil
}

// dispatch submits batch with its first surrogate id. The caller advances
// the counter as soon as dispatch returns, before the batch runs.
func (p *BulkRawResourceProcessor[In, Out]) dispatch(ctx context.Context, win *window.Window[[]Out], out chan<- Out, batch []In, firstID int64) error {
	for win.Full() {
		if err := p.forwardOldest(ctx, win, out); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("processing cancelled: %w", err)
	}

	batchesDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "sequence")))
	return win.Submit(func() ([]Out, error) {
		wrapped := make([]Out, 0, len(batch))
		for i, item := range batch {
			w, err := p.wrap(item, firstID+int64(i))
			if err != nil {
				return nil, fmt.Errorf("wrap surrogate id %d: %w", firstID+int64(i), err)
			}
			wrapped = append(wrapped, w)
		}
		return wrapped, nil
	})
}

func (p *BulkRawResourceProcessor[In, Out]) forwardOldest(ctx context.Context, win *window.Window[[]Out], out chan<- Out) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("processing cancelled: %w", err)
	}
	wrapped, err := win.Oldest(ctx)
	if err != nil {
		return err
	}
	for _, w := range wrapped {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("processing cancelled: %w", err)
		}
		select {
		case out <- w:
		case <-ctx.Done():
			return fmt.Errorf("processing cancelled: %w", ctx.Err())
		}
	}
	return nil
}
