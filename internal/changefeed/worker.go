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


package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/fhirimport/internal/logctx"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

// Source reads the change table and stores the watermark.
type Source interface {
	FetchRecords(ctx context.Context, startID int64, pageSize int) ([]sqlstore.ChangeRecord, error)
	Watermark(ctx context.Context, name string) (next int64, ok bool, err error)
	SetWatermark(ctx context.Context, name string, next int64) error
}

// Locker elects a single publisher.
type Locker interface {
	TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
}

// PublishEventsWorker turns change records into events.
type PublishEventsWorker struct {
	cfg    Config
	source Source
	locker Locker
	sink   Sink

	onLeader   func()
	onProgress func(next int64)
}

type WorkerOption func(*PublishEventsWorker)

// WithLeaderCallback is called once the leader lock is held.
func WithLeaderCallback(fn func()) WorkerOption {
	return func(w *PublishEventsWorker) {
		w.onLeader = fn
	}
}

// WithProgressCallback is called with the new watermark after every
// published page.
func WithProgressCallback(fn func(next int64)) WorkerOption {
	return func(w *PublishEventsWorker) {
		w.onProgress = fn
	}
}

func NewPublishEventsWorker(cfg Config, source Source, locker Locker, sink Sink, opts ...WorkerOption) *PublishEventsWorker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.LockName == "" {
		cfg.LockName = def.LockName
	}
	w := &PublishEventsWorker{
		cfg:    cfg,
		source: source,
		locker: locker,
		sink:   sink,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run publishes until ctx is done. Cancellation is a clean exit and
// returns nil. Fetch and publish failures are logged and retried on the
// next poll without moving the watermark.
func (w *PublishEventsWorker) Run(ctx context.Context) error {
	if !w.cfg.Enabled {
		logctx.FromContext(ctx).Info("Publish events disabled")
		return nil
	}
	ctx = logctx.With(ctx, slog.String("lock", w.cfg.LockName))
	logger := logctx.FromContext(ctx)

	unlock, err := w.waitForLeadership(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer unlock()
	logger.Info("Acquired publish events leadership")
	if w.onLeader != nil {
		w.onLeader()
	}

	next, err := w.startID(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.Info("Publishing change feed", slog.Int64("startID", next))

	for {
		var full bool
		next, full = w.poll(ctx, next)
		if full {
			// More records are likely waiting.
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			logger.Info("Publish events stopped", slog.Int64("nextID", next))
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *PublishEventsWorker) waitForLeadership(ctx context.Context) (func(), error) {
	logger := logctx.FromContext(ctx)
	for {
		unlock, ok, err := w.locker.TryLock(ctx, w.cfg.LockName)
		switch {
		case err != nil:
			logger.Warn("Leader lock attempt failed", slog.Any("error", err))
		case ok:
			return unlock, nil
		default:
			logger.Debug("Another publisher holds the leader lock")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *PublishEventsWorker) startID(ctx context.Context) (int64, error) {
	next, ok, err := w.source.Watermark(ctx, w.cfg.LockName)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		return w.cfg.StartID, nil
	}
	return next, nil
}

// poll publishes one page starting at next and returns the watermark to
// use for the following poll. full reports a full page.
func (w *PublishEventsWorker) poll(ctx context.Context, next int64) (int64, bool) {
	logger := logctx.FromContext(ctx)
	pollCount.Add(ctx, 1)

	records, err := w.source.FetchRecords(ctx, next, w.cfg.PageSize)
	if err != nil {
		if ctx.Err() == nil {
			publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "fetch")))
			logger.Error("Failed to fetch change records", slog.Int64("startID", next), slog.Any("error", err))
		}
		return next, false
	}
	if len(records) == 0 {
		return next, false
	}

	events := make([]Event, 0, len(records))
	for _, rec := range records {
		ev, err := NewEvent(rec, w.cfg.Topic, w.cfg.FhirAccount)
		if err != nil {
			logger.Warn("Skipping change record", slog.Any("error", err))
			continue
		}
		events = append(events, ev)
	}

	if len(events) > 0 {
		if err := w.sink.Publish(ctx, events); err != nil {
			if ctx.Err() == nil {
				publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "publish")))
				logger.Error("Failed to publish change events",
					slog.Int64("startID", next), slog.Int("count", len(events)), slog.Any("error", err))
			}
			return next, false
		}
		eventsPublished.Add(ctx, int64(len(events)))
	}

	advanced := records[len(records)-1].ID + 1
	if err := w.source.SetWatermark(ctx, w.cfg.LockName, advanced); err != nil {
		publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "watermark")))
		logger.Error("Failed to store watermark", slog.Int64("nextID", advanced), slog.Any("error", err))
	}
	logger.Info("Published change events",
		slog.Int("count", len(events)), slog.Int64("nextID", advanced))
	if w.onProgress != nil {
		w.onProgress(advanced)
	}
	return advanced, len(records) == w.cfg.PageSize
}
