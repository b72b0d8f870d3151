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
	"fmt"
	"log/slog"

	"github.com/cardinalhq/fhirimport/internal/logctx"
)

// Sink delivers a page of events. Publish returns only after every event
// is accepted or fails as a whole.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
	Close() error
}

// NewSink builds the sink named by cfg.Sink.
func NewSink(ctx context.Context, cfg Config, kcfg KafkaConfig, pcfg PubSubConfig) (Sink, error) {
	switch cfg.Sink {
	case SinkKafka:
		return NewKafkaSink(ctx, kcfg)
	case SinkPubSub:
		return NewPubSubSink(ctx, pcfg)
	case SinkLog:
		return LogSink{}, nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
	}
}

// LogSink writes events to the context logger.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, events []Event) error {
	logger := logctx.FromContext(ctx)
	for _, ev := range events {
		logger.Info("Change event",
			slog.String("id", ev.ID),
			slog.String("eventType", ev.EventType),
			slog.String("subject", ev.Subject),
			slog.String("dataVersion", ev.DataVersion))
	}
	return nil
}

func (LogSink) Close() error { return nil }
