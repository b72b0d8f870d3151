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
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/option"
)

// PubSubSink publishes each event as one Pub/Sub message.
type PubSubSink struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	ordered bool
}

var _ Sink = (*PubSubSink)(nil)

func NewPubSubSink(ctx context.Context, cfg PubSubConfig) (*PubSubSink, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub: project id is required")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub: topic id is required")
	}

	// Only set credentials if explicitly provided; ADC covers GCE and Cloud Run.
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	topic.EnableMessageOrdering = cfg.Ordered
	return &PubSubSink{client: client, topic: topic, ordered: cfg.Ordered}, nil
}

// Publish sends every event and waits for all server acknowledgements.
func (s *PubSubSink) Publish(ctx context.Context, events []Event) error {
	results := make([]*pubsub.PublishResult, 0, len(events))
	for _, ev := range events {
		msg, err := toPubSubMessage(ev, s.ordered)
		if err != nil {
			return err
		}
		results = append(results, s.topic.Publish(ctx, msg))
	}

	var errs *multierror.Error
	for i, r := range results {
		if _, err := r.Get(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("event %s: %w", events[i].ID, err))
			if s.ordered {
				s.topic.ResumePublish(events[i].Subject)
			}
		}
	}
	return errs.ErrorOrNil()
}

func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

func toPubSubMessage(ev Event, ordered bool) (*pubsub.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"eventType": ev.EventType,
			"id":        ev.ID,
		},
	}
	if ordered {
		msg.OrderingKey = ev.Subject
	}
	return msg, nil
}
