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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/cardinalhq/fhirimport/internal/logctx"
)

// KafkaSink writes one message per event, keyed by subject so changes to
// one resource stay on one partition.
type KafkaSink struct {
	writer *kafka.Writer
}

var _ Sink = (*KafkaSink)(nil)

func NewKafkaSink(ctx context.Context, cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}

	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	transport := &kafka.Transport{}
	var mechanism sasl.Mechanism
	if cfg.SASLEnabled {
		if mechanism, err = saslMechanism(cfg); err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}
	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
		transport.TLS = tlsConfig
	}

	if cfg.EnsureTopic {
		if err := syncTopic(ctx, cfg, mechanism, tlsConfig); err != nil {
			return nil, err
		}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression,
		Transport:              transport,
		AllowAutoTopicCreation: !cfg.EnsureTopic,
	}
	return &KafkaSink{writer: w}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		m, err := toKafkaMessage(ev)
		if err != nil {
			return err
		}
		msgs[i] = m
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d events: %w", len(msgs), err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

func toKafkaMessage(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return kafka.Message{
		Key:   []byte(ev.Subject),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
			{Key: "id", Value: []byte(ev.ID)},
		},
		Time: ev.EventTime,
	}, nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", name)
	}
}

func saslMechanism(cfg KafkaConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}

// syncTopic creates the event topic, or fixes its settings, with kafka-sync.
func syncTopic(ctx context.Context, cfg KafkaConfig, mechanism sasl.Mechanism, tlsConfig *tls.Config) error {
	conn := kafkasync.ConnectionConfig{
		BootstrapServers: cfg.Brokers,
		SASLMechanism:    mechanism,
		TLS:              tlsConfig,
	}
	topics := &kafkasync.Config{
		Defaults: kafkasync.Defaults{
			PartitionCount:    max(cfg.PartitionCount, 1),
			ReplicationFactor: max(cfg.ReplicationFactor, 1),
		},
		Topics:           []kafkasync.Topic{{Name: cfg.Topic}},
		OperationTimeout: time.Minute,
	}

	syncer, err := kafkasync.NewSyncer(conn, topics)
	if err != nil {
		return fmt.Errorf("failed to create topic syncer: %w", err)
	}
	if err := syncer.Sync(ctx, kafkasync.SyncModeFix); err != nil {
		return fmt.Errorf("failed to sync topic %s: %w", cfg.Topic, err)
	}
	logctx.FromContext(ctx).Info("Kafka topic ready", slog.String("topic", cfg.Topic))
	return nil
}
