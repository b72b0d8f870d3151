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
	"time"
)

// Sink names accepted by Config.Sink.
const (
	SinkKafka  = "kafka"
	SinkPubSub = "pubsub"
	SinkLog    = "log"
)

// Config controls the publisher.
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PageSize     int           `mapstructure:"page_size"`
	// StartID is used when no watermark has been stored.
	StartID int64 `mapstructure:"start_id"`
	// Topic is copied into every event.
	Topic       string `mapstructure:"topic"`
	FhirAccount string `mapstructure:"fhir_account"`
	// LockName names the leader lock and the stored watermark.
	LockName string `mapstructure:"lock_name"`
	Sink     string `mapstructure:"sink"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		PollInterval: 5 * time.Second,
		PageSize:     25,
		StartID:      1,
		LockName:     "publish-events",
		Sink:         SinkKafka,
	}
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"`

	// EnsureTopic creates or fixes the topic on startup.
	EnsureTopic       bool `mapstructure:"ensure_topic"`
	PartitionCount    int  `mapstructure:"partition_count"`
	ReplicationFactor int  `mapstructure:"replication_factor"`
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		Topic:         "fhir-resource-events",
		SASLMechanism: "SCRAM-SHA-256",
		BatchSize:     100,
		BatchTimeout:  100 * time.Millisecond,
		Compression:   "snappy",
	}
}

// PubSubConfig configures the Google Cloud Pub/Sub sink.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	TopicID         string `mapstructure:"topic_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	// Ordered publishes with the event subject as ordering key.
	Ordered bool `mapstructure:"ordered"`
}

func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		TopicID: "fhir-resource-events",
	}
}
