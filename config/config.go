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


package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/fhirimport/internal/blobstore"
	"github.com/cardinalhq/fhirimport/internal/changefeed"
	"github.com/cardinalhq/fhirimport/internal/healthcheck"
	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Import        importer.Config         `mapstructure:"import"`
	Storage       blobstore.Config        `mapstructure:"storage"`
	Database      sqlstore.Config         `mapstructure:"database"`
	PublishEvents changefeed.Config       `mapstructure:"publish_events"`
	Kafka         changefeed.KafkaConfig  `mapstructure:"kafka"`
	PubSub        changefeed.PubSubConfig `mapstructure:"pubsub"`
	Health        healthcheck.Config      `mapstructure:"health"`
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "FHIRIMPORT" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "FHIRIMPORT_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := &Config{
		Import:        importer.DefaultConfig(),
		Storage:       blobstore.DefaultConfig(),
		Database:      sqlstore.DefaultConfig(),
		PublishEvents: changefeed.DefaultConfig(),
		Kafka:         changefeed.DefaultKafkaConfig(),
		PubSub:        changefeed.DefaultPubSubConfig(),
		Health:        healthcheck.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("FHIRIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct && f.Type.String() != "time.Time" {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
