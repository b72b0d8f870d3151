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

import "github.com/cardinalhq/fhirimport/internal/idgen"

// Config holds the tuning knobs of the three stages. Zero values fall back
// to the package defaults.
type Config struct {
	LoaderBatchSize         int `mapstructure:"loader_batch_size"`
	ChannelCapacity         int `mapstructure:"channel_capacity"`
	MaxConcurrency          int `mapstructure:"max_concurrency"`
	ProcessorBatchSize      int `mapstructure:"processor_batch_size"`
	MaxResourceCountInBatch int `mapstructure:"max_resource_count_in_batch"`
	MaxConcurrentFlushes    int `mapstructure:"max_concurrent_flushes"`
	// IDMode selects the sequence generator: index, offset or flake.
	IDMode string `mapstructure:"id_mode"`
	// MachineID pins the flake machine id. Zero derives it from the
	// host's private IP address.
	MachineID uint16 `mapstructure:"machine_id"`
}

func DefaultConfig() Config {
	return Config{
		LoaderBatchSize:         DefaultLoaderBatchSize,
		ChannelCapacity:         DefaultLoaderChannelCapacity,
		ProcessorBatchSize:      DefaultProcessorBatchSize,
		MaxResourceCountInBatch: DefaultMaxResourceCountInBatch,
		MaxConcurrentFlushes:    DefaultMaxConcurrentFlushes,
		IDMode:                  "index",
	}
}

// FlakeOptions configures the flake id mode.
func (c Config) FlakeOptions() []idgen.FlakeOption {
	if c.MachineID == 0 {
		return nil
	}
	return []idgen.FlakeOption{idgen.WithMachineID(c.MachineID)}
}

func (c Config) LoaderOptions() []LoaderOption {
	var opts []LoaderOption
	if c.LoaderBatchSize > 0 {
		opts = append(opts, WithLoaderBatchSize(c.LoaderBatchSize))
	}
	if c.ChannelCapacity > 0 {
		opts = append(opts, WithLoaderChannelCapacity(c.ChannelCapacity))
	}
	if c.MaxConcurrency > 0 {
		opts = append(opts, WithLoaderMaxConcurrency(c.MaxConcurrency))
	}
	return opts
}

func (c Config) PipelineOptions() []PipelineOption {
	var popts []ProcessorOption
	if c.ProcessorBatchSize > 0 {
		popts = append(popts, WithProcessorBatchSize(c.ProcessorBatchSize))
	}
	if c.MaxConcurrency > 0 {
		popts = append(popts, WithProcessorMaxConcurrency(c.MaxConcurrency))
	}
	opts := []PipelineOption{WithProcessorOptions(popts...)}
	if c.ChannelCapacity > 0 {
		opts = append(opts, WithSequencedChannelCapacity(c.ChannelCapacity))
	}
	return opts
}

func (c Config) BulkImporterOptions() []BulkImporterOption {
	var opts []BulkImporterOption
	if c.MaxResourceCountInBatch > 0 {
		opts = append(opts, WithMaxResourceCountInBatch(c.MaxResourceCountInBatch))
	}
	if c.MaxConcurrentFlushes > 0 {
		opts = append(opts, WithMaxConcurrentFlushes(c.MaxConcurrentFlushes))
	}
	return opts
}
