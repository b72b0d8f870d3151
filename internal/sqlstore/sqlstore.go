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


// Package sqlstore holds the relational backends an import writes to.
// Backends register themselves from init() and are selected by name.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cardinalhq/fhirimport/internal/importer"
)

// ErrUnknownBackend is returned by Open for a name nothing registered.
var ErrUnknownBackend = errors.New("sqlstore: unknown backend")

// Config selects and configures a backend.
type Config struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	// EnsureSchema creates missing tables on open. Postgres uses
	// migrations instead and ignores it.
	EnsureSchema bool `mapstructure:"ensure_schema"`
}

func DefaultConfig() Config {
	return Config{
		Backend:      "postgres",
		EnsureSchema: true,
	}
}

// CheckpointRecord is a persisted Checkpoint for one job and table.
type CheckpointRecord struct {
	JobID          string
	Table          string
	EndSurrogateID int64
	RowCount       int64
	UpdatedAt      time.Time
}

// ChangeRecord is one row of the resource change feed. ID is the
// surrogate id of the change.
type ChangeRecord struct {
	ID              int64
	ResourceType    string
	ResourceID      string
	ResourceVersion string
	ChangeType      string
	EventTime       time.Time
}

// Store is the destination of an import.
type Store interface {
	importer.BulkCopier

	// EnsureSchema creates the import tables if they do not exist.
	EnsureSchema(ctx context.Context) error

	// SaveCheckpoint records cp for jobID. Repeated saves for the same
	// table keep the highest surrogate id and add up row counts.
	SaveCheckpoint(ctx context.Context, jobID string, cp importer.Checkpoint) error

	// ListCheckpoints returns the checkpoints of jobID ordered by table.
	ListCheckpoints(ctx context.Context, jobID string) ([]CheckpointRecord, error)

	Close() error
}

type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available to Open. It panics on an empty name,
// a nil factory, or a duplicate name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if name == "" {
		panic("sqlstore: Register called with empty name")
	}
	if f == nil {
		panic("sqlstore: Register called with nil factory")
	}
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("sqlstore: backend already registered: %q", name))
	}
	factories[name] = f
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Backend == "" {
		return nil, fmt.Errorf("sqlstore: backend not set")
	}

	mu.RLock()
	f, ok := factories[cfg.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}

	store, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure %s schema: %w", cfg.Backend, err)
		}
	}
	return store, nil
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
