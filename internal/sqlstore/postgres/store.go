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


// Package postgres is the Postgres backend. Rows are written with COPY and
// the schema is managed by the migrations subpackage. It also serves the
// change feed and its leader lock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
	"github.com/cardinalhq/fhirimport/internal/sqlstore/postgres/migrations"
)

func init() {
	sqlstore.Register("postgres", New)
}

type Store struct {
	pool *pgxpool.Pool
}

var _ sqlstore.Store = (*Store)(nil)

// NewConnectionPool creates a pgx pool for url with query tracing.
func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "fhirimport",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

func New(ctx context.Context, cfg sqlstore.Config) (sqlstore.Store, error) {
	pool, err := NewConnectionPool(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

// NewStore wraps an existing pool. The store owns the pool from then on.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema applies pending migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return migrations.RunMigrationsUp(ctx, s.pool)
}

// BulkCopy writes buf with COPY FROM.
func (s *Store) BulkCopy(ctx context.Context, buf *importer.TableBuffer) error {
	if buf.Len() == 0 {
		return nil
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{buf.Table}, buf.Columns, pgx.CopyFromRows(buf.Rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", buf.Table, err)
	}
	if n != int64(buf.Len()) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", buf.Table, n, buf.Len())
	}
	return nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, jobID string, cp importer.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO import_checkpoint (job_id, table_name, end_surrogate_id, row_count, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (job_id, table_name) DO UPDATE SET
  end_surrogate_id = GREATEST(import_checkpoint.end_surrogate_id, EXCLUDED.end_surrogate_id),
  row_count = import_checkpoint.row_count + EXCLUDED.row_count,
  updated_at = EXCLUDED.updated_at`,
		jobID, cp.Table, cp.EndSurrogateID, cp.RowCount)
	return err
}

func (s *Store) ListCheckpoints(ctx context.Context, jobID string) ([]sqlstore.CheckpointRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT job_id, table_name, end_surrogate_id, row_count, updated_at
FROM import_checkpoint
WHERE job_id = $1
ORDER BY table_name`, jobID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (sqlstore.CheckpointRecord, error) {
		var rec sqlstore.CheckpointRecord
		err := row.Scan(&rec.JobID, &rec.Table, &rec.EndSurrogateID, &rec.RowCount, &rec.UpdatedAt)
		return rec, err
	})
}

// FetchRecords returns up to pageSize change records with id >= startID,
// in id order.
func (s *Store) FetchRecords(ctx context.Context, startID int64, pageSize int) ([]sqlstore.ChangeRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT surrogate_id, resource_type, resource_id, resource_version, change_type, event_time
FROM resource_change_data
WHERE surrogate_id >= $1
ORDER BY surrogate_id
LIMIT $2`, startID, pageSize)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (sqlstore.ChangeRecord, error) {
		var rec sqlstore.ChangeRecord
		err := row.Scan(&rec.ID, &rec.ResourceType, &rec.ResourceID, &rec.ResourceVersion, &rec.ChangeType, &rec.EventTime)
		return rec, err
	})
}

// Watermark returns the next change id to publish for name. ok is false
// if nothing was stored yet.
func (s *Store) Watermark(ctx context.Context, name string) (next int64, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT next_id FROM change_feed_watermark WHERE name = $1`, name).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return next, true, nil
}

func (s *Store) SetWatermark(ctx context.Context, name string, next int64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO change_feed_watermark (name, next_id, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET next_id = EXCLUDED.next_id, updated_at = EXCLUDED.updated_at`,
		name, next, time.Now().UTC())
	return err
}
