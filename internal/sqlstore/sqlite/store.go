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


// Package sqlite is the embedded SQLite backend, used for local runs and
// tests. Timestamps are stored as RFC 3339 text.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/importer/tables"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

func init() {
	sqlstore.Register("sqlite", New)
}

var dialect = sqlstore.Dialect{
	Name:  "sqlite",
	Quote: quote,
	Types: map[tables.ColumnType]string{
		tables.BigInt:    "INTEGER",
		tables.Text:      "TEXT",
		tables.Timestamp: "TEXT",
		tables.Bool:      "INTEGER",
		tables.Bytes:     "BLOB",
	},
	Wrap: func(_, create string) string {
		return strings.Replace(create, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
	},
}

type Store struct {
	db *sql.DB
}

var _ sqlstore.Store = (*Store)(nil)

func New(ctx context.Context, cfg sqlstore.Config) (sqlstore.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent flushes queue on the pool.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts, err := dialect.SchemaStatements()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: %s: %w", stmt, err)
		}
	}
	return nil
}

// BulkCopy inserts every row of buf in one transaction.
func (s *Store) BulkCopy(ctx context.Context, buf *importer.TableBuffer) (err error) {
	if buf.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL(buf.Table, buf.Columns))
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert into %s: %w", buf.Table, err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(buf.Columns))
	for i, row := range buf.Rows {
		for j, v := range row {
			args[j] = toSQLite(v)
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite: insert into %s row %d: %w", buf.Table, i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SaveCheckpoint(ctx context.Context, jobID string, cp importer.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO import_checkpoint (job_id, table_name, end_surrogate_id, row_count, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (job_id, table_name) DO UPDATE SET
  end_surrogate_id = MAX(end_surrogate_id, excluded.end_surrogate_id),
  row_count = row_count + excluded.row_count,
  updated_at = excluded.updated_at`,
		jobID, cp.Table, cp.EndSurrogateID, cp.RowCount, formatTime(time.Now()))
	return err
}

func (s *Store) ListCheckpoints(ctx context.Context, jobID string) ([]sqlstore.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, table_name, end_surrogate_id, row_count, updated_at
FROM import_checkpoint
WHERE job_id = ?
ORDER BY table_name`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []sqlstore.CheckpointRecord
	for rows.Next() {
		var (
			rec     sqlstore.CheckpointRecord
			updated string
		)
		if err := rows.Scan(&rec.JobID, &rec.Table, &rec.EndSurrogateID, &rec.RowCount, &updated); err != nil {
			return nil, err
		}
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("sqlite: checkpoint %s/%s updated_at: %w", rec.JobID, rec.Table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
}

func toSQLite(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatTime(t)
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
