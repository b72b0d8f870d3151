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


// Package mssql is the SQL Server backend. Rows are written with the
// driver's bulk copy protocol.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/importer/tables"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

func init() {
	sqlstore.Register("mssql", New)
}

var dialect = sqlstore.Dialect{
	Name:  "mssql",
	Quote: quote,
	Types: map[tables.ColumnType]string{
		tables.BigInt:    "BIGINT",
		tables.Text:      "NVARCHAR(MAX)",
		tables.Timestamp: "DATETIME2",
		tables.Bool:      "BIT",
		tables.Bytes:     "VARBINARY(MAX)",
	},
	KeyText: "NVARCHAR(128)",
	Wrap: func(table, create string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN %s; END;", table, create)
	},
}

type Store struct {
	db *sql.DB
}

var _ sqlstore.Store = (*Store)(nil)

func New(ctx context.Context, cfg sqlstore.Config) (sqlstore.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

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
			return fmt.Errorf("mssql: create table: %w", err)
		}
	}
	return nil
}

// BulkCopy streams buf through a bulk insert inside one transaction.
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

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(buf.Table, bulkOptions(), buf.Columns...))
	if err != nil {
		return fmt.Errorf("mssql: prepare bulk copy into %s: %w", buf.Table, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range buf.Rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("mssql: bulk copy into %s: %w", buf.Table, err)
		}
	}
	// The final Exec without arguments flushes the batch.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mssql: flush bulk copy into %s: %w", buf.Table, err)
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n != int64(buf.Len()) {
		err = fmt.Errorf("mssql: bulk copy into %s wrote %d of %d rows", buf.Table, n, buf.Len())
		return err
	}
	return tx.Commit()
}

func bulkOptions() mssql.BulkOptions {
	return mssql.BulkOptions{
		Tablock:          true,
		CheckConstraints: true,
		KeepNulls:        true,
	}
}

func (s *Store) SaveCheckpoint(ctx context.Context, jobID string, cp importer.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
MERGE import_checkpoint WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS job_id, @p2 AS table_name) AS s
ON t.job_id = s.job_id AND t.table_name = s.table_name
WHEN MATCHED THEN UPDATE SET
  end_surrogate_id = CASE WHEN t.end_surrogate_id > @p3 THEN t.end_surrogate_id ELSE @p3 END,
  row_count = t.row_count + @p4,
  updated_at = @p5
WHEN NOT MATCHED THEN
  INSERT (job_id, table_name, end_surrogate_id, row_count, updated_at)
  VALUES (@p1, @p2, @p3, @p4, @p5);`,
		jobID, cp.Table, cp.EndSurrogateID, cp.RowCount, time.Now().UTC())
	return err
}

func (s *Store) ListCheckpoints(ctx context.Context, jobID string) ([]sqlstore.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, table_name, end_surrogate_id, row_count, updated_at
FROM import_checkpoint
WHERE job_id = @p1
ORDER BY table_name`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []sqlstore.CheckpointRecord
	for rows.Next() {
		var rec sqlstore.CheckpointRecord
		if err := rows.Scan(&rec.JobID, &rec.Table, &rec.EndSurrogateID, &rec.RowCount, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}
