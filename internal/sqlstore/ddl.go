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


package sqlstore

import (
	"fmt"
	"strings"

	"github.com/cardinalhq/fhirimport/internal/importer/tables"
)

// CheckpointTable stores one row per job and destination table.
var CheckpointTable = tables.Table{Name: "import_checkpoint", Columns: []tables.Column{
	{Name: "job_id", Type: tables.Text},
	{Name: "table_name", Type: tables.Text},
	{Name: "end_surrogate_id", Type: tables.BigInt},
	{Name: "row_count", Type: tables.BigInt},
	{Name: "updated_at", Type: tables.Timestamp},
}}

var checkpointKey = []string{"job_id", "table_name"}

// Dialect renders CREATE TABLE statements for one SQL flavor.
type Dialect struct {
	Name  string
	Quote func(ident string) string
	Types map[tables.ColumnType]string
	// KeyText replaces the Text type for primary key columns.
	KeyText string
	// Wrap turns a plain CREATE TABLE into an idempotent statement.
	Wrap func(table, create string) string
}

// CreateTable renders the DDL for t. key, if non-empty, becomes the
// primary key.
func (d Dialect) CreateTable(t tables.Table, key ...string) (string, error) {
	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, ok := d.Types[c.Type]
		if !ok {
			return "", fmt.Errorf("%s: no type for column %s.%s", d.Name, t.Name, c.Name)
		}
		if isKey[c.Name] && c.Type == tables.Text && d.KeyText != "" {
			typ = d.KeyText
		}
		null := ""
		if isKey[c.Name] {
			null = " NOT NULL"
		}
		parts = append(parts, d.Quote(c.Name)+" "+typ+null)
	}
	if len(key) > 0 {
		quoted := make([]string, len(key))
		for i, k := range key {
			quoted[i] = d.Quote(k)
		}
		parts = append(parts, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(t.Name), strings.Join(parts, ", "))
	if d.Wrap != nil {
		create = d.Wrap(t.Name, create)
	}
	return create, nil
}

// SchemaStatements renders DDL for every import table and the checkpoint
// table.
func (d Dialect) SchemaStatements() ([]string, error) {
	var stmts []string
	for _, t := range tables.All() {
		s, err := d.CreateTable(t)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	s, err := d.CreateTable(CheckpointTable, checkpointKey...)
	if err != nil {
		return nil, err
	}
	return append(stmts, s), nil
}
