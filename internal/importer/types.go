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

// Package importer implements the three-stage bulk import pipeline: a
// resource loader that parses NDJSON lines concurrently, a sequencer that
// assigns contiguous surrogate ids, and a table bulk loader that buffers
// rows per table and flushes them with bulk copy.
//
// Stages are connected by buffered channels. A stage signals completion by
// closing its output channel, which it does exactly once on every exit
// path. Each stage keeps its in-flight work in a window.Window, which both
// bounds concurrency and forwards results in dispatch order.
package importer

import (
	"context"
	"fmt"

	"github.com/cardinalhq/fhirimport/internal/fhir"
)

// ImportResource is the result of loading one input line. Exactly one of
// Resource and Error is set.
type ImportResource struct {
	// ID comes from the caller's sequence generator.
	ID int64
	// Index is the 0-based line number in the source file.
	Index    int64
	Resource *fhir.Resource
	Error    *fhir.ErrorDescriptor
}

func (r ImportResource) IsError() bool { return r.Error != nil }

// BulkImportResourceWrapper is an ImportResource with its surrogate id.
type BulkImportResourceWrapper struct {
	ImportResource
	SurrogateID int64
}

// WrapImportResource pairs r with surrogate id.
func WrapImportResource(r ImportResource, id int64) (BulkImportResourceWrapper, error) {
	if r.Resource == nil && r.Error == nil {
		return BulkImportResourceWrapper{}, fmt.Errorf("line %d: record has neither resource nor error", r.Index)
	}
	return BulkImportResourceWrapper{ImportResource: r, SurrogateID: id}, nil
}

// TableBuffer accumulates rows bound for one table.
type TableBuffer struct {
	Table   string
	Columns []string
	Rows    [][]any
}

func NewTableBuffer(table string, columns ...string) *TableBuffer {
	return &TableBuffer{Table: table, Columns: columns}
}

// Append adds one row. The number of values must match Columns.
func (b *TableBuffer) Append(values ...any) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("table %s: got %d values for %d columns", b.Table, len(values), len(b.Columns))
	}
	b.Rows = append(b.Rows, values)
	return nil
}

func (b *TableBuffer) Len() int { return len(b.Rows) }

// Checkpoint reports a completed flush: every row of Table produced by
// records up to EndSurrogateID is committed.
type Checkpoint struct {
	Table          string
	EndSurrogateID int64
	RowCount       int64
}

// RowProjection is the per-record view handed to every TableGenerator.
type RowProjection struct {
	BulkImportResourceWrapper
	Search *fhir.SearchValues
}

// ResourceParser parses a single NDJSON line. It must be safe for
// concurrent use.
type ResourceParser interface {
	Parse(line string) (*fhir.Resource, error)
}

// ErrorSerializer converts a per-line failure into a storable descriptor.
type ErrorSerializer interface {
	Serialize(index int64, err error) *fhir.ErrorDescriptor
}

// TableGenerator maps records to rows of one destination table.
type TableGenerator interface {
	TableName() string
	NewBuffer() *TableBuffer
	Fill(buf *TableBuffer, rec *RowProjection) error
}

// BulkCopier writes a whole buffer to its table in one operation.
type BulkCopier interface {
	BulkCopy(ctx context.Context, buf *TableBuffer) error
}

// BulkCopierFunc adapts a function to BulkCopier.
type BulkCopierFunc func(ctx context.Context, buf *TableBuffer) error

func (f BulkCopierFunc) BulkCopy(ctx context.Context, buf *TableBuffer) error { return f(ctx, buf) }

// RowProjector builds the RowProjection for one record.
type RowProjector interface {
	Project(w BulkImportResourceWrapper) (*RowProjection, error)
}

// SearchProjector projects the search values computed at parse time.
type SearchProjector struct{}

func (SearchProjector) Project(w BulkImportResourceWrapper) (*RowProjection, error) {
	p := &RowProjection{BulkImportResourceWrapper: w}
	if w.Resource != nil {
		p.Search = w.Resource.Search
	}
	return p, nil
}

type rawLine struct {
	content string
	index   int64
}
