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

package tables

import (
	"time"

	"github.com/cardinalhq/fhirimport/internal/fhir"
	"github.com/cardinalhq/fhirimport/internal/idgen"
	"github.com/cardinalhq/fhirimport/internal/importer"
)

// ChangeTypeCreation marks a resource written by import.
const ChangeTypeCreation = "Creation"

type fillFunc func(buf *importer.TableBuffer, rec *importer.RowProjection) error

type generator struct {
	table Table
	fill  fillFunc
}

var _ importer.TableGenerator = (*generator)(nil)

func (g *generator) TableName() string { return g.table.Name }

func (g *generator) NewBuffer() *importer.TableBuffer {
	return importer.NewTableBuffer(g.table.Name, g.table.ColumnNames()...)
}

func (g *generator) Fill(buf *importer.TableBuffer, rec *importer.RowProjection) error {
	return g.fill(buf, rec)
}

// resourceOnly skips error records and records without search values.
func resourceOnly(fn func(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error) fillFunc {
	return func(buf *importer.TableBuffer, rec *importer.RowProjection) error {
		if rec.IsError() || rec.Resource == nil {
			return nil
		}
		return fn(buf, rec, rec.Resource)
	}
}

type options struct {
	now  func() time.Time
	ulid *idgen.ULIDGenerator
}

type Option func(*options)

// WithClock sets the time stamped on import error rows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// DefaultGenerators returns the generators for every table in All, in
// order. jobID is written on import error rows.
func DefaultGenerators(jobID string, opts ...Option) []importer.TableGenerator {
	o := options{now: time.Now, ulid: idgen.NewULIDGenerator()}
	for _, opt := range opts {
		opt(&o)
	}

	return []importer.TableGenerator{
		&generator{table: resourceTable, fill: resourceOnly(fillResource)},
		&generator{table: compartmentTable, fill: resourceOnly(fillCompartments)},
		&generator{table: tokenTable, fill: resourceOnly(fillTokens)},
		&generator{table: stringTable, fill: resourceOnly(fillStrings)},
		&generator{table: dateTimeTable, fill: resourceOnly(fillDates)},
		&generator{table: referenceTable, fill: resourceOnly(fillReferences)},
		&generator{table: changeDataTable, fill: resourceOnly(fillChangeData)},
		&generator{table: importErrorTable, fill: importErrorFiller(jobID, o)},
	}
}

func fillResource(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	return buf.Append(
		rec.SurrogateID,
		res.ResourceType,
		res.ID,
		res.VersionID,
		rec.ID,
		rec.Index,
		res.LastUpdated,
		false,
		res.Raw,
	)
}

func fillCompartments(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	if rec.Search == nil {
		return nil
	}
	for _, c := range rec.Search.Compartments {
		if err := buf.Append(rec.SurrogateID, res.ResourceType, c.Type, c.ID); err != nil {
			return err
		}
	}
	return nil
}

func fillTokens(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	if rec.Search == nil {
		return nil
	}
	for _, tok := range rec.Search.Tokens {
		if err := buf.Append(rec.SurrogateID, res.ResourceType, tok.Param, tok.System, tok.Code); err != nil {
			return err
		}
	}
	return nil
}

func fillStrings(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	if rec.Search == nil {
		return nil
	}
	for _, s := range rec.Search.Strings {
		if err := buf.Append(rec.SurrogateID, res.ResourceType, s.Param, s.Text, s.Normalized); err != nil {
			return err
		}
	}
	return nil
}

func fillDates(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	if rec.Search == nil {
		return nil
	}
	for _, d := range rec.Search.Dates {
		start, end := d.Start, d.End
		if start.IsZero() {
			start = minTime
		}
		if end.IsZero() {
			end = maxTime
		}
		if err := buf.Append(rec.SurrogateID, res.ResourceType, d.Param, start, end); err != nil {
			return err
		}
	}
	return nil
}

// Open-ended periods are stored with these bounds.
var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)
)

func fillReferences(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	if rec.Search == nil {
		return nil
	}
	for _, r := range rec.Search.References {
		if err := buf.Append(rec.SurrogateID, res.ResourceType, r.Param, r.TargetType, r.TargetID); err != nil {
			return err
		}
	}
	return nil
}

func fillChangeData(buf *importer.TableBuffer, rec *importer.RowProjection, res *fhir.Resource) error {
	return buf.Append(
		rec.SurrogateID,
		res.ResourceType,
		res.ID,
		res.VersionID,
		ChangeTypeCreation,
		res.LastUpdated,
	)
}

func importErrorFiller(jobID string, o options) fillFunc {
	return func(buf *importer.TableBuffer, rec *importer.RowProjection) error {
		if !rec.IsError() {
			return nil
		}
		now := o.now().UTC()
		return buf.Append(
			jobID,
			o.ulid.Make(now),
			rec.Index,
			rec.ID,
			rec.Error.Message,
			rec.Error.OperationOutcome,
			now,
		)
	}
}
