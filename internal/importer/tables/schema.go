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

// Package tables defines the destination tables of an import and the
// generators that fill them.
package tables

// ColumnType is a storage-neutral column type.
type ColumnType int

const (
	BigInt ColumnType = iota
	Text
	Timestamp
	Bool
	Bytes
)

type Column struct {
	Name string
	Type ColumnType
}

type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames lists the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

const (
	ResourceTable              = "resource"
	CompartmentAssignmentTable = "compartment_assignment"
	TokenSearchParamTable      = "token_search_param"
	StringSearchParamTable     = "string_search_param"
	DateTimeSearchParamTable   = "date_time_search_param"
	ReferenceSearchParamTable  = "reference_search_param"
	ResourceChangeDataTable    = "resource_change_data"
	ImportErrorTable           = "import_error"
)

var (
	resourceTable = Table{Name: ResourceTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"resource_id", Text},
		{"version", Text},
		{"sequence_id", BigInt},
		{"line_index", BigInt},
		{"last_updated", Timestamp},
		{"is_deleted", Bool},
		{"raw_resource", Bytes},
	}}
	compartmentTable = Table{Name: CompartmentAssignmentTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"compartment_type", Text},
		{"compartment_id", Text},
	}}
	tokenTable = Table{Name: TokenSearchParamTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"param", Text},
		{"system", Text},
		{"code", Text},
	}}
	stringTable = Table{Name: StringSearchParamTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"param", Text},
		{"text", Text},
		{"text_normalized", Text},
	}}
	dateTimeTable = Table{Name: DateTimeSearchParamTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"param", Text},
		{"start_date_time", Timestamp},
		{"end_date_time", Timestamp},
	}}
	referenceTable = Table{Name: ReferenceSearchParamTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"param", Text},
		{"target_resource_type", Text},
		{"target_resource_id", Text},
	}}
	changeDataTable = Table{Name: ResourceChangeDataTable, Columns: []Column{
		{"surrogate_id", BigInt},
		{"resource_type", Text},
		{"resource_id", Text},
		{"resource_version", Text},
		{"change_type", Text},
		{"event_time", Timestamp},
	}}
	importErrorTable = Table{Name: ImportErrorTable, Columns: []Column{
		{"job_id", Text},
		{"error_id", Text},
		{"line_index", BigInt},
		{"sequence_id", BigInt},
		{"message", Text},
		{"operation_outcome", Text},
		{"created_at", Timestamp},
	}}
)

// All returns every destination table in generator order.
func All() []Table {
	return []Table{
		resourceTable,
		compartmentTable,
		tokenTable,
		stringTable,
		dateTimeTable,
		referenceTable,
		changeDataTable,
		importErrorTable,
	}
}
