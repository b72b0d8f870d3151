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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fhirimport/internal/fhir"
	"github.com/cardinalhq/fhirimport/internal/importer"
)

const observationLine = `{"resourceType":"Observation","id":"o1","meta":{"versionId":"2","lastUpdated":"2024-02-03T04:05:06Z"},
"status":"final","code":{"coding":[{"system":"http://loinc.org","code":"1234-5"}],"text":"Glucose"},
"subject":{"reference":"Patient/p1"},"effectivePeriod":{"start":"2024-01-01"}}`

func fill(t *testing.T, gens []importer.TableGenerator, recs ...importer.BulkImportResourceWrapper) map[string]*importer.TableBuffer {
	t.Helper()
	buffers := map[string]*importer.TableBuffer{}
	for _, w := range recs {
		proj, err := importer.SearchProjector{}.Project(w)
		require.NoError(t, err)
		for _, g := range gens {
			buf, ok := buffers[g.TableName()]
			if !ok {
				buf = g.NewBuffer()
				buffers[g.TableName()] = buf
			}
			require.NoError(t, g.Fill(buf, proj))
		}
	}
	return buffers
}

func TestDefaultGeneratorsMatchSchema(t *testing.T) {
	gens := DefaultGenerators("job")
	all := All()
	require.Len(t, gens, len(all))
	for i, g := range gens {
		assert.Equal(t, all[i].Name, g.TableName())
		assert.Equal(t, all[i].ColumnNames(), g.NewBuffer().Columns)
	}
}

func TestGeneratorsForResource(t *testing.T) {
	res, err := fhir.NewParser().Parse(observationLine)
	require.NoError(t, err)

	w := importer.BulkImportResourceWrapper{
		ImportResource: importer.ImportResource{ID: 77, Index: 3, Resource: res},
		SurrogateID:    1001,
	}
	bufs := fill(t, DefaultGenerators("job"), w)

	lastUpdated := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	require.Equal(t, 1, bufs[ResourceTable].Len())
	assert.Equal(t, []any{int64(1001), "Observation", "o1", "2", int64(77), int64(3), lastUpdated, false, res.Raw}, bufs[ResourceTable].Rows[0])

	assert.Equal(t, [][]any{{int64(1001), "Observation", "Patient", "p1"}}, bufs[CompartmentAssignmentTable].Rows)
	assert.Contains(t, bufs[TokenSearchParamTable].Rows, []any{int64(1001), "Observation", "code", "http://loinc.org", "1234-5"})
	assert.Contains(t, bufs[TokenSearchParamTable].Rows, []any{int64(1001), "Observation", "status", "", "final"})
	assert.Equal(t, [][]any{{int64(1001), "Observation", "code-text", "Glucose", "glucose"}}, bufs[StringSearchParamTable].Rows)
	assert.Equal(t, [][]any{{int64(1001), "Observation", "subject", "Patient", "p1"}}, bufs[ReferenceSearchParamTable].Rows)

	require.Equal(t, 1, bufs[DateTimeSearchParamTable].Len())
	row := bufs[DateTimeSearchParamTable].Rows[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), row[3])
	assert.Equal(t, maxTime, row[4])

	assert.Equal(t, [][]any{{int64(1001), "Observation", "o1", "2", ChangeTypeCreation, lastUpdated}}, bufs[ResourceChangeDataTable].Rows)
	assert.Zero(t, bufs[ImportErrorTable].Len())
}

func TestGeneratorsForErrorRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	desc := fhir.OperationOutcomeSerializer{}.Serialize(9, assert.AnError)
	w := importer.BulkImportResourceWrapper{
		ImportResource: importer.ImportResource{ID: 19, Index: 9, Error: desc},
		SurrogateID:    500,
	}
	bufs := fill(t, DefaultGenerators("job-1", WithClock(func() time.Time { return now })), w)

	for _, table := range All() {
		if table.Name == ImportErrorTable {
			continue
		}
		assert.Zero(t, bufs[table.Name].Len(), table.Name)
	}

	require.Equal(t, 1, bufs[ImportErrorTable].Len())
	row := bufs[ImportErrorTable].Rows[0]
	assert.Equal(t, "job-1", row[0])
	assert.Len(t, row[1], 26)
	assert.Equal(t, int64(9), row[2])
	assert.Equal(t, int64(19), row[3])
	assert.Equal(t, desc.Message, row[4])
	assert.Equal(t, desc.OperationOutcome, row[5])
	assert.Equal(t, now, row[6])
}
