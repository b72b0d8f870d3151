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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fhirimport/internal/fhir"
	"github.com/cardinalhq/fhirimport/internal/idgen"
)

func patients(n int, bad ...int) string {
	isBad := map[int]bool{}
	for _, b := range bad {
		isBad[b] = true
	}
	var sb strings.Builder
	for i := range n {
		if isBad[i] {
			sb.WriteString("{not json\n")
			continue
		}
		fmt.Fprintf(&sb, `{"resourceType":"Patient","id":"p%d","meta":{"lastUpdated":"2024-01-01T00:00:00Z"}}`+"\n", i)
	}
	return sb.String()
}

func newTestPipeline(store *memStore, copier BulkCopier, threshold int) *Pipeline {
	loader := NewResourceLoader(store, fhir.NewParser(), fhir.OperationOutcomeSerializer{},
		WithLoaderBatchSize(100), WithLoaderMaxConcurrency(3))
	gens := []TableGenerator{
		&rowPerRecord{table: "resource"},
		&rowPerRecord{table: "import_error", errorsOnly: true},
	}
	importer := NewTableBulkImporter(copier, SearchProjector{}, gens, WithMaxResourceCountInBatch(threshold))
	return NewPipeline(loader, importer,
		WithProcessorOptions(WithProcessorBatchSize(64), WithProcessorMaxConcurrency(3)),
		WithSequencedChannelCapacity(10))
}

func TestRunImport(t *testing.T) {
	store := &memStore{files: map[string]string{"src": patients(1000, 10, 500)}}
	copier := &recordingCopier{}
	p := newTestPipeline(store, copier, 250)

	var progressed []Checkpoint
	res, err := p.RunImport(context.Background(), ImportRequest{
		Location:         "src",
		StartSurrogateID: 5000,
		IDGenerator:      idgen.Identity,
		Progress:         func(cp Checkpoint) { progressed = append(progressed, cp) },
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), res.ImportedRows)
	assert.Equal(t, int64(2), res.FailedLines)
	assert.Equal(t, res.Checkpoints, progressed)
	assert.Equal(t, map[string]int{"resource": 998, "import_error": 2}, copier.rowsByTable())

	var lastResource int64
	for _, cp := range res.Checkpoints {
		if cp.Table == "resource" {
			lastResource = cp.EndSurrogateID
		}
	}
	assert.Equal(t, int64(5999), lastResource)
}

func TestRunImportResume(t *testing.T) {
	store := &memStore{files: map[string]string{"src": patients(300)}}
	copier := &recordingCopier{}
	p := newTestPipeline(store, copier, 1000)

	res, err := p.RunImport(context.Background(), ImportRequest{
		Location:         "src",
		ResumeIndex:      120,
		StartSurrogateID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(180), res.ImportedRows)
	require.Len(t, res.Checkpoints, 1)
	assert.Equal(t, Checkpoint{Table: "resource", EndSurrogateID: 180, RowCount: 180}, res.Checkpoints[0])
}

func TestRunImportStorageFailure(t *testing.T) {
	boom := errors.New("connection refused")
	store := &memStore{files: map[string]string{"src": patients(5000)}}
	copier := &recordingCopier{fn: func(context.Context, *TableBuffer) error { return boom }}
	p := newTestPipeline(store, copier, 100)

	res, err := p.RunImport(context.Background(), ImportRequest{Location: "src"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, res.Checkpoints)
	assert.Zero(t, res.ImportedRows)
}

func TestRunImportMissingSource(t *testing.T) {
	p := newTestPipeline(&memStore{}, &recordingCopier{}, 100)
	_, err := p.RunImport(context.Background(), ImportRequest{Location: "nope"})
	require.Error(t, err)
}

func TestRunImportCancelled(t *testing.T) {
	store := &memStore{files: map[string]string{"src": patients(20000)}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	copier := &recordingCopier{fn: func(ctx context.Context, _ *TableBuffer) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}
	p := newTestPipeline(store, copier, 50)

	done := make(chan error, 1)
	go func() {
		_, err := p.RunImport(ctx, ImportRequest{Location: "src"})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}
