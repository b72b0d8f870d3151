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


//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/importer/tables"
	"github.com/cardinalhq/fhirimport/testhelpers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testhelpers.SetupTestDB(t))
}

func TestBulkCopyAndChangeFeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	buf := importer.NewTableBuffer(tables.ResourceChangeDataTable, "surrogate_id", "resource_type", "resource_id", "resource_version", "change_type", "event_time")
	for i := range 5 {
		require.NoError(t, buf.Append(int64(100+i), "Patient", "p", "1", tables.ChangeTypeCreation, ts))
	}
	require.NoError(t, s.BulkCopy(ctx, buf))

	recs, err := s.FetchRecords(ctx, 102, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(102), recs[0].ID)
	assert.Equal(t, int64(103), recs[1].ID)
	assert.True(t, ts.Equal(recs[0].EventTime))

	recs, err = s.FetchRecords(ctx, 105, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCheckpointUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, "job", importer.Checkpoint{Table: "resource", EndSurrogateID: 9999, RowCount: 10000}))
	require.NoError(t, s.SaveCheckpoint(ctx, "job", importer.Checkpoint{Table: "resource", EndSurrogateID: 4999, RowCount: 1}))

	got, err := s.ListCheckpoints(ctx, "job")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9999), got[0].EndSurrogateID)
	assert.Equal(t, int64(10001), got[0].RowCount)
}

func TestWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Watermark(ctx, "feed")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetWatermark(ctx, "feed", 42))
	require.NoError(t, s.SetWatermark(ctx, "feed", 43))
	next, ok, err := s.Watermark(ctx, "feed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(43), next)
}

func TestTryLockIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	unlock, ok, err := s.TryLock(ctx, "leader")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.TryLock(ctx, "leader")
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock2, ok, err := s.TryLock(ctx, "leader")
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}
