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


package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fhirimport/config"
	"github.com/cardinalhq/fhirimport/internal/dbopen"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

func TestSubcommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"import", "migrate", "publish-events", "checkpoints"} {
		assert.Contains(t, names, want)
	}
}

func TestImportFlags(t *testing.T) {
	c, _, err := rootCmd.Find([]string{"import"})
	require.NoError(t, err)
	for _, name := range []string{"location", "resume-index", "start-surrogate-id", "job-id", "etag", "backend", "id-mode"} {
		assert.NotNil(t, c.Flags().Lookup(name), name)
	}
}

func TestOpenStoreBackendOverride(t *testing.T) {
	cfg := &config.Config{
		Database: sqlstore.Config{
			Backend:      "postgres",
			DSN:          "file:" + filepath.Join(t.TempDir(), "fhir.db"),
			EnsureSchema: true,
		},
	}
	store, err := openStore(context.Background(), cfg, "sqlite")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	records, err := store.ListCheckpoints(context.Background(), "job")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenStoreNeedsDSN(t *testing.T) {
	t.Setenv("FHIRDB_URL", "")
	t.Setenv("FHIRDB_PATH", "")
	cfg := &config.Config{Database: sqlstore.Config{Backend: "sqlite"}}
	_, err := openStore(context.Background(), cfg, "")
	assert.ErrorIs(t, err, dbopen.ErrDatabaseNotConfigured)
}
