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


package dbopen

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"URL", "HOST", "PORT", "USER", "PASSWORD", "DBNAME", "SSLMODE", "PATH"} {
		t.Setenv("FHIRDB_"+k, "")
	}
	t.Setenv("OTEL_SERVICE_NAME", "")
}

func TestURLFromEnvPrefersURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("FHIRDB_URL", "postgresql://x@y/z")
	t.Setenv("FHIRDB_HOST", "ignored")

	got, err := URLFromEnv("postgres", "FHIRDB")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://x@y/z", got)
}

func TestURLFromEnvParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("FHIRDB_HOST", "db")
	t.Setenv("FHIRDB_DBNAME", "fhir")
	t.Setenv("FHIRDB_USER", "importer")
	t.Setenv("FHIRDB_PASSWORD", "p@ss")
	t.Setenv("FHIRDB_SSLMODE", "require")
	t.Setenv("OTEL_SERVICE_NAME", "fhir import")

	got, err := URLFromEnv("postgres", "FHIRDB_")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/fhir", u.Path)
	assert.Equal(t, "importer", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "fhir_import", u.Query().Get("application_name"))
}

func TestURLFromEnvMissing(t *testing.T) {
	clearEnv(t)
	_, err := URLFromEnv("postgres", "FHIRDB")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FHIRDB_HOST")
	assert.Contains(t, err.Error(), "FHIRDB_DBNAME")
}

func TestResolveDSN(t *testing.T) {
	clearEnv(t)

	got, err := ResolveDSN("sqlite", "file:x.db")
	require.NoError(t, err)
	assert.Equal(t, "file:x.db", got)

	_, err = ResolveDSN("sqlite", "")
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)

	_, err = ResolveDSN("oracle", "")
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)

	_, err = ResolveDSN("postgres", "")
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)

	t.Setenv("FHIRDB_URL", "postgresql://h/db")
	got, err = ResolveDSN("postgres", "")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://h/db", got)
}

func TestURLFromEnvMSSQL(t *testing.T) {
	clearEnv(t)
	t.Setenv("FHIRDB_HOST", "sql")
	t.Setenv("FHIRDB_DBNAME", "fhir")
	t.Setenv("FHIRDB_USER", "sa")
	t.Setenv("FHIRDB_PASSWORD", "secret")
	t.Setenv("FHIRDB_SSLMODE", "disable")

	got, err := URLFromEnv("mssql", "FHIRDB")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "sql:1433", u.Host)
	assert.Empty(t, u.Path)
	assert.Equal(t, "fhir", u.Query().Get("database"))
	assert.Equal(t, "disable", u.Query().Get("encrypt"))
}

func TestURLFromEnvSQLite(t *testing.T) {
	clearEnv(t)
	_, err := URLFromEnv("sqlite", "FHIRDB")
	assert.ErrorContains(t, err, "FHIRDB_PATH")

	t.Setenv("FHIRDB_PATH", "/tmp/fhir.db")
	got, err := URLFromEnv("sqlite", "FHIRDB")
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/fhir.db", got)
}
