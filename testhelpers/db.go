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


// Package testhelpers provisions throwaway Postgres databases for
// integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fhirimport/internal/sqlstore/postgres/migrations"
)

// server locates a Postgres server able to CREATE DATABASE.
type server struct {
	host, port     string
	user, password string
	baseDB         string
}

func (s server) url(db string) string {
	u := &url.URL{
		Scheme:   "postgresql",
		Host:     s.host + ":" + s.port,
		Path:     db,
		RawQuery: "sslmode=disable",
	}
	if s.password != "" {
		u.User = url.UserPassword(s.user, s.password)
	} else {
		u.User = url.User(s.user)
	}
	return u.String()
}

// SetupTestDB creates a clean database with the import schema migrated
// and drops it when the test ends. FHIRDB_HOST selects an existing
// server; without it a disposable container is started with gnomock.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	srv := locateServer(t)
	dbName := fmt.Sprintf("test_fhirdb_%d_%d", time.Now().Unix(), rand.IntN(10000))

	basePool, err := pgxpool.New(ctx, srv.url(srv.baseDB))
	require.NoError(t, err, "connect to base database")

	_, err = basePool.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		basePool.Close()
		require.NoError(t, err, "create test database %s", dbName)
	}

	testPool, err := pgxpool.New(ctx, srv.url(dbName))
	if err != nil {
		basePool.Close()
		require.NoError(t, err, "connect to test database")
	}

	t.Cleanup(func() {
		testPool.Close()
		if _, err := basePool.Exec(context.Background(), "DROP DATABASE IF EXISTS "+dbName); err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	require.NoError(t, migrations.RunMigrationsUp(ctx, testPool), "run migrations")
	return testPool
}

func locateServer(t *testing.T) server {
	t.Helper()
	if host := os.Getenv("FHIRDB_HOST"); host != "" {
		return server{
			host:     host,
			port:     getEnvOrDefault("FHIRDB_PORT", "5432"),
			user:     getEnvOrDefault("FHIRDB_USER", os.Getenv("USER")),
			password: os.Getenv("FHIRDB_PASSWORD"),
			baseDB:   getEnvOrDefault("FHIRDB_DBNAME", "testing_fhirdb"),
		}
	}

	p := postgres.Preset(
		postgres.WithUser("fhir", "fhir"),
		postgres.WithDatabase("testing_fhirdb"),
		postgres.WithVersion("16"),
	)
	c, err := gnomock.Start(p)
	if err != nil {
		t.Skipf("no FHIRDB_HOST and postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = gnomock.Stop(c) })

	return server{
		host:     c.Host,
		port:     fmt.Sprint(c.DefaultPort()),
		user:     "fhir",
		password: "fhir",
		baseDB:   "testing_fhirdb",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
