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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/fhirimport/config"
	"github.com/cardinalhq/fhirimport/internal/dbopen"
	"github.com/cardinalhq/fhirimport/internal/sqlstore"

	// Storage backends register themselves with sqlstore.
	_ "github.com/cardinalhq/fhirimport/internal/sqlstore/mssql"
	_ "github.com/cardinalhq/fhirimport/internal/sqlstore/postgres"
	_ "github.com/cardinalhq/fhirimport/internal/sqlstore/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "fhirimport",
	Short: "Bulk import FHIR resources",
	Long:  `Load NDJSON FHIR resources from object storage into a relational store and publish the resulting change feed.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured backend, letting backend override
// the configured one when set.
func openStore(ctx context.Context, cfg *config.Config, backend string) (sqlstore.Store, error) {
	dbcfg := cfg.Database
	if backend != "" {
		dbcfg.Backend = backend
	}
	dsn, err := dbopen.ResolveDSN(dbcfg.Backend, dbcfg.DSN)
	if err != nil {
		return nil, err
	}
	dbcfg.DSN = dsn
	store, err := sqlstore.Open(ctx, dbcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dbcfg.Backend, err)
	}
	return store, nil
}
