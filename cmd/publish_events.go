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
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/fhirimport/config"
	"github.com/cardinalhq/fhirimport/internal/changefeed"
	"github.com/cardinalhq/fhirimport/internal/healthcheck"
	"github.com/cardinalhq/fhirimport/internal/sqlstore/postgres"
)

func init() {
	cmd := &cobra.Command{
		Use:   "publish-events",
		Short: "Publish resource change events",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPublishEvents()
		},
	}

	rootCmd.AddCommand(cmd)
}

func runPublishEvents() error {
	ctx, doneFx, err := setupTelemetry("fhirimport-publish-events")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Publishing always needs the change table and advisory locks.
	cfg.PublishEvents.Enabled = true

	health := healthcheck.NewServer(cfg.Health)

	store, err := openStore(ctx, cfg, "postgres")
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close store", slog.Any("error", err))
		}
	}()
	pg, ok := store.(*postgres.Store)
	if !ok {
		return fmt.Errorf("publish-events needs the postgres backend, got %T", store)
	}

	sink, err := changefeed.NewSink(ctx, cfg.PublishEvents, cfg.Kafka, cfg.PubSub)
	if err != nil {
		return fmt.Errorf("failed to create event sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Warn("Failed to close event sink", slog.Any("error", err))
		}
	}()

	health.SetStatus(healthcheck.StatusHealthy)
	worker := changefeed.NewPublishEventsWorker(cfg.PublishEvents, pg, pg, sink,
		changefeed.WithLeaderCallback(func() { health.SetReady(true) }),
		changefeed.WithProgressCallback(health.RecordProgress))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Health.Enabled {
		g.Go(func() error { return health.Start(gctx) })
	}
	g.Go(func() error {
		// The health server exits with the worker.
		defer stop()
		if err := worker.Run(gctx); err != nil {
			health.SetStatus(healthcheck.StatusUnhealthy)
			return err
		}
		return nil
	})
	return g.Wait()
}
