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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/fhirimport/config"
	"github.com/cardinalhq/fhirimport/internal/blobstore"
	"github.com/cardinalhq/fhirimport/internal/fhir"
	"github.com/cardinalhq/fhirimport/internal/idgen"
	"github.com/cardinalhq/fhirimport/internal/importer"
	"github.com/cardinalhq/fhirimport/internal/importer/tables"
	"github.com/cardinalhq/fhirimport/internal/logctx"
)

type importFlags struct {
	location         string
	resumeIndex      int64
	startSurrogateID int64
	jobID            string
	etag             string
	backend          string
	idMode           string
}

func init() {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one NDJSON file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runImport(flags)
		},
	}

	cmd.Flags().StringVar(&flags.location, "location", "", "Source file URL (s3://, gs://, https://<account>.blob.core.windows.net/, file://)")
	cmd.Flags().Int64Var(&flags.resumeIndex, "resume-index", 0, "First line to import; earlier lines are skipped")
	cmd.Flags().Int64Var(&flags.startSurrogateID, "start-surrogate-id", 0, "Surrogate id for the first imported line")
	cmd.Flags().StringVar(&flags.jobID, "job-id", "", "Job id used for checkpoints and import errors (generated if empty)")
	cmd.Flags().StringVar(&flags.etag, "etag", "", "Expected ETag of the source file")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Storage backend, overriding database.backend")
	cmd.Flags().StringVar(&flags.idMode, "id-mode", "", "Sequence id mode (index, offset, flake), overriding import.id_mode")
	_ = cmd.MarkFlagRequired("location")

	rootCmd.AddCommand(cmd)
}

func runImport(flags importFlags) error {
	ctx, doneFx, err := setupTelemetry("fhirimport-import")
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

	jobID := flags.jobID
	if jobID == "" {
		jobID = idgen.NewJobID()
	}
	mode := cfg.Import.IDMode
	if flags.idMode != "" {
		mode = flags.idMode
	}
	seq, err := idgen.FromMode(mode, flags.startSurrogateID, cfg.Import.FlakeOptions()...)
	if err != nil {
		return err
	}

	ctx = logctx.WithLogger(ctx, slog.Default().With(slog.String("jobID", jobID)))
	logger := logctx.FromContext(ctx)

	store, err := openStore(ctx, cfg, flags.backend)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close store", slog.Any("error", err))
		}
	}()

	loaderOpts := cfg.Import.LoaderOptions()
	if flags.etag != "" {
		loaderOpts = append(loaderOpts, importer.WithExpectedETag(flags.etag))
	}
	loader := importer.NewResourceLoader(
		blobstore.NewRouter(cfg.Storage),
		fhir.NewParser(),
		fhir.OperationOutcomeSerializer{},
		loaderOpts...,
	)
	bulk := importer.NewTableBulkImporter(store, nil, tables.DefaultGenerators(jobID), cfg.Import.BulkImporterOptions()...)
	pipeline := importer.NewPipeline(loader, bulk, cfg.Import.PipelineOptions()...)

	var saveErrs []error
	result, err := pipeline.RunImport(ctx, importer.ImportRequest{
		Location:         flags.location,
		ResumeIndex:      flags.resumeIndex,
		StartSurrogateID: flags.startSurrogateID,
		IDGenerator:      seq,
		Progress: func(cp importer.Checkpoint) {
			if err := store.SaveCheckpoint(ctx, jobID, cp); err != nil {
				logger.Error("Failed to save checkpoint",
					slog.String("table", cp.Table),
					slog.Int64("endSurrogateID", cp.EndSurrogateID),
					slog.Any("error", err))
				saveErrs = append(saveErrs, err)
			}
		},
	})
	importDuration.Record(ctx, result.ElapsedTime.Seconds(), metric.WithAttributeSet(commonAttributes),
		metric.WithAttributes(attribute.Bool("success", err == nil)))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "job %s: imported %d rows, %d failed lines, %d checkpoints in %s\n",
		jobID, result.ImportedRows, result.FailedLines, len(result.Checkpoints), result.ElapsedTime)
	return errors.Join(saveErrs...)
}
