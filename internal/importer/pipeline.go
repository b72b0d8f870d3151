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
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/fhirimport/internal/idgen"
	"github.com/cardinalhq/fhirimport/internal/logctx"
)

// ImportRequest describes one run over one source file.
type ImportRequest struct {
	Location string
	// ResumeIndex is the first line to import; earlier lines are skipped.
	ResumeIndex int64
	// StartSurrogateID is the surrogate id given to the first imported line.
	StartSurrogateID int64
	IDGenerator      idgen.SequenceGenerator
	// Progress, if set, receives every checkpoint as it is reported.
	Progress func(Checkpoint)
}

type ImportResult struct {
	ImportedRows int64
	Checkpoints  []Checkpoint
	FailedLines  int64
	ElapsedTime  time.Duration
}

// Pipeline composes loader, sequencer and bulk importer.
type Pipeline struct {
	loader          *ResourceLoader
	importer        *TableBulkImporter
	processorOpts   []ProcessorOption
	channelCapacity int
}

type PipelineOption func(*Pipeline)

// WithProcessorOptions configures the sequencing stage.
func WithProcessorOptions(opts ...ProcessorOption) PipelineOption {
	return func(p *Pipeline) {
		p.processorOpts = append(p.processorOpts, opts...)
	}
}

// WithSequencedChannelCapacity sizes the queue between the sequencer and
// the bulk importer.
func WithSequencedChannelCapacity(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.channelCapacity = n
		}
	}
}

func NewPipeline(loader *ResourceLoader, importer *TableBulkImporter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		loader:          loader,
		importer:        importer,
		channelCapacity: DefaultLoaderChannelCapacity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunImport runs all three stages concurrently. The first stage error
// cancels the others and is returned once every stage has exited.
func (p *Pipeline) RunImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	start := time.Now()
	ctx = logctx.With(ctx, slog.String("location", req.Location))
	logger := logctx.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)

	records, loadTask := p.loader.LoadResources(gctx, req.Location, req.ResumeIndex, req.IDGenerator)
	g.Go(loadTask.Wait)

	var failed atomic.Int64
	wrapped := make(chan BulkImportResourceWrapper, p.channelCapacity)
	processor := NewBulkRawResourceProcessor(func(r ImportResource, id int64) (BulkImportResourceWrapper, error) {
		if r.IsError() {
			failed.Add(1)
		}
		return WrapImportResource(r, id)
	}, p.processorOpts...)
	g.Go(func() error {
		return processor.ProcessingData(gctx, records, wrapped, req.StartSurrogateID)
	})

	var result ImportResult
	g.Go(func() error {
		n, err := p.importer.ImportResource(gctx, wrapped, func(cp Checkpoint) {
			result.Checkpoints = append(result.Checkpoints, cp)
			if req.Progress != nil {
				req.Progress(cp)
			}
		})
		result.ImportedRows = n
		return err
	})

	err := g.Wait()
	result.FailedLines = failed.Load()
	result.ElapsedTime = time.Since(start)
	if err != nil {
		logger.Error("Import failed",
			slog.Any("error", err),
			slog.Int64("importedRows", result.ImportedRows),
			slog.Int("checkpoints", len(result.Checkpoints)))
		return result, fmt.Errorf("import %s: %w", req.Location, err)
	}

	logger.Info("Import complete",
		slog.Int64("importedRows", result.ImportedRows),
		slog.Int64("failedLines", result.FailedLines),
		slog.Duration("elapsed", result.ElapsedTime))
	return result, nil
}
