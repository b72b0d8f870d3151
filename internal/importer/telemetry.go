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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	linesParsed       metric.Int64Counter
	parseFailures     metric.Int64Counter
	batchesDispatched metric.Int64Counter
	rowsFlushed       metric.Int64Counter
	flushErrors       metric.Int64Counter
	flushDuration     metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/fhirimport/internal/importer")

	var err error
	linesParsed, err = meter.Int64Counter(
		"fhirimport.import.lines.parsed",
		metric.WithDescription("Number of input lines handed to the parser"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.parsed counter: %w", err))
	}

	parseFailures, err = meter.Int64Counter(
		"fhirimport.import.lines.failed",
		metric.WithDescription("Number of input lines that failed to parse"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lines.failed counter: %w", err))
	}

	batchesDispatched, err = meter.Int64Counter(
		"fhirimport.import.batches",
		metric.WithDescription("Number of batches dispatched, by stage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches counter: %w", err))
	}

	rowsFlushed, err = meter.Int64Counter(
		"fhirimport.import.rows.flushed",
		metric.WithDescription("Rows written by bulk copy, by table"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.flushed counter: %w", err))
	}

	flushErrors, err = meter.Int64Counter(
		"fhirimport.import.flush.errors",
		metric.WithDescription("Failed bulk copy operations, by table"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create flush.errors counter: %w", err))
	}

	flushDuration, err = meter.Float64Histogram(
		"fhirimport.import.flush.duration",
		metric.WithDescription("Duration of bulk copy operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create flush.duration histogram: %w", err))
	}
}
