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


package changefeed

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/fhirimport/internal/changefeed")

	eventsPublished metric.Int64Counter
	publishErrors   metric.Int64Counter
	pollCount       metric.Int64Counter
)

func init() {
	var err error

	eventsPublished, err = meter.Int64Counter(
		"fhirimport.changefeed.events.published",
		metric.WithDescription("Number of change events handed to the sink"),
	)
	if err != nil {
		panic(err)
	}

	publishErrors, err = meter.Int64Counter(
		"fhirimport.changefeed.errors",
		metric.WithDescription("Number of failed polls, by stage"),
	)
	if err != nil {
		panic(err)
	}

	pollCount, err = meter.Int64Counter(
		"fhirimport.changefeed.polls",
		metric.WithDescription("Number of change table polls"),
	)
	if err != nil {
		panic(err)
	}
}
