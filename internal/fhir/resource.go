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

// Package fhir holds the small slice of the clinical resource model the
// import pipeline needs: a parsed resource envelope, a per-line error
// descriptor, and the search values projected into index tables.
package fhir

import (
	"errors"
	"time"
)

// ErrInvalidResource is wrapped by every parse failure.
var ErrInvalidResource = errors.New("invalid resource")

// Resource is the envelope of one parsed NDJSON line. Raw holds the
// original JSON bytes and is stored as-is.
type Resource struct {
	ResourceType string
	ID           string
	VersionID    string
	LastUpdated  time.Time
	Raw          []byte
	Search       *SearchValues
}

// ErrorDescriptor is the storable form of a line that failed to parse.
type ErrorDescriptor struct {
	Index            int64
	Message          string
	OperationOutcome string
}
