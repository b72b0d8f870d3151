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

package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/buger/jsonparser"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// Parser turns one NDJSON line into a Resource. It is stateless and safe
// for concurrent use.
type Parser struct {
	now func() time.Time
}

type ParserOption func(*Parser)

// WithClock sets the time used when a resource carries no meta.lastUpdated.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		p.now = now
	}
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse validates line, extracts the resource envelope and projects its
// search values.
func (p *Parser) Parse(line string) (*Resource, error) {
	data := bytes.TrimSpace([]byte(line))
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrInvalidResource)
	}
	if data[0] != '{' || !json.Valid(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidResource)
	}

	resourceType, err := jsonparser.GetString(data, "resourceType")
	if err != nil || resourceType == "" {
		return nil, fmt.Errorf("%w: resourceType is required", ErrInvalidResource)
	}
	id, err := jsonparser.GetString(data, "id")
	if err != nil || id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidResource)
	}
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: id %q is not a valid logical id", ErrInvalidResource, id)
	}

	res := &Resource{
		ResourceType: resourceType,
		ID:           id,
		VersionID:    "1",
		Raw:          data,
	}

	if v, err := jsonparser.GetString(data, "meta", "versionId"); err == nil && v != "" {
		res.VersionID = v
	} else if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, fmt.Errorf("%w: meta.versionId: %v", ErrInvalidResource, err)
	}

	lastUpdated, err := jsonparser.GetString(data, "meta", "lastUpdated")
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError):
		res.LastUpdated = p.now().UTC()
	case err != nil:
		return nil, fmt.Errorf("%w: meta.lastUpdated: %v", ErrInvalidResource, err)
	default:
		ts, err := time.Parse(time.RFC3339Nano, lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("%w: meta.lastUpdated %q: %v", ErrInvalidResource, lastUpdated, err)
		}
		res.LastUpdated = ts.UTC()
	}

	res.Search, err = Extract(res)
	if err != nil {
		return nil, err
	}
	return res, nil
}
