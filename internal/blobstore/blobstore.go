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

// Package blobstore opens import source files as byte streams from object
// storage or the local filesystem.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrETagMismatch is returned when the object changed since the
	// caller recorded its ETag.
	ErrETagMismatch = errors.New("blobstore: etag mismatch")
)

var (
	openCount      metric.Int64Counter
	downloadErrors metric.Int64Counter
	downloadBytes  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/fhirimport/internal/blobstore")

	var err error
	openCount, err = meter.Int64Counter(
		"fhirimport.blob.open.count",
		metric.WithDescription("Number of object streams opened"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create blob.open.count counter: %w", err))
	}

	downloadErrors, err = meter.Int64Counter(
		"fhirimport.blob.download.errors",
		metric.WithDescription("Number of failed object opens or reads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create blob.download.errors counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"fhirimport.blob.download.bytes",
		metric.WithDescription("Bytes read from opened objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create blob.download.bytes counter: %w", err))
	}
}

// Opener streams an object starting at offset. A non-empty etag makes the
// open conditional: the call fails with ErrETagMismatch if the object's
// current ETag differs.
type Opener interface {
	Open(ctx context.Context, location string, offset int64, etag string) (io.ReadCloser, error)
}

type backend interface {
	open(ctx context.Context, loc Location, offset int64, etag string) (io.ReadCloser, error)
}

// Router dispatches each location to the backend for its provider. Cloud
// backends are built on first use so a file-only run never loads cloud
// credentials.
type Router struct {
	cfg Config

	mu       sync.Mutex
	backends map[string]backend
}

var _ Opener = (*Router)(nil)

func NewRouter(cfg Config) *Router {
	return &Router{
		cfg:      cfg,
		backends: make(map[string]backend),
	}
}

func (r *Router) Open(ctx context.Context, location string, offset int64, etag string) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	b, err := r.backend(ctx, loc.Provider)
	if err != nil {
		return nil, err
	}

	rc, err := b.open(ctx, loc, offset, etag)
	if err != nil {
		downloadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", loc.Provider),
			attribute.String("reason", errorReason(err)),
		))
		return nil, err
	}
	openCount.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", loc.Provider)))
	return &countingReader{ctx: ctx, rc: rc, provider: loc.Provider}, nil
}

func (r *Router) backend(ctx context.Context, provider string) (backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[provider]; ok {
		return b, nil
	}

	var (
		b   backend
		err error
	)
	switch provider {
	case ProviderFile:
		b = &fileBackend{root: r.cfg.FileRoot}
	case ProviderS3:
		b, err = newS3Backend(ctx, r.cfg.S3, false)
	case ProviderGCP:
		b, err = newS3Backend(ctx, r.cfg.GCS, true)
	case ProviderAzure:
		b, err = newAzureBackend(r.cfg.Azure)
	default:
		err = fmt.Errorf("unsupported provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}
	r.backends[provider] = b
	return b, nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrETagMismatch):
		return "etag_mismatch"
	default:
		return "unknown"
	}
}

// countingReader records bytes read once the stream is closed.
type countingReader struct {
	ctx      context.Context
	rc       io.ReadCloser
	provider string
	n        int64
	failed   bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF && !c.failed {
		c.failed = true
		downloadErrors.Add(c.ctx, 1, metric.WithAttributes(
			attribute.String("provider", c.provider),
			attribute.String("reason", "read_failed"),
		))
	}
	return n, err
}

func (c *countingReader) Close() error {
	downloadBytes.Add(c.ctx, c.n, metric.WithAttributes(attribute.String("provider", c.provider)))
	return c.rc.Close()
}
