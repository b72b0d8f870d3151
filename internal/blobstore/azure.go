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

package blobstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type azureBackend struct {
	cfg    AzureConfig
	cred   azcore.TokenCredential
	tracer trace.Tracer

	sync.RWMutex
	clients map[string]*azblob.Client
}

func newAzureBackend(cfg AzureConfig) (*azureBackend, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	if cfg.EndpointTemplate == "" {
		cfg.EndpointTemplate = DefaultConfig().Azure.EndpointTemplate
	}
	return &azureBackend{
		cfg:     cfg,
		cred:    cred,
		tracer:  otel.Tracer("github.com/cardinalhq/fhirimport/internal/blobstore"),
		clients: make(map[string]*azblob.Client),
	}, nil
}

func (b *azureBackend) client(account string) (*azblob.Client, error) {
	b.RLock()
	c, ok := b.clients[account]
	b.RUnlock()
	if ok {
		return c, nil
	}

	b.Lock()
	defer b.Unlock()
	if c, ok = b.clients[account]; ok {
		return c, nil
	}
	c, err := azblob.NewClient(fmt.Sprintf(b.cfg.EndpointTemplate, account), b.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	b.clients[account] = c
	return c, nil
}

func (b *azureBackend) open(ctx context.Context, loc Location, offset int64, etag string) (io.ReadCloser, error) {
	ctx, span := b.tracer.Start(ctx, "blobstore.azureOpen",
		trace.WithAttributes(
			attribute.String("account", loc.Account),
			attribute.String("container", loc.Bucket),
			attribute.String("blob", loc.Key),
			attribute.Int64("offset", offset),
		),
	)
	defer span.End()

	c, err := b.client(loc.Account)
	if err != nil {
		return nil, err
	}

	opts := &azblob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: offset},
	}
	if etag != "" {
		match := azcore.ETag(etag)
		opts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: &match},
		}
	}

	resp, err := c.DownloadStream(ctx, loc.Bucket, loc.Key, opts)
	if err != nil {
		switch {
		case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		case bloberror.HasCode(err, bloberror.ConditionNotMet):
			return nil, fmt.Errorf("%w: %s", ErrETagMismatch, loc)
		}
		return nil, fmt.Errorf("download blob %s: %w", loc, err)
	}
	return resp.Body, nil
}
