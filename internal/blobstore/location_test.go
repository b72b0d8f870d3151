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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "s3://bucket/imports/patients.ndjson", want: Location{Provider: ProviderS3, Bucket: "bucket", Key: "imports/patients.ndjson"}},
		{raw: "gs://gbucket/a.ndjson", want: Location{Provider: ProviderGCP, Bucket: "gbucket", Key: "a.ndjson"}},
		{raw: "azure://acct/container/dir/b.ndjson", want: Location{Provider: ProviderAzure, Account: "acct", Bucket: "container", Key: "dir/b.ndjson"}},
		{raw: "https://acct.blob.core.windows.net/container/b.ndjson", want: Location{Provider: ProviderAzure, Account: "acct", Bucket: "container", Key: "b.ndjson"}},
		{raw: "file:///tmp/x.ndjson", want: Location{Provider: ProviderFile, Key: filepath.FromSlash("/tmp/x.ndjson")}},
		{raw: "data/x.ndjson", want: Location{Provider: ProviderFile, Key: "data/x.ndjson"}},
		{raw: "", wantErr: true},
		{raw: "s3://bucket", wantErr: true},
		{raw: "azure://acct/container", wantErr: true},
		{raw: "https://example.com/a/b", wantErr: true},
		{raw: "ftp://host/file", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationString(t *testing.T) {
	for _, raw := range []string{"s3://b/k/1", "gs://b/k", "azure://a/c/k"} {
		loc, err := ParseLocation(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, loc.String())
	}
}
