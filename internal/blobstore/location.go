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
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Providers a Location can resolve to.
const (
	ProviderS3    = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"
	ProviderFile  = "file"
)

// Location is a parsed object address.
//
//	s3://bucket/key
//	gs://bucket/key
//	azure://account/container/blob
//	https://account.blob.core.windows.net/container/blob
//	file:///abs/path or a bare filesystem path
type Location struct {
	Provider string
	Account  string
	Bucket   string
	Key      string
}

func (l Location) String() string {
	switch l.Provider {
	case ProviderS3:
		return "s3://" + l.Bucket + "/" + l.Key
	case ProviderGCP:
		return "gs://" + l.Bucket + "/" + l.Key
	case ProviderAzure:
		return "azure://" + l.Account + "/" + l.Bucket + "/" + l.Key
	default:
		return "file://" + filepath.ToSlash(l.Key)
	}
}

// ParseLocation resolves raw into a Location.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if !strings.Contains(raw, "://") {
		return Location{Provider: ProviderFile, Key: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	path := strings.TrimPrefix(u.Path, "/")

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return bucketKey(ProviderS3, u.Host, path, raw)
	case "gs", "gcs":
		return bucketKey(ProviderGCP, u.Host, path, raw)
	case "azure", "az":
		container, blob, ok := strings.Cut(path, "/")
		if u.Host == "" || !ok || container == "" || blob == "" {
			return Location{}, fmt.Errorf("location %q: want azure://account/container/blob", raw)
		}
		return Location{Provider: ProviderAzure, Account: u.Host, Bucket: container, Key: blob}, nil
	case "https":
		account, ok := strings.CutSuffix(u.Host, ".blob.core.windows.net")
		if !ok || account == "" {
			return Location{}, fmt.Errorf("location %q: unsupported https host", raw)
		}
		container, blob, ok := strings.Cut(path, "/")
		if !ok || container == "" || blob == "" {
			return Location{}, fmt.Errorf("location %q: missing container or blob", raw)
		}
		return Location{Provider: ProviderAzure, Account: account, Bucket: container, Key: blob}, nil
	case "file":
		p := u.Path
		if u.Host != "" {
			p = u.Host + u.Path
		}
		if p == "" {
			return Location{}, fmt.Errorf("location %q: empty path", raw)
		}
		return Location{Provider: ProviderFile, Key: filepath.FromSlash(p)}, nil
	default:
		return Location{}, fmt.Errorf("location %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func bucketKey(provider, bucket, key, raw string) (Location, error) {
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("location %q: missing bucket or key", raw)
	}
	return Location{Provider: provider, Bucket: bucket, Key: key}, nil
}
