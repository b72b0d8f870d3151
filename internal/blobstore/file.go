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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type fileBackend struct {
	root string
}

// FileETag is the ETag the file backend reports for a local file: its
// size and modification time.
func FileETag(fi fs.FileInfo) string {
	return fmt.Sprintf("\"%x-%x\"", fi.Size(), fi.ModTime().UnixNano())
}

func (b *fileBackend) path(loc Location) string {
	if b.root == "" || filepath.IsAbs(loc.Key) {
		return loc.Key
	}
	return filepath.Join(b.root, loc.Key)
}

func (b *fileBackend) open(_ context.Context, loc Location, offset int64, etag string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(loc))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, err
	}

	if etag != "" {
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if FileETag(fi) != etag {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", ErrETagMismatch, loc)
		}
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seek %s: %w", loc, err)
		}
	}
	return f, nil
}
