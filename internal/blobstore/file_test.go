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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRouterOpensFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "in.ndjson", "line0\nline1\n")

	r := NewRouter(DefaultConfig())
	rc, err := r.Open(context.Background(), p, 0, "")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "line0\nline1\n", string(b))

	rc, err = r.Open(context.Background(), "file://"+filepath.ToSlash(p), 6, "")
	require.NoError(t, err)
	b, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "line1\n", string(b))
}

func TestRouterFileRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rel.ndjson", "x")

	cfg := DefaultConfig()
	cfg.FileRoot = dir
	rc, err := NewRouter(cfg).Open(context.Background(), "rel.ndjson", 0, "")
	require.NoError(t, err)
	_ = rc.Close()
}

func TestRouterFileNotFound(t *testing.T) {
	_, err := NewRouter(DefaultConfig()).Open(context.Background(), filepath.Join(t.TempDir(), "missing"), 0, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouterFileETag(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "in.ndjson", "abc\n")
	fi, err := os.Stat(p)
	require.NoError(t, err)

	r := NewRouter(DefaultConfig())
	rc, err := r.Open(context.Background(), p, 0, FileETag(fi))
	require.NoError(t, err)
	_ = rc.Close()

	_, err = r.Open(context.Background(), p, 0, "\"stale\"")
	assert.ErrorIs(t, err, ErrETagMismatch)
}

func TestRouterRejectsUnknownScheme(t *testing.T) {
	_, err := NewRouter(DefaultConfig()).Open(context.Background(), "ftp://h/f", 0, "")
	assert.Error(t, err)
}
