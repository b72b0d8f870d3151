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
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cardinalhq/fhirimport/internal/blobstore"
	"github.com/cardinalhq/fhirimport/internal/fhir"
)

// memStore serves sources from memory.
type memStore struct {
	files map[string]string
	etag  string
	fail  error
}

func (m *memStore) Open(_ context.Context, location string, offset int64, etag string) (io.ReadCloser, error) {
	body, ok := m.files[location]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	if etag != "" && etag != m.etag {
		return nil, blobstore.ErrETagMismatch
	}
	var r io.Reader = strings.NewReader(body[offset:])
	if m.fail != nil {
		r = io.MultiReader(r, &errReader{err: m.fail})
	}
	return io.NopCloser(r), nil
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

// fakeParser accepts "ok:<n>" lines and rejects everything else.
type fakeParser struct {
	maxDelay time.Duration
	onParse  func(line string)

	calls    atomic.Int64
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *fakeParser) Parse(line string) (*fhir.Resource, error) {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	if p.onParse != nil {
		p.onParse(line)
	}
	if p.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int64N(int64(p.maxDelay))))
	}
	id, ok := strings.CutPrefix(line, "ok:")
	if !ok {
		return nil, errors.New("not ok")
	}
	return &fhir.Resource{ResourceType: "Basic", ID: id, Raw: []byte(line)}, nil
}

func ndjson(n int, bad ...int) string {
	isBad := make(map[int]bool, len(bad))
	for _, b := range bad {
		isBad[b] = true
	}
	var sb strings.Builder
	for i := range n {
		if isBad[i] {
			fmt.Fprintf(&sb, "garbage-%d\n", i)
			continue
		}
		fmt.Fprintf(&sb, "ok:%d\n", i)
	}
	return sb.String()
}

// rowPerRecord emits one row per successful record.
type rowPerRecord struct {
	table      string
	errorsOnly bool
	fail       func(rec *RowProjection) error
}

func (g *rowPerRecord) TableName() string { return g.table }

func (g *rowPerRecord) NewBuffer() *TableBuffer {
	return NewTableBuffer(g.table, "surrogate_id")
}

func (g *rowPerRecord) Fill(buf *TableBuffer, rec *RowProjection) error {
	if g.fail != nil {
		if err := g.fail(rec); err != nil {
			return err
		}
	}
	if rec.IsError() != g.errorsOnly {
		return nil
	}
	return buf.Append(rec.SurrogateID)
}

// recordingCopier keeps every flushed buffer.
type recordingCopier struct {
	mu       sync.Mutex
	buffers  []*TableBuffer
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	fn       func(ctx context.Context, buf *TableBuffer) error
}

func (c *recordingCopier) BulkCopy(ctx context.Context, buf *TableBuffer) error {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(time.Duration(rand.Int64N(int64(c.delay))))
	}
	if c.fn != nil {
		if err := c.fn(ctx, buf); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.buffers = append(c.buffers, buf)
	c.mu.Unlock()
	return nil
}

func (c *recordingCopier) rowsByTable() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]int{}
	for _, b := range c.buffers {
		out[b.Table] += b.Len()
	}
	return out
}

func collect[T any](ch <-chan T) []T {
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out
}
