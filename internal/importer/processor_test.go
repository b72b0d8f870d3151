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
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqItem struct {
	pos int
	id  int64
}

func feed(n int) <-chan int {
	ch := make(chan int, n)
	for i := range n {
		ch <- i
	}
	close(ch)
	return ch
}

func TestProcessorSurrogateContiguity(t *testing.T) {
	p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
		return seqItem{pos: pos, id: id}, nil
	}, WithProcessorBatchSize(1000), WithProcessorMaxConcurrency(4))

	out := make(chan seqItem, 10)
	errc := make(chan error, 1)
	go func() { errc <- p.ProcessingData(context.Background(), feed(2500), out, 100) }()
	got := collect(out)
	require.NoError(t, <-errc)

	require.Len(t, got, 2500)
	for i, it := range got {
		assert.Equal(t, i, it.pos)
		assert.Equal(t, int64(100+i), it.id)
	}
	assert.Equal(t, int64(1100), got[1000].id, "first record of batch 2")
	assert.Equal(t, int64(2100), got[2000].id, "first record of batch 3")
}

func TestProcessorOrderUnderRandomLatency(t *testing.T) {
	for _, conc := range []int{2, 3, 8} {
		var inFlight, peak atomic.Int32
		p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Duration(rand.IntN(100)) * time.Microsecond)
			return seqItem{pos: pos, id: id}, nil
		}, WithProcessorBatchSize(3), WithProcessorMaxConcurrency(conc))

		out := make(chan seqItem)
		errc := make(chan error, 1)
		go func() { errc <- p.ProcessingData(context.Background(), feed(300), out, 0) }()
		got := collect(out)
		require.NoError(t, <-errc)

		require.Len(t, got, 300)
		for i, it := range got {
			require.Equal(t, i, it.pos, "concurrency %d", conc)
			require.Equal(t, int64(i), it.id)
		}
		assert.LessOrEqual(t, int(peak.Load()), conc)
	}
}

func TestProcessorEmptyInput(t *testing.T) {
	p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
		return seqItem{pos: pos, id: id}, nil
	})
	out := make(chan seqItem)
	errc := make(chan error, 1)
	go func() { errc <- p.ProcessingData(context.Background(), feed(0), out, 5) }()
	assert.Empty(t, collect(out))
	require.NoError(t, <-errc)
}

func TestProcessorWrapErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
		if pos == 15 {
			return seqItem{}, boom
		}
		return seqItem{pos: pos, id: id}, nil
	}, WithProcessorBatchSize(10), WithProcessorMaxConcurrency(2))

	out := make(chan seqItem, 100)
	err := p.ProcessingData(context.Background(), feed(40), out, 0)
	require.ErrorIs(t, err, boom)

	got := collect(out)
	assert.LessOrEqual(t, len(got), 10, "nothing after the failed batch is forwarded")
	for i, it := range got {
		assert.Equal(t, i, it.pos)
	}
}

func TestProcessorCancellationClosesOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan int)
	p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
		return seqItem{pos: pos, id: id}, nil
	}, WithProcessorBatchSize(2))

	out := make(chan seqItem, 10)
	errc := make(chan error, 1)
	go func() { errc <- p.ProcessingData(ctx, in, out, 0) }()

	in <- 0
	in <- 1
	in <- 2
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
	got := collect(out)
	assert.LessOrEqual(t, len(got), 2)
}

func TestProcessorForwardsNothingOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The first batch finishes only after cancel, so no slot of it may reach out.
	p := NewBulkRawResourceProcessor(func(pos int, id int64) (seqItem, error) {
		if pos == 9 {
			cancel()
		}
		return seqItem{pos: pos, id: id}, nil
	}, WithProcessorBatchSize(10), WithProcessorMaxConcurrency(2))

	out := make(chan seqItem, 100)
	err := p.ProcessingData(ctx, feed(40), out, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, collect(out))
}

func TestWrapImportResourceRejectsEmpty(t *testing.T) {
	_, err := WrapImportResource(ImportResource{Index: 3}, 9)
	assert.Error(t, err)
}
