package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sectorboard/api/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSearcher struct {
	calls    atomic.Int32
	SearchFn func(ctx context.Context, req Request) (Response, error)
}

func (f *fakeSearcher) Search(ctx context.Context, req Request) (Response, error) {
	f.calls.Add(1)
	if f.SearchFn != nil {
		return f.SearchFn(ctx, req)
	}
	return Response{Results: []store.Activity{{ID: "hit-" + req.Text}}, Query: req.Text}, nil
}

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) publish(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func TestQueryEmptyClearsSynchronously(t *testing.T) {
	searcher := &fakeSearcher{}
	rec := &recorder{}
	q := NewQuery(searcher, viewer(), 10*time.Millisecond, rec.publish, nil)
	defer q.Close()

	q.Set("")

	got := rec.snapshot()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Results)
	assert.False(t, got[0].Loading)
	assert.Zero(t, searcher.calls.Load())
}

func TestQueryDebouncesToLatestText(t *testing.T) {
	searcher := &fakeSearcher{}
	q := NewQuery(searcher, viewer(), 30*time.Millisecond, nil, nil)
	defer q.Close()

	q.Set("b")
	q.Set("bu")
	q.Set("bud")

	require.Eventually(t, func() bool {
		r := q.Result()
		return !r.Loading && len(r.Results) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "hit-bud", q.Result().Results[0].ID)
	assert.Equal(t, int32(1), searcher.calls.Load())
}

func TestQueryDropsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	searcher := &fakeSearcher{SearchFn: func(ctx context.Context, req Request) (Response, error) {
		if req.Text == "slow" {
			started <- struct{}{}
			<-release
		}
		return Response{Results: []store.Activity{{ID: "hit-" + req.Text}}}, nil
	}}
	rec := &recorder{}
	q := NewQuery(searcher, viewer(), time.Millisecond, rec.publish, nil)
	defer q.Close()

	q.Set("slow")
	<-started
	q.Set("fast")

	require.Eventually(t, func() bool {
		r := q.Result()
		return !r.Loading && len(r.Results) == 1 && r.Results[0].ID == "hit-fast"
	}, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, "hit-fast", q.Result().Results[0].ID)
	for _, r := range rec.snapshot() {
		for _, a := range r.Results {
			assert.NotEqual(t, "hit-slow", a.ID)
		}
	}
}

func TestQueryEmptyCancelsPendingSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	q := NewQuery(searcher, viewer(), 20*time.Millisecond, nil, nil)
	defer q.Close()

	q.Set("report")
	q.Set("")
	time.Sleep(60 * time.Millisecond)

	assert.Zero(t, searcher.calls.Load())
	assert.Empty(t, q.Result().Results)
}

func TestQueryCloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	searcher := &fakeSearcher{SearchFn: func(ctx context.Context, req Request) (Response, error) {
		started <- struct{}{}
		<-ctx.Done()
		return Response{}, ctx.Err()
	}}
	q := NewQuery(searcher, viewer(), time.Millisecond, nil, nil)

	q.Set("anything")
	<-started
	q.Close()

	q.Set("after close")
	assert.Equal(t, int32(1), searcher.calls.Load())
}

func TestQuerySurfacesSearchError(t *testing.T) {
	searcher := &fakeSearcher{SearchFn: func(context.Context, Request) (Response, error) {
		return Response{}, assert.AnError
	}}
	q := NewQuery(searcher, viewer(), time.Millisecond, nil, nil)
	defer q.Close()

	q.Set("x")
	require.Eventually(t, func() bool { return q.Result().Err != nil }, time.Second, 5*time.Millisecond)
	assert.Empty(t, q.Result().Results)
}
