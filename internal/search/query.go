package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/store"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	searchTimeout   = 5 * time.Second
)

// Searcher runs one search. *Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, req Request) (Response, error)
}

// Result is what a Query currently shows.
type Result struct {
	Text    string           `json:"query"`
	Results []store.Activity `json:"results"`
	Loading bool             `json:"loading"`
	Err     error            `json:"-"`
}

// Query is a per-session debounced search box. Only the response to the most recent
// Set is ever published; earlier in-flight requests are cancelled and their results dropped.
type Query struct {
	searcher Searcher
	viewer   store.Viewer
	delay    time.Duration
	publish  func(Result)
	logger   *zap.Logger

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	last   Result
	closed bool
	wg     sync.WaitGroup
}

// NewQuery returns an idle query. publish is called with the query lock held and must
// not call back into the Query.
func NewQuery(searcher Searcher, viewer store.Viewer, delay time.Duration, publish func(Result), logger *zap.Logger) *Query {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if publish == nil {
		publish = func(Result) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Query{
		searcher: searcher,
		viewer:   viewer,
		delay:    delay,
		publish:  publish,
		logger:   logger,
		last:     Result{Results: []store.Activity{}},
	}
}

// Set replaces the query text. Empty text clears the results synchronously without a search.
func (q *Query) Set(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	q.seq++
	seq := q.seq
	q.stopPendingLocked()

	if strings.TrimSpace(text) == "" {
		q.setLocked(Result{Text: text, Results: []store.Activity{}})
		return
	}

	q.setLocked(Result{Text: text, Results: q.last.Results, Loading: true})
	q.wg.Add(1)
	q.timer = time.AfterFunc(q.delay, func() {
		defer q.wg.Done()
		q.run(seq, text)
	})
}

// Result returns the currently published result.
func (q *Query) Result() Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// Close cancels any pending or in-flight search and waits for it to finish.
func (q *Query) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.stopPendingLocked()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Query) run(seq uint64, text string) {
	q.mu.Lock()
	if q.closed || seq != q.seq {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	q.cancel = cancel
	q.mu.Unlock()

	resp, err := q.searcher.Search(ctx, Request{Text: text, Viewer: q.viewer, Limit: DefaultLimit})
	cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || seq != q.seq {
		return
	}
	q.cancel = nil
	if err != nil {
		q.logger.Warn("search failed", zap.String("query", text), zap.Error(err))
		q.setLocked(Result{Text: text, Results: []store.Activity{}, Err: err})
		return
	}
	q.setLocked(Result{Text: text, Results: resp.Results})
}

func (q *Query) stopPendingLocked() {
	if q.timer != nil {
		if q.timer.Stop() {
			q.wg.Done()
		}
		q.timer = nil
	}
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *Query) setLocked(r Result) {
	q.last = r
	q.publish(r)
}
