package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/cache"
	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/search"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
)

const (
	liveWriteWait   = 10 * time.Second
	livePongWait    = 60 * time.Second
	livePingEvery   = 45 * time.Second
	liveOutboxSize  = 64
	liveMaxMessage  = 64 << 10
	liveCallTimeout = 15 * time.Second
)

// liveRequest is a client message on /api/live.
type liveRequest struct {
	Type string `json:"type"`
	// ID is echoed back on the reply so the client can correlate it.
	ID     string          `json:"id,omitempty"`
	Feed   string          `json:"feed,omitempty"`
	Scope  *scopeBody      `json:"scope,omitempty"`
	Text   string          `json:"text,omitempty"`
	Target string          `json:"target,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// liveMessage is a server message on /api/live.
type liveMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Feed    string `json:"feed,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// liveSession is one client session: it owns the session store, the normalized cache
// shared by all of its feeds, and one search query.
type liveSession struct {
	svc    *Service
	conn   *websocket.Conn
	logger *zap.Logger
	creds  session.Credentials
	state  *session.Store
	viewer store.Viewer
	cache  *cache.Cache
	query  *search.Query

	feeds   map[string]*activity.Feed
	unwatch map[string]func()

	out       chan liveMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	creds := credentials(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live upgrade failed", zap.Error(err))
		return
	}

	ls := &liveSession{
		svc:     s.service,
		conn:    conn,
		logger:  s.logger.Named("live"),
		creds:   creds,
		cache:   cache.New(),
		feeds:   make(map[string]*activity.Feed),
		unwatch: make(map[string]func()),
		out:     make(chan liveMessage, liveOutboxSize),
		done:    make(chan struct{}),
	}
	ls.run(r.Context())
}

func (ls *liveSession) run(ctx context.Context) {
	observability.LiveSessionOpened()
	defer observability.LiveSessionClosed()

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		ls.writeLoop()
	}()
	defer func() {
		ls.shutdown()
		writer.Wait()
		_ = ls.conn.Close()
	}()

	st, state := ls.svc.Session(ctx, ls.creds)
	ls.state = st
	stopWatch := st.Watch(func(state session.State) {
		ls.send(liveMessage{Type: "session", Payload: sessionPayload(state)})
	})
	defer stopWatch()

	ls.send(liveMessage{Type: "session", Payload: sessionPayload(state)})
	if !state.Authorized() {
		ls.send(liveMessage{Type: "error", Payload: errorPayload(errUnauthorized)})
		return
	}
	if ls.svc.activities == nil {
		ls.send(liveMessage{Type: "error", Payload: errorPayload(errLiveUnavailable)})
		return
	}

	viewer, err := ls.svc.viewerFor(ctx, *state.Profile)
	if err != nil {
		ls.logger.Warn("resolve live viewer", zap.Error(err))
		ls.send(liveMessage{Type: "error", Payload: errorPayload(err)})
		return
	}
	ls.viewer = viewer

	if ls.svc.search != nil {
		ls.query = search.NewQuery(ls.svc.search, viewer, ls.svc.cfg.SearchDebounce, func(res search.Result) {
			ls.send(liveMessage{Type: "search", Payload: searchPayload(res)})
		}, ls.logger)
	}

	ls.readLoop(ctx)
}

func (ls *liveSession) readLoop(ctx context.Context) {
	ls.conn.SetReadLimit(liveMaxMessage)
	_ = ls.conn.SetReadDeadline(time.Now().Add(livePongWait))
	ls.conn.SetPongHandler(func(string) error {
		return ls.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var req liveRequest
		if err := ls.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.logger.Debug("live read ended", zap.Error(err))
			}
			return
		}
		if !ls.dispatch(ctx, req) {
			return
		}
	}
}

// dispatch handles one request and reports whether the session stays open.
func (ls *liveSession) dispatch(ctx context.Context, req liveRequest) bool {
	ctx, cancel := context.WithTimeout(ctx, liveCallTimeout)
	defer cancel()

	switch req.Type {
	case "watch":
		ls.watch(ctx, req)
	case "unwatch":
		ls.closeFeed(req.Feed)
		ls.reply(req, "unwatched", nil)
	case "refetch":
		feed, ok := ls.feeds[req.Feed]
		if !ok {
			ls.fail(req, "", errUnknownFeed)
			return true
		}
		feed.Refetch(ctx)
	case "search":
		if ls.query == nil {
			ls.fail(req, "", errSearchUnavailable)
			return true
		}
		ls.query.Set(req.Text)
	case "create", "update", "archive", "unarchive", "delete":
		ls.mutate(ctx, req)
	case "signout":
		if err := ls.svc.SignOut(ctx, ls.creds); err != nil {
			ls.logger.Warn("live sign out", zap.Error(err))
		}
		ls.state.Clear()
		return false
	default:
		ls.fail(req, "", errUnknownRequest)
	}
	return true
}

var (
	errUnknownFeed       = domainError(http.StatusNotFound, "UNKNOWN_FEED", "No such feed on this session.", nil)
	errUnknownRequest    = domainError(http.StatusBadRequest, "UNKNOWN_REQUEST", "Unknown request type.", nil)
	errSearchUnavailable = domainError(http.StatusServiceUnavailable, "UNAVAILABLE", "Search is not configured.", nil)
	errLiveUnavailable   = domainError(http.StatusServiceUnavailable, "UNAVAILABLE", "Activities are not configured.", nil)
)

// watch opens the named feed, or moves an existing one to the new scope.
func (ls *liveSession) watch(ctx context.Context, req liveRequest) {
	if req.Feed == "" {
		ls.fail(req, "", domainError(http.StatusBadRequest, "MISSING_FEED", "A feed name is required.", nil))
		return
	}
	var body scopeBody
	if req.Scope != nil {
		body = *req.Scope
	}
	scope, err := body.scope()
	if err != nil {
		ls.fail(req, "", err)
		return
	}

	if feed, ok := ls.feeds[req.Feed]; ok {
		feed.SetScope(ctx, scope)
		ls.sendSnapshot(req.Feed, feed.Snapshot())
		return
	}

	name := req.Feed
	feed := activity.NewFeed(ctx, ls.svc.activities, ls.svc.subscriber(), ls.cache, ls.viewer, scope, ls.logger)
	ls.feeds[name] = feed
	ls.unwatch[name] = feed.Watch(func(snap activity.Snapshot) {
		ls.sendSnapshot(name, snap)
	})
	ls.sendSnapshot(name, feed.Snapshot())
}

// mutate runs a write through a feed when one is named so every feed of the session sees
// it at once; otherwise it goes straight to the service and only the cache is patched.
func (ls *liveSession) mutate(ctx context.Context, req liveRequest) {
	action := mutationAction(req.Type)
	via := req.Feed
	feed := ls.feeds[via]
	if feed == nil {
		for name, f := range ls.feeds {
			via, feed = name, f
			break
		}
	}

	var (
		result store.Activity
		err    error
	)
	switch req.Type {
	case "create":
		var body createActivityBody
		if err = json.Unmarshal(orEmptyObject(req.Data), &body); err != nil {
			ls.fail(req, action, activity.ErrInvalidInput)
			return
		}
		var in activity.CreateInput
		if in, err = body.input(); err == nil {
			if feed != nil {
				result, err = feed.Create(ctx, in)
			} else {
				result, err = ls.svc.activities.Create(ctx, ls.viewer, in)
			}
		}
	case "update":
		var patch store.ActivityPatch
		if patch, err = patchFromJSON(orEmptyObject(req.Data)); err == nil {
			if feed != nil {
				result, err = feed.Update(ctx, req.Target, patch)
			} else {
				result, err = ls.svc.activities.Update(ctx, ls.viewer, req.Target, patch)
			}
		}
	case "archive":
		if feed != nil {
			result, err = feed.Archive(ctx, req.Target)
		} else {
			result, err = ls.svc.activities.Archive(ctx, ls.viewer, req.Target)
		}
	case "unarchive":
		if feed != nil {
			result, err = feed.Unarchive(ctx, req.Target)
		} else {
			result, err = ls.svc.activities.Unarchive(ctx, ls.viewer, req.Target)
		}
	case "delete":
		if feed != nil {
			err = feed.Delete(ctx, req.Target)
		} else if err = ls.svc.activities.Delete(ctx, ls.viewer, req.Target); err == nil {
			ls.cache.Remove(req.Target)
		}
		if err == nil {
			ls.reply(req, "ok", map[string]any{"id": req.Target})
			ls.refreshOthers(via)
			return
		}
	}

	if err != nil {
		ls.fail(req, action, err)
		return
	}
	if feed == nil {
		ls.cache.Upsert(result)
	}
	ls.reply(req, "ok", map[string]any{"activity": activityPayload(result)})
	ls.refreshOthers(via)
}

// refreshOthers pushes the other feeds' views, which share the cache the write just patched.
func (ls *liveSession) refreshOthers(via string) {
	for name, feed := range ls.feeds {
		if name != via {
			ls.sendSnapshot(name, feed.Snapshot())
		}
	}
}

func mutationAction(kind string) string {
	switch kind {
	case "create":
		return "create the activity"
	case "update":
		return "update the activity"
	case "archive":
		return "archive the activity"
	case "unarchive":
		return "restore the activity"
	default:
		return "delete the activity"
	}
}

func orEmptyObject(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte(`{}`)
	}
	return data
}

func (ls *liveSession) closeFeed(name string) {
	if stop, ok := ls.unwatch[name]; ok {
		stop()
		delete(ls.unwatch, name)
	}
	if feed, ok := ls.feeds[name]; ok {
		feed.Close()
		delete(ls.feeds, name)
	}
}

func (ls *liveSession) sendSnapshot(feed string, snap activity.Snapshot) {
	payload := map[string]any{
		"items":   activitiesPayload(snap.Items),
		"loading": snap.Loading,
	}
	if snap.Err != nil {
		_, code, _, _ := mapError(snap.Err)
		payload["error"] = map[string]any{"code": code, "message": "Could not load activities."}
	}
	ls.send(liveMessage{Type: "feed", Feed: feed, Payload: payload})
}

func searchPayload(res search.Result) map[string]any {
	payload := map[string]any{
		"query":   res.Text,
		"results": activitiesPayload(res.Results),
		"loading": res.Loading,
	}
	if res.Err != nil {
		payload["error"] = map[string]any{"message": "Could not search activities."}
	}
	return payload
}

func errorPayload(err error) map[string]any {
	_, code, message, _ := mapError(err)
	return map[string]any{"code": code, "message": message}
}

func (ls *liveSession) reply(req liveRequest, kind string, payload any) {
	ls.send(liveMessage{Type: kind, ID: req.ID, Feed: req.Feed, Payload: payload})
}

// fail replies with an error. A non-empty action turns it into a mutation notice.
func (ls *liveSession) fail(req liveRequest, action string, err error) {
	payload := errorPayload(err)
	if action != "" {
		de := mutationError(action, err)
		payload = map[string]any{"code": de.Code, "message": de.Message}
		if de.Status >= http.StatusInternalServerError {
			ls.logger.Error("live mutation failed", zap.String("action", action), zap.Error(err))
		}
	}
	ls.send(liveMessage{Type: "error", ID: req.ID, Feed: req.Feed, Payload: payload})
}

// send queues msg for the writer. It gives up once the session is shutting down.
func (ls *liveSession) send(msg liveMessage) {
	select {
	case ls.out <- msg:
	case <-ls.done:
	}
}

func (ls *liveSession) writeLoop() {
	ticker := time.NewTicker(livePingEvery)
	defer ticker.Stop()
	for {
		select {
		case msg := <-ls.out:
			_ = ls.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ls.conn.WriteJSON(msg); err != nil {
				ls.logger.Debug("live write failed", zap.Error(err))
				ls.drain()
				return
			}
		case <-ticker.C:
			if err := ls.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				ls.drain()
				return
			}
		case <-ls.done:
			ls.flush()
			return
		}
	}
}

// flush writes what is already queued, then says goodbye.
func (ls *liveSession) flush() {
	for {
		select {
		case msg := <-ls.out:
			_ = ls.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := ls.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			_ = ls.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(liveWriteWait))
			return
		}
	}
}

// drain discards queued messages after a write failure until shutdown.
func (ls *liveSession) drain() {
	for {
		select {
		case <-ls.out:
		case <-ls.done:
			return
		}
	}
}

// shutdown stops delivery first so no producer stays blocked, then closes feeds and query.
func (ls *liveSession) shutdown() {
	ls.closeOnce.Do(func() {
		close(ls.done)
		for name := range ls.feeds {
			ls.closeFeed(name)
		}
		if ls.query != nil {
			ls.query.Close()
		}
	})
}
