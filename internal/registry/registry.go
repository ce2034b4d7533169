// Package registry creates sessions and serves the history of past ones,
// merging what the backend reports with snapshots recorded locally.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
)

const (
	historyKey   = "history"
	DefaultLimit = 20
)

// Backend is the subset of the REST client the registry needs.
type Backend interface {
	CreateSession(ctx context.Context, prompt string) (backend.SessionRecord, error)
	ListSessions(ctx context.Context) ([]backend.SessionRecord, error)
	GetSession(ctx context.Context, id string) (backend.SessionRecord, error)
}

type Options struct {
	Limit    int
	CacheTTL time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

type Registry struct {
	api   Backend
	store state.Store
	cache *cache.Cache
	ttl   time.Duration
	limit int
	log   *zap.Logger
	now   func() time.Time
}

func New(api Backend, store state.Store, opts Options) *Registry {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		api:   api,
		store: store,
		cache: cache.New(opts.CacheTTL, time.Minute),
		ttl:   opts.CacheTTL,
		limit: opts.Limit,
		log:   opts.Logger.Named("registry"),
		now:   opts.Now,
	}
}

// Start creates a session on the backend. Nothing is recorded locally when
// creation fails.
func (r *Registry) Start(ctx context.Context, prompt string) (session.Session, error) {
	rec, err := r.api.CreateSession(ctx, prompt)
	if err != nil {
		return session.Session{}, err
	}
	s := rec.Session()
	if s.Prompt == "" {
		s.Prompt = prompt
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	// Whatever the backend calls a fresh session, nothing has streamed yet.
	s.Status = session.StatusIdle
	r.store.Put(state.Entry{Session: s, UpdatedAt: r.now()})
	r.Invalidate()
	return s, nil
}

// Record stores a snapshot of st. Terminal snapshots invalidate the cached
// history.
func (r *Registry) Record(st session.State) {
	r.store.Put(state.EntryFromState(st, r.now()))
	if st.Status().Terminal() {
		r.Invalidate()
	}
}

// Invalidate drops the cached history so the next History call refetches.
func (r *Registry) Invalidate() {
	r.cache.Delete(historyKey)
}

// History returns recent sessions, newest first. On a backend failure the
// locally known sessions are returned together with the error.
func (r *Registry) History(ctx context.Context) ([]state.Entry, error) {
	if cached, ok := r.cache.Get(historyKey); ok {
		return cloneEntries(cached.([]state.Entry)), nil
	}

	local := r.store.List(0)
	recs, err := r.api.ListSessions(ctx)
	if err != nil {
		r.log.Warn("listing sessions failed, serving local history", zap.Error(err))
		return limit(local, r.limit), fmt.Errorf("loading history: %w", err)
	}

	merged := merge(local, recs, r.now())
	merged = limit(merged, r.limit)
	if r.cacheEnabled() {
		r.cache.SetDefault(historyKey, cloneEntries(merged))
	}
	return merged, nil
}

// Lookup finds one session. A terminal local snapshot is final; otherwise
// the backend is asked and the local copy is the fallback.
func (r *Registry) Lookup(ctx context.Context, id string) (state.Entry, error) {
	local, haveLocal := r.store.Get(id)
	if haveLocal && local.Session.Status.Terminal() {
		return local, nil
	}
	rec, err := r.api.GetSession(ctx, id)
	if err != nil {
		if haveLocal {
			r.log.Warn("fetching session failed, using local snapshot", zap.String("session_id", id), zap.Error(err))
			return local, nil
		}
		if backend.IsNotFound(err) {
			return state.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return state.Entry{}, err
	}
	remote := fromRecord(rec, r.now())
	if haveLocal && len(local.Files) > 0 {
		// The backend ledger has no content; keep what was streamed here.
		remote.Files = local.Files
	}
	return remote, nil
}

// ErrNotFound is returned by Lookup for an id neither side knows.
var ErrNotFound = errors.New("session not found")

// A zero TTL would mean "never expire" to go-cache, so it disables caching.
func (r *Registry) cacheEnabled() bool {
	return r.ttl > 0
}
