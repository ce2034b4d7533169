// Package simulator serves the streaming code-generation API from memory so
// the client can be developed and tested without the platform backend.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/session"
)

// historyLimit caps GET /sessions.
const historyLimit = 20

const anonymousOwner = "anonymous"

type Options struct {
	// ChunkDelay is the pause after each code chunk, BuildDelay after each
	// running build step. Zero streams as fast as the client reads.
	ChunkDelay time.Duration
	BuildDelay time.Duration

	// Token, when set, must be presented as the bearer token of every
	// request. Sessions are scoped to the presented token either way.
	Token string

	Logger *zap.Logger
	Now    func() time.Time
}

type simSession struct {
	rec       backend.SessionRecord
	owner     string
	cancelled chan struct{}
	attached  bool
	pos       position
}

func (ss *simSession) cancellable() bool {
	switch session.Status(ss.rec.Status) {
	case session.StatusIdle, session.StatusStreaming, session.StatusBuilding:
		return true
	}
	return false
}

// Server is the in-memory backend.
type Server struct {
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*simSession
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:     opts,
		log:      opts.Logger.Named("simulator"),
		now:      opts.Now,
		sessions: make(map[string]*simSession),
	}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Route(backend.APIPath, func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Post("/sessions/{id}/cancel", s.cancelSession)
		r.Get("/sessions/{id}/stream", s.streamSession)
	})
}

// Handler returns a router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Mount(r)
	return r
}

// Serve answers requests on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("simulator listening", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

type ownerKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if s.opts.Token != "" && token != s.opts.Token {
			writeError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		owner := token
		if owner == "" {
			owner = anonymousOwner
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerOf(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

type createRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	owner := ownerOf(r)
	now := s.now().UTC()

	s.mu.Lock()
	// A caller has at most one live session.
	for _, ss := range s.sessions {
		if ss.owner == owner && ss.cancellable() {
			s.cancelLocked(ss, now)
		}
	}
	ss := &simSession{
		rec: backend.SessionRecord{
			ID:        uuid.NewString(),
			Prompt:    strings.TrimSpace(req.Prompt),
			Status:    string(session.StatusIdle),
			CreatedAt: now,
		},
		owner:     owner,
		cancelled: make(chan struct{}),
	}
	s.sessions[ss.rec.ID] = ss
	rec := ss.rec
	s.mu.Unlock()

	s.log.Info("session created", zap.String("session_id", rec.ID), zap.String("owner", owner))
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	owner := ownerOf(r)

	s.mu.Lock()
	recs := make([]backend.SessionRecord, 0, len(s.sessions))
	for _, ss := range s.sessions {
		if ss.owner == owner {
			recs = append(recs, ss.rec)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(recs, func(a, b backend.SessionRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if len(recs) > historyLimit {
		recs = recs[:historyLimit]
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ss, ok := s.lookupLocked(r)
	var rec backend.SessionRecord
	if ok {
		rec = ss.rec
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Session not found.")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ss, ok := s.lookupLocked(r)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Session not found.")
		return
	}
	if !ss.cancellable() {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Session is not active.")
		return
	}
	s.cancelLocked(ss, s.now().UTC())
	rec := ss.rec
	s.mu.Unlock()

	s.log.Info("session cancelled", zap.String("session_id", rec.ID))
	writeJSON(w, http.StatusOK, rec)
}

// lookupLocked finds the session named in the URL if it belongs to the
// caller. Callers hold s.mu.
func (s *Server) lookupLocked(r *http.Request) (*simSession, bool) {
	ss, ok := s.sessions[chi.URLParam(r, "id")]
	if !ok || ss.owner != ownerOf(r) {
		return nil, false
	}
	return ss, true
}

// cancelLocked marks ss cancelled and wakes its stream. Callers hold s.mu.
func (s *Server) cancelLocked(ss *simSession, now time.Time) {
	ss.rec.Status = string(session.StatusCancelled)
	ss.rec.UpdatedAt = &now
	close(ss.cancelled)
}

// update applies fn to the record of ss under the server lock. A cancelled
// session stays cancelled whatever fn sets.
func (s *Server) update(ss *simSession, fn func(rec *backend.SessionRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&ss.rec)
	select {
	case <-ss.cancelled:
		ss.rec.Status = string(session.StatusCancelled)
	default:
	}
	now := s.now().UTC()
	ss.rec.UpdatedAt = &now
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
