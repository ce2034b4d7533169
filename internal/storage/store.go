// Package storage persists session history snapshots to SQLite behind the
// in-memory store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/state"
)

const (
	writeChannelSize = 256
	batchSize        = 32
	flushInterval    = 250 * time.Millisecond
)

type writeOp struct {
	entry state.Entry
}

// SQLiteStore serves reads from the embedded MemoryStore and mirrors every
// Put to the database through a single background writer.
type SQLiteStore struct {
	*state.MemoryStore
	db              *sql.DB
	log             *zap.Logger
	retentionDays   int
	writeChan       chan writeOp
	droppedWrites   atomic.Int64
	doneChan        chan struct{}
	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}
}

func NewSQLiteStore(dbPath string, retentionDays int, logger *zap.Logger) (*SQLiteStore, error) {
	return newSQLiteStoreWithChannelSize(dbPath, writeChannelSize, retentionDays, logger)
}

func newSQLiteStoreWithChannelSize(dbPath string, chanSize, retentionDays int, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &SQLiteStore{
		MemoryStore:     state.NewMemoryStore(),
		db:              db,
		log:             logger.Named("storage"),
		retentionDays:   retentionDays,
		writeChan:       make(chan writeOp, chanSize),
		doneChan:        make(chan struct{}),
		cancelMaint:     cancel,
		maintenanceDone: make(chan struct{}),
	}

	if err := store.recoverSessions(time.Now()); err != nil {
		cancel()
		_ = db.Close()
		return nil, fmt.Errorf("recovering sessions: %w", err)
	}

	go store.writerLoop()
	go store.maintenanceLoop(ctx)

	return store, nil
}

// Put stores e in memory and queues it for persistence.
func (s *SQLiteStore) Put(e state.Entry) {
	if e.Session.ID == "" {
		return
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	s.MemoryStore.Put(e)
	s.sendWrite(writeOp{entry: e})
}

// Delete prunes entries older than cutoff from memory and disk.
func (s *SQLiteStore) Delete(cutoff time.Time) int {
	n := s.MemoryStore.Delete(cutoff)
	if _, err := s.db.Exec("DELETE FROM sessions WHERE created_at < ?", cutoff.UnixMilli()); err != nil {
		s.log.Error("pruning sessions failed", zap.Error(err))
	}
	return n
}

func (s *SQLiteStore) sendWrite(op writeOp) {
	if s.closed.Load() {
		return
	}
	defer func() { _ = recover() }()
	select {
	case s.writeChan <- op:
	default:
		s.droppedWrites.Add(1)
		s.log.Warn("write channel full, dropped snapshot", zap.String("session_id", op.entry.ID()))
	}
}

func (s *SQLiteStore) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

// Close stops maintenance, drains queued writes and closes the database.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		s.log.Warn("maintenance goroutine did not stop within 30s")
	}

	close(s.writeChan)
	select {
	case <-s.doneChan:
	case <-time.After(10 * time.Second):
		s.log.Error("failed to drain writes within 10s, history may be incomplete")
	}

	return s.db.Close()
}
