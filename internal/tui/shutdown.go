package tui

import (
	"context"
	"errors"
	"time"
)

// ShutdownManager coordinates teardown when the user quits: the live session
// is cancelled (or its stream released), pending history writes are flushed,
// and resources are closed.
type ShutdownManager struct {
	// DrainTimeout bounds the whole sequence, including the cancel request.
	DrainTimeout time.Duration

	// CloseSession tears the live session down. A non-terminal session is
	// cancelled on the server.
	CloseSession func(ctx context.Context) error

	// CloseStore flushes and closes the history store.
	CloseStore func() error

	// Cleanup performs any additional cleanup (e.g., syncing the logger).
	Cleanup func()
}

// NewShutdownManager creates a ShutdownManager with a 5-second drain timeout.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		DrainTimeout: 5 * time.Second,
	}
}

// Shutdown runs the steps in order. The session goes first so its terminal
// snapshot reaches the store before the store is closed. Every step runs even
// if an earlier one fails; the errors are joined.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.DrainTimeout)
	defer cancel()

	var errs []error
	if sm.CloseSession != nil {
		if err := sm.CloseSession(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sm.CloseStore != nil {
		if err := sm.CloseStore(); err != nil {
			errs = append(errs, err)
		}
	}

	if sm.Cleanup != nil {
		sm.Cleanup()
	}

	return errors.Join(errs...)
}
