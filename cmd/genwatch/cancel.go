package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/session"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a running session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, "")
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.RequestTimeout())
	defer cancel()

	if err := a.api.CancelSession(ctx, id); err != nil {
		if backend.IsNotFound(err) {
			return fmt.Errorf("no session %s", id)
		}
		return fmt.Errorf("cancelling %s: %w", id, err)
	}

	// Keep the local snapshot in step so history shows the cancellation
	// without waiting for the server listing.
	if entry, ok := a.store.Get(id); ok && !entry.Session.Status.Terminal() {
		a.registry.Record(session.Cancel(entry.State()))
	}
	a.registry.Invalidate()

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", id)
	return nil
}
