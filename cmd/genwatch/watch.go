package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/tui"
)

// closeTimeout bounds the cancel request sent when an interrupted session
// is torn down.
const closeTimeout = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [prompt]",
	Short: "Start a session and follow it",
	Long: `Start a code-generation session for prompt and follow it until it
finishes. On a terminal this opens the dashboard, where a session can also be
started later with 'n'. Otherwise events are printed one per line and a
prompt is required.`,
	RunE: runWatch,
}

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Follow an existing session",
	Long: `Resume watching a session from its last known state. A finished
session is shown as it ended without opening a stream.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func runWatch(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && !useTUI() {
		return errors.New("a prompt is required when output is not a terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, "")
	if err != nil {
		return err
	}

	var begin func(context.Context) error
	if prompt != "" {
		begin = func(ctx context.Context) error {
			_, err := a.controller.Start(ctx, prompt)
			return err
		}
	}
	return runSession(cmd.Context(), a, begin)
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, "")
	if err != nil {
		return err
	}

	id := args[0]
	return runSession(cmd.Context(), a, func(ctx context.Context) error {
		lookupCtx, cancel := context.WithTimeout(ctx, cfg.API.RequestTimeout())
		entry, err := a.registry.Lookup(lookupCtx, id)
		cancel()
		if err != nil {
			return err
		}
		return a.controller.Attach(ctx, entry.State())
	})
}

// runSession runs begin, which may be nil, and follows the resulting session
// in the dashboard or as plain lines. a is closed on return.
func runSession(ctx context.Context, a *app, begin func(context.Context) error) error {
	if useTUI() {
		return runTUI(ctx, a, begin)
	}
	return runPlain(ctx, a, begin)
}

func runTUI(ctx context.Context, a *app, begin func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sm := tui.NewShutdownManager()
	sm.CloseSession = a.controller.Close
	sm.CloseStore = a.close

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			if err := sm.Shutdown(); err != nil {
				fmt.Fprintf(os.Stderr, "genwatch: shutdown: %v\n", err)
			}
			cancel()
		})
	}

	if begin != nil {
		if err := begin(ctx); err != nil {
			shutdown()
			return err
		}
	}

	model := tui.NewModel(a.cfg,
		tui.WithSessionProvider(a.controller),
		tui.WithHistoryProvider(a.registry),
		tui.WithNoticeProvider(a.notices),
		tui.WithContext(ctx),
		tui.WithOnShutdown(shutdown),
		tui.WithPersistenceFlag(a.persistent),
	)
	p := tea.NewProgram(model, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			shutdown()
			p.Quit()
		case <-ctx.Done():
		}
	}()

	_, err := p.Run()
	shutdown()
	if err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}

func runPlain(ctx context.Context, a *app, begin func(context.Context) error) error {
	defer a.close()

	r := tui.NewPlainRenderer(os.Stdout)
	a.controller.OnEvent(r.Event)
	a.notices.OnNotice(r.Notice)

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	if err := begin(streamCtx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := a.controller.Wait(sigCtx)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		_ = a.controller.Close(closeCtx)
		cancel()
		st = a.controller.State()
	}

	r.Summary(st)
	if st.Status() == session.StatusError {
		return fmt.Errorf("session %s failed", st.ID())
	}
	return nil
}
