package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/genwatch/internal/config"
	"github.com/nixlim/genwatch/internal/logging"
	"github.com/nixlim/genwatch/internal/simulator"
	"github.com/nixlim/genwatch/internal/storage"
)

const defaultDemoPrompt = "A todo list app with React"

var simulateAddr string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the local streaming backend",
	Long: `Serve the streaming code-generation API from memory. Every session
streams a small generated project, runs a scripted build and ends with a
preview link. Point api.base_url at it to try the client without a real
backend.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var demoCmd = &cobra.Command{
	Use:   "demo [prompt]",
	Short: "Run the simulator and watch a session against it",
	RunE:  runDemo,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddr, "addr", "", "Listen address (default simulator.bind:simulator.port)")
}

func newSimulator(cfg config.Config, logger *zap.Logger) *simulator.Server {
	return simulator.New(simulator.Options{
		ChunkDelay: time.Duration(cfg.Simulator.ChunkDelayMS) * time.Millisecond,
		BuildDelay: time.Duration(cfg.Simulator.BuildDelayMS) * time.Millisecond,
		Token:      cfg.API.Token,
		Logger:     logger,
	})
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(logging.Options{
		File:  storage.ExpandTilde(cfg.Log.File),
		Level: cfg.Log.Level,
	})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	defer closeLog()

	addr := simulateAddr
	if addr == "" {
		addr = cfg.Simulator.Addr()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Simulator listening on http://%s\n", ln.Addr())
	return newSimulator(cfg, logger).Serve(ctx, ln)
}

func runDemo(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		prompt = defaultDemoPrompt
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(demoHost(cfg.Simulator.Bind), "0"))
	if err != nil {
		return fmt.Errorf("starting simulator: %w", err)
	}

	a, err := newApp(cfg, "http://"+ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return err
	}
	sim := newSimulator(cfg, a.log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sim.Serve(gctx, ln)
	})
	g.Go(func() error {
		// The simulator only lives as long as the session view.
		defer cancel()
		return runSession(gctx, a, func(ctx context.Context) error {
			_, err := a.controller.Start(ctx, prompt)
			return err
		})
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func demoHost(bind string) string {
	if bind == "" || bind == "0.0.0.0" {
		return "127.0.0.1"
	}
	return bind
}
