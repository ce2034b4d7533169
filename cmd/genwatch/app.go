package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/config"
	"github.com/nixlim/genwatch/internal/lifecycle"
	"github.com/nixlim/genwatch/internal/logging"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/registry"
	"github.com/nixlim/genwatch/internal/state"
	"github.com/nixlim/genwatch/internal/storage"
	"github.com/nixlim/genwatch/internal/stream"
)

// app holds the services one command run needs, wired from the config.
type app struct {
	cfg        config.Config
	log        *zap.Logger
	store      state.Store
	persistent bool
	api        *backend.Client
	streams    *stream.Client
	registry   *registry.Registry
	notices    *notices.Center
	controller *lifecycle.Controller

	closeLog   func()
	frameFile  *os.File
	storeOwned bool
}

// loadConfig reads the config named by --config (or the default path) and
// reports warnings on stderr.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	res, err := config.LoadWithEnv(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "genwatch: config warning: %s\n", w)
	}
	return res.Config, nil
}

// newApp wires the client stack. baseURL overrides the configured server
// when not empty.
func newApp(cfg config.Config, baseURL string) (*app, error) {
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}

	logger, closeLog, err := logging.New(logging.Options{
		File:  storage.ExpandTilde(cfg.Log.File),
		Level: cfg.Log.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logging setup: %w", err)
	}

	a := &app{cfg: cfg, log: logger, closeLog: closeLog}

	store, persistent, err := storage.NewStore(cfg.Storage, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("storage error: %w", err)
	}
	a.store, a.persistent, a.storeOwned = store, persistent, true

	var frames stream.FrameLogger
	if debugFrames != "" {
		f, err := os.OpenFile(debugFrames, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("opening frame log %q: %w", debugFrames, err)
		}
		a.frameFile = f
		frames = stream.NewFileFrameLogger(f)
	}

	a.api = backend.NewClient(backend.Options{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.RequestTimeout(),
		Logger:  logger,
	})
	a.streams = stream.NewClient(stream.Options{
		BaseURL:     backend.APIRoot(cfg.API.BaseURL),
		Token:       cfg.API.Token,
		IdleTimeout: cfg.Stream.IdleTimeout(),
		Frames:      frames,
		Logger:      logger,
	})
	a.registry = registry.New(a.api, store, registry.Options{
		Limit:    cfg.History.Limit,
		CacheTTL: cfg.History.CacheTTL(),
		Logger:   logger,
	})
	a.notices = notices.NewCenter(
		notices.WithNotifier(notices.NewPlatformNotifier(cfg.Notifications.SystemNotify, logger)),
		notices.WithLogger(logger),
	)
	a.controller = lifecycle.New(a.registry, a.api, a.streams, lifecycle.Options{
		ActivitySize:  cfg.Display.EventBufferSize,
		ETAMinPercent: float64(cfg.Display.ETAMinPercent),
		Notices:       a.notices,
		Logger:        logger,
	})
	return a, nil
}

// close releases the store, the frame log and the logger. The controller is
// torn down separately because that may talk to the server.
func (a *app) close() error {
	var errs []error
	if a.storeOwned && a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
		a.storeOwned = false
	}
	if a.frameFile != nil {
		if err := a.frameFile.Close(); err != nil {
			errs = append(errs, err)
		}
		a.frameFile = nil
	}
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
	return errors.Join(errs...)
}

// isTTY reports whether stdout is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func useTUI() bool {
	return !plainOutput && isTTY()
}
