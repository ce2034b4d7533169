package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:               "http://localhost:5000",
			RequestTimeoutSeconds: 15,
		},
		Stream: StreamConfig{
			IdleTimeoutSeconds: 120,
		},
		Display: DisplayConfig{
			RefreshRateMS:   100,
			EventBufferSize: 500,
			ETAMinPercent:   5,
		},
		History: HistoryConfig{
			Limit:           20,
			CacheTTLSeconds: 30,
		},
		Storage: StorageConfig{
			DBPath:        "~/.local/share/genwatch/history.db",
			RetentionDays: 30,
		},
		Notifications: NotificationConfig{
			SystemNotify: false,
		},
		Log: LogConfig{
			File:  "~/.local/state/genwatch/genwatch.log",
			Level: "info",
		},
		Simulator: SimulatorConfig{
			Bind:         "127.0.0.1",
			Port:         5180,
			ChunkDelayMS: 40,
			BuildDelayMS: 400,
		},
	}
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrConfigExists is returned by WriteDefault when the target file exists
// and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes the default configuration to path, creating parent
// directories as needed.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking config file: %w", err)
		}
	}

	data, err := Encode(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return writeAtomic(path, data, 0o600)
}

// writeAtomic writes data to a temp file beside path and renames it into
// place, so a crash never leaves a half-written config.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("permission denied writing to %s", dir)
		}
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	tmpPath = ""
	return nil
}
