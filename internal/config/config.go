package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the file configuration. They are read
// from the process environment and from a .env file in the working directory.
const (
	EnvAPIToken = "GENWATCH_API_TOKEN"
	EnvBaseURL  = "GENWATCH_BASE_URL"
)

type Config struct {
	API           APIConfig          `toml:"api"`
	Stream        StreamConfig       `toml:"stream"`
	Display       DisplayConfig      `toml:"display"`
	History       HistoryConfig      `toml:"history"`
	Storage       StorageConfig      `toml:"storage"`
	Notifications NotificationConfig `toml:"notifications"`
	Log           LogConfig          `toml:"log"`
	Simulator     SimulatorConfig    `toml:"simulator"`
}

type APIConfig struct {
	BaseURL               string `toml:"base_url"`
	Token                 string `toml:"token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type StreamConfig struct {
	// IdleTimeoutSeconds closes a channel that delivered nothing for this
	// long. Zero disables the watchdog.
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
}

type DisplayConfig struct {
	RefreshRateMS   int `toml:"refresh_rate_ms"`
	EventBufferSize int `toml:"event_buffer_size"`
	ETAMinPercent   int `toml:"eta_min_percent"`
}

type HistoryConfig struct {
	Limit           int `toml:"limit"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	RetentionDays int    `toml:"retention_days"`
}

type NotificationConfig struct {
	SystemNotify bool `toml:"system_notify"`
}

type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

type SimulatorConfig struct {
	Bind         string `toml:"bind"`
	Port         int    `toml:"port"`
	ChunkDelayMS int    `toml:"chunk_delay_ms"`
	BuildDelayMS int    `toml:"build_delay_ms"`
}

func (c APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c StreamConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c DisplayConfig) RefreshRate() time.Duration {
	return time.Duration(c.RefreshRateMS) * time.Millisecond
}

func (c HistoryConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c SimulatorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

var knownTopLevel = map[string]bool{
	"api":           true,
	"stream":        true,
	"display":       true,
	"history":       true,
	"storage":       true,
	"notifications": true,
	"log":           true,
	"simulator":     true,
}

// DefaultPath returns ~/.config/genwatch/config.toml, or "" when the home
// directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "genwatch", "config.toml")
}

// Load reads the default config file and applies environment overrides.
func Load() (*LoadResult, error) {
	return LoadWithEnv(DefaultPath())
}

// LoadWithEnv reads path and then applies GENWATCH_* overrides from the
// environment and from ./.env when present.
func LoadWithEnv(path string) (*LoadResult, error) {
	result, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}

	env, err := godotenv.Read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ignoring .env: %v", err))
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return env[key]
	}
	applyEnv(&result.Config, lookup)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func applyEnv(cfg *Config, lookup func(string) string) {
	if v := lookup(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}
	if v := lookup(EnvBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	result, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	if data == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}
	result, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return result, nil
}

func parse(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, err
	}
	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

type tomlFile struct {
	API           *APIConfig          `toml:"api"`
	Stream        *StreamConfig       `toml:"stream"`
	Display       *DisplayConfig      `toml:"display"`
	History       *HistoryConfig      `toml:"history"`
	Storage       *StorageConfig      `toml:"storage"`
	Notifications *NotificationConfig `toml:"notifications"`
	Log           *LogConfig          `toml:"log"`
	Simulator     *SimulatorConfig    `toml:"simulator"`
}

// mergeFromRaw copies only the keys that are present in the file so that an
// explicit zero value overrides a default while an absent key does not.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.API != nil {
		if section, ok := rawSection(raw, "api"); ok {
			setIf(section, "base_url", &cfg.API.BaseURL, tf.API.BaseURL)
			setIf(section, "token", &cfg.API.Token, tf.API.Token)
			setIf(section, "request_timeout_seconds", &cfg.API.RequestTimeoutSeconds, tf.API.RequestTimeoutSeconds)
		}
	}
	if tf.Stream != nil {
		if section, ok := rawSection(raw, "stream"); ok {
			setIf(section, "idle_timeout_seconds", &cfg.Stream.IdleTimeoutSeconds, tf.Stream.IdleTimeoutSeconds)
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			setIf(section, "refresh_rate_ms", &cfg.Display.RefreshRateMS, tf.Display.RefreshRateMS)
			setIf(section, "event_buffer_size", &cfg.Display.EventBufferSize, tf.Display.EventBufferSize)
			setIf(section, "eta_min_percent", &cfg.Display.ETAMinPercent, tf.Display.ETAMinPercent)
		}
	}
	if tf.History != nil {
		if section, ok := rawSection(raw, "history"); ok {
			setIf(section, "limit", &cfg.History.Limit, tf.History.Limit)
			setIf(section, "cache_ttl_seconds", &cfg.History.CacheTTLSeconds, tf.History.CacheTTLSeconds)
		}
	}
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			setIf(section, "db_path", &cfg.Storage.DBPath, tf.Storage.DBPath)
			setIf(section, "retention_days", &cfg.Storage.RetentionDays, tf.Storage.RetentionDays)
		}
	}
	if tf.Notifications != nil {
		if section, ok := rawSection(raw, "notifications"); ok {
			setIf(section, "system_notify", &cfg.Notifications.SystemNotify, tf.Notifications.SystemNotify)
		}
	}
	if tf.Log != nil {
		if section, ok := rawSection(raw, "log"); ok {
			setIf(section, "file", &cfg.Log.File, tf.Log.File)
			setIf(section, "level", &cfg.Log.Level, tf.Log.Level)
		}
	}
	if tf.Simulator != nil {
		if section, ok := rawSection(raw, "simulator"); ok {
			setIf(section, "bind", &cfg.Simulator.Bind, tf.Simulator.Bind)
			setIf(section, "port", &cfg.Simulator.Port, tf.Simulator.Port)
			setIf(section, "chunk_delay_ms", &cfg.Simulator.ChunkDelayMS, tf.Simulator.ChunkDelayMS)
			setIf(section, "build_delay_ms", &cfg.Simulator.BuildDelayMS, tf.Simulator.BuildDelayMS)
		}
	}
}

func setIf[T any](section map[string]any, key string, dst *T, v T) {
	if _, exists := section[key]; exists {
		*dst = v
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.API.BaseURL == "" {
		errs = append(errs, "api base_url must not be empty")
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api base_url must be an absolute URL, got %q", cfg.API.BaseURL))
	}
	if cfg.API.RequestTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("api request_timeout_seconds must be positive, got %d", cfg.API.RequestTimeoutSeconds))
	}

	if cfg.Stream.IdleTimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("stream idle_timeout_seconds must not be negative, got %d", cfg.Stream.IdleTimeoutSeconds))
	}

	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}
	if cfg.Display.EventBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("event_buffer_size must be positive, got %d", cfg.Display.EventBufferSize))
	}
	if cfg.Display.ETAMinPercent < 0 || cfg.Display.ETAMinPercent > 99 {
		errs = append(errs, fmt.Sprintf("eta_min_percent must be 0-99, got %d", cfg.Display.ETAMinPercent))
	}

	if cfg.History.Limit < 1 {
		errs = append(errs, fmt.Sprintf("history limit must be positive, got %d", cfg.History.Limit))
	}
	if cfg.History.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("history cache_ttl_seconds must not be negative, got %d", cfg.History.CacheTTLSeconds))
	}

	if cfg.Storage.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log level must be one of debug, info, warn, error, got %q", cfg.Log.Level))
	}

	if cfg.Simulator.Port < 1 || cfg.Simulator.Port > 65535 {
		errs = append(errs, fmt.Sprintf("simulator port must be 1-65535, got %d", cfg.Simulator.Port))
	}
	if cfg.Simulator.ChunkDelayMS < 0 {
		errs = append(errs, fmt.Sprintf("simulator chunk_delay_ms must not be negative, got %d", cfg.Simulator.ChunkDelayMS))
	}
	if cfg.Simulator.BuildDelayMS < 0 {
		errs = append(errs, fmt.Sprintf("simulator build_delay_ms must not be negative, got %d", cfg.Simulator.BuildDelayMS))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
