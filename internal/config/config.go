// Package config holds all CatanTournamentBot configuration.
// Settings load from a YAML file layered over defaults, with a small set
// of environment overrides for secrets and deployment-specific URLs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Watch   WatchConfig   `yaml:"watch"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	API     APIConfig     `yaml:"api"`
	Rewrite RewriteConfig `yaml:"rewrite"`
}

// BrowserConfig configures the Chrome instance backing page runtimes.
type BrowserConfig struct {
	// DebuggerURL attaches to an already-running Chrome instead of launching one.
	DebuggerURL string `yaml:"debugger_url"`
	// Bin is the Chrome binary path; empty means let the launcher find one.
	Bin                 string   `yaml:"bin"`
	Headless            bool     `yaml:"headless"`
	Flags               []string `yaml:"flags"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// NavigationTimeout returns the page navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// WatchConfig configures the game watch loop.
type WatchConfig struct {
	// BaseURL is the game site root; the game id is appended as the path.
	BaseURL          string `yaml:"base_url"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	HandleAttempts   int    `yaml:"handle_attempts"`
	HandleRetryMs    int    `yaml:"handle_retry_ms"`
	EndGameGraceMs   int    `yaml:"end_game_grace_ms"`
	StallTimeoutSec  int    `yaml:"stall_timeout_sec"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec"`
}

// GameURL builds the URL for a game id.
func (c WatchConfig) GameURL(id string) string {
	base := c.BaseURL
	if base == "" {
		base = "https://colonist.io"
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + id
}

// PollInterval returns the polling cadence (~20Hz by default).
func (c WatchConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// MaxHandleAttempts bounds the wait for the exposed game manager handle.
func (c WatchConfig) MaxHandleAttempts() int {
	if c.HandleAttempts <= 0 {
		return 30
	}
	return c.HandleAttempts
}

// HandleRetry returns the delay between handle probes.
func (c WatchConfig) HandleRetry() time.Duration {
	if c.HandleRetryMs <= 0 {
		return time.Second
	}
	return time.Duration(c.HandleRetryMs) * time.Millisecond
}

// EndGameGrace returns how long to wait after the game-over flag before
// reading the end-of-game payload. The remote runtime populates it
// asynchronously; reading too early risks a partial structure.
func (c WatchConfig) EndGameGrace() time.Duration {
	if c.EndGameGraceMs <= 0 {
		return time.Second
	}
	return time.Duration(c.EndGameGraceMs) * time.Millisecond
}

// StallTimeout returns the maximum time without a phase change before the
// watch is abandoned.
func (c WatchConfig) StallTimeout() time.Duration {
	if c.StallTimeoutSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.StallTimeoutSec) * time.Second
}

// SweepInterval returns the completion-sweep cadence.
func (c WatchConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// HistoryConfig configures the completed-game history.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
	// DatabasePath enables the durable SQLite mirror; empty disables it.
	DatabasePath string `yaml:"database_path"`
}

// MaxRecords returns the bounded in-memory history size.
func (c HistoryConfig) MaxRecords() int {
	if c.Capacity <= 0 {
		return 100
	}
	return c.Capacity
}

// NotifyConfig configures the notification sink.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// DefaultChannel is used when the command surface gives no channel.
	DefaultChannel string `yaml:"default_channel"`
}

// APIConfig configures the HTTP command surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// ListenAddr returns the bind address.
func (c APIConfig) ListenAddr() string {
	if c.Addr == "" {
		return ":8080"
	}
	return c.Addr
}

// RewriteConfig configures the script rewriter.
type RewriteConfig struct {
	// PatchFile points at a YAML patch list overriding the built-in
	// patches. The patch literals track a specific vendor bundle and
	// break when the vendor ships new code, so they live in data.
	PatchFile string `yaml:"patch_file"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Headless:            true,
			NavigationTimeoutMs: 30000,
		},
		Watch: WatchConfig{
			BaseURL:          "https://colonist.io",
			PollIntervalMs:   50,
			HandleAttempts:   30,
			HandleRetryMs:    1000,
			EndGameGraceMs:   1000,
			StallTimeoutSec:  300,
			SweepIntervalSec: 5,
		},
		History: HistoryConfig{Capacity: 100},
		Notify:  NotifyConfig{DefaultChannel: "general"},
		API:     APIConfig{Addr: ":8080"},
	}
}

// Load reads config from path layered over defaults. An empty path
// returns the defaults. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays deployment secrets that should not live in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CATANBOT_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("CATANBOT_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("CATANBOT_DB_PATH"); v != "" {
		c.History.DatabasePath = v
	}
	if v := os.Getenv("CATANBOT_ADDR"); v != "" {
		c.API.Addr = v
	}
}
