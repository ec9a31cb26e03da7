package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid marks configuration that fails cross-field validation.
// Callers can branch on it with errors.Is.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	GitHub GitHubConfig `json:"github"`
	AI     AIConfig     `json:"ai"`

	// Slack is optional. When a token is present the run delivers the
	// summary as a Slack message instead of a GitHub issue.
	Slack SlackConfig `json:"slack,omitempty"`

	Digest  DigestConfig  `json:"digest"`
	Logging LoggingConfig `json:"logging"`

	// Schedule controls daemon-mode triggering. Ignored in one-shot runs.
	Schedule ScheduleConfig `json:"schedule,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Pprof   PprofConfig    `json:"pprof,omitempty"`
}

// GitHubConfig covers both notification retrieval and issue delivery.
type GitHubConfig struct {
	Token string `json:"token"`

	// Repository is "owner/repo". Required unless Slack delivery is
	// configured; issues are created against this repository.
	Repository string `json:"repository"`

	// APIURL overrides the REST endpoint (tests, GitHub Enterprise).
	APIURL string `json:"api_url,omitempty"`

	// RatePerSec paces REST calls. 0 keeps the default (1/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// AIConfig points at an OpenAI-compatible chat-completion service.
type AIConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"`
}

type SlackConfig struct {
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	APIURL    string `json:"api_url,omitempty"`
}

// DigestConfig shapes the notification window and the prompt template.
type DigestConfig struct {
	// HoursBack is the trailing window size. 0 means the default (24).
	HoursBack int `json:"hours_back,omitempty"`

	// Template is an optional path to a YAML prompt template. Empty uses
	// the embedded default.
	Template string `json:"template,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig controls the daemon trigger.
//
// Spec accepts three forms:
//   - a cron expression ("0 9 * * *", optional seconds field)
//   - "@every <duration>"
//   - "HH:MM" as shorthand for a daily run at that wall-clock time
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// RunTimeout is a Go duration string bounding one scheduled run.
	// Use "0s" (or omit) to disable the bound.
	RunTimeout string `json:"run_timeout,omitempty"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./digestbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// HistorySize bounds RecentRuns. 0 means the default (200).
	HistorySize int `json:"history_size,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

const (
	DefaultHoursBack   = 24
	DefaultHistorySize = 200

	defaultGitHubAPIURL = "https://api.github.com"
	defaultAIAPIURL     = "https://api.openai.com"
	defaultSlackAPIURL  = "https://slack.com/api"
)

// applyDefaults fills zero values that have documented defaults.
// Secrets are never defaulted.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.GitHub.APIURL) == "" {
		c.GitHub.APIURL = defaultGitHubAPIURL
	}
	if strings.TrimSpace(c.AI.APIURL) == "" {
		c.AI.APIURL = defaultAIAPIURL
	}
	if strings.TrimSpace(c.Slack.APIURL) == "" {
		c.Slack.APIURL = defaultSlackAPIURL
	}
	if c.Digest.HoursBack == 0 {
		c.Digest.HoursBack = DefaultHoursBack
	}
	if c.Storage != nil && c.Storage.HistorySize == 0 {
		c.Storage.HistorySize = DefaultHistorySize
	}
}

// Validate checks cross-field invariants once, at construction time.
// The pipeline never re-checks these.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GitHub.Token) == "" {
		return fmt.Errorf("%w: github.token is required", ErrInvalid)
	}
	if strings.TrimSpace(c.AI.Token) == "" {
		return fmt.Errorf("%w: ai.token is required", ErrInvalid)
	}
	if c.Digest.HoursBack < 0 {
		return fmt.Errorf("%w: digest.hours_back must be >= 0", ErrInvalid)
	}

	slackToken := strings.TrimSpace(c.Slack.Token) != ""
	if slackToken && strings.TrimSpace(c.Slack.ChannelID) == "" {
		return fmt.Errorf("%w: slack.channel_id is required when slack.token is set", ErrInvalid)
	}
	if !slackToken {
		// Issue delivery needs a repository to create the issue on.
		if strings.TrimSpace(c.GitHub.Repository) == "" {
			return fmt.Errorf("%w: github.repository is required for issue delivery", ErrInvalid)
		}
	}
	if repo := strings.TrimSpace(c.GitHub.Repository); repo != "" {
		if err := ValidateRepository(repo); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRepository checks the "owner/repo" shape.
func ValidateRepository(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return fmt.Errorf("%w: github.repository must be \"owner/repo\", got %q", ErrInvalid, repo)
	}
	return nil
}
