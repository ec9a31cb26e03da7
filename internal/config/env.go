package config

import (
	"os"
	"strings"
)

// Environment variables recognized as overrides. Secrets are expected to
// arrive this way in CI; file values lose to non-empty env values so a
// daemon config reload cannot downgrade credentials.
const (
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubRepo     = "GITHUB_REPOSITORY"
	EnvAIToken        = "AI_TOKEN"
	EnvOpenAIToken    = "OPENAI_API_KEY"
	EnvSlackToken     = "SLACK_BOT_TOKEN"
	EnvSlackChannelID = "SLACK_CHANNEL_ID"
)

// applyEnvOverrides overlays process environment onto cfg.
// Called after every parse, including watch reloads.
func applyEnvOverrides(cfg *Config) {
	if v := envValue(EnvGitHubToken); v != "" {
		cfg.GitHub.Token = v
	}
	if v := envValue(EnvGitHubRepo); v != "" {
		cfg.GitHub.Repository = v
	}
	if v := envValue(EnvAIToken); v != "" {
		cfg.AI.Token = v
	} else if v := envValue(EnvOpenAIToken); v != "" {
		cfg.AI.Token = v
	}
	if v := envValue(EnvSlackToken); v != "" {
		cfg.Slack.Token = v
	}
	if v := envValue(EnvSlackChannelID); v != "" {
		cfg.Slack.ChannelID = v
	}
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
