// Package delivery publishes a run's summary through exactly one channel:
// a Slack message when a bot token is configured, otherwise a GitHub issue
// on the run's repository.
package delivery

import (
	"context"
	"strings"
	"time"

	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

// AllCaughtUp is the body delivered when the window had no notifications.
// Even an empty run produces exactly one external write.
const AllCaughtUp = "All caught up! No new notifications."

// Deliverer is the delivery capability. Dialect reports which markdown
// variant the channel renders, so the summary is generated to match.
type Deliverer interface {
	Name() string
	Dialect() summary.Dialect
	Deliver(ctx context.Context, summaryText string, hasNotifications bool) error
}

// Title returns the dated title both channels share.
func Title(now time.Time) string {
	return "Daily Notifications Summary — " + now.UTC().Format("2006-01-02")
}

func body(summaryText string, hasNotifications bool) string {
	if !hasNotifications {
		return AllCaughtUp
	}
	return summaryText
}

// Select picks the channel once per run: Slack iff a token is configured.
// The channel-id-required invariant was enforced at config validation,
// before any network call.
func Select(slackCfg SlackConfig, gh IssueCreator, repo string, log logx.Logger) Deliverer {
	if strings.TrimSpace(slackCfg.Token) != "" {
		return NewSlack(slackCfg, log)
	}
	return NewIssue(gh, repo, log)
}
