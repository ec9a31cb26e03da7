package delivery

import (
	"context"
	"time"

	"digestbot/internal/github"
	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

// issueLabels tag every digest issue so they are easy to filter and clean up.
var issueLabels = []string{"automated", "notifications", "summary"}

// IssueCreator is the slice of the GitHub client this deliverer needs.
type IssueCreator interface {
	CreateIssue(ctx context.Context, repo string, req github.IssueRequest) (*github.Issue, error)
}

// Issue files the summary as a GitHub issue on the run's repository.
type Issue struct {
	gh   IssueCreator
	repo string
	log  logx.Logger
}

func NewIssue(gh IssueCreator, repo string, log logx.Logger) *Issue {
	return &Issue{
		gh:   gh,
		repo: repo,
		log:  log.With(logx.String("comp", "delivery.issue")),
	}
}

func (d *Issue) Name() string             { return "issue" }
func (d *Issue) Dialect() summary.Dialect { return summary.DialectMarkdown }

func (d *Issue) Deliver(ctx context.Context, summaryText string, hasNotifications bool) error {
	issue, err := d.gh.CreateIssue(ctx, d.repo, github.IssueRequest{
		Title:  Title(time.Now()),
		Body:   body(summaryText, hasNotifications),
		Labels: issueLabels,
	})
	if err != nil {
		return err
	}

	d.log.Info("summary delivered",
		logx.String("repo", d.repo),
		logx.Int("issue", issue.Number),
	)
	return nil
}
