// Package run sequences one digest run: retrieve, format, summarize,
// deliver. Strictly sequential, fail-fast, no retries.
package run

import (
	"context"
	"time"

	"digestbot/internal/delivery"
	"digestbot/internal/digest"
	"digestbot/internal/github"
	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

// notificationsPageSize bounds retrieval to one page. Pagination beyond the
// first page is out of scope for a digest run.
const notificationsPageSize = 50

const defaultHoursBack = 24

// Outputs is what a run reports to the calling environment. Written once,
// after summarization, whether or not delivery then succeeds.
type Outputs struct {
	NotificationCount int
	Summary           string
}

// NotificationSource lists notifications updated in a trailing window.
type NotificationSource interface {
	Notifications(ctx context.Context, since time.Time, perPage int) ([]github.Notification, error)
}

// Summarizer turns a digest into natural-language text for a dialect.
type Summarizer interface {
	Summarize(ctx context.Context, digestText string, dialect summary.Dialect) (string, error)
}

// OutputSink publishes run outputs for downstream consumption.
type OutputSink interface {
	Publish(outputs Outputs) error
}

// Deps are the pipeline's collaborators. Now is for tests; nil means
// time.Now.
type Deps struct {
	Source     NotificationSource
	Summarizer Summarizer
	Deliverer  delivery.Deliverer
	Outputs    OutputSink
	HoursBack  int
	Now        func() time.Time
	Log        logx.Logger
}

type Pipeline struct {
	source     NotificationSource
	summarizer Summarizer
	deliverer  delivery.Deliverer
	outputs    OutputSink
	hoursBack  int
	now        func() time.Time
	log        logx.Logger
}

func New(d Deps) *Pipeline {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	hours := d.HoursBack
	if hours <= 0 {
		hours = defaultHoursBack
	}
	return &Pipeline{
		source:     d.Source,
		summarizer: d.Summarizer,
		deliverer:  d.Deliverer,
		outputs:    d.Outputs,
		hoursBack:  hours,
		now:        now,
		log:        d.Log.With(logx.String("comp", "run")),
	}
}

// Execute performs one run. The first stage failure aborts everything after
// it; the returned error is wrapped exactly once with its stage.
func (p *Pipeline) Execute(ctx context.Context) (Outputs, error) {
	since := p.now().Add(-time.Duration(p.hoursBack) * time.Hour)

	notifications, err := p.source.Notifications(ctx, since, notificationsPageSize)
	if err != nil {
		return Outputs{}, &StageError{Stage: StageRetrieve, Err: err}
	}

	digestText := digest.Format(notifications)
	hasNotifications := len(notifications) > 0
	p.log.Info("notifications retrieved",
		logx.Int("count", len(notifications)),
		logx.Time("since", since),
	)

	var summaryText string
	if hasNotifications {
		summaryText, err = p.summarizer.Summarize(ctx, digestText, p.deliverer.Dialect())
		if err != nil {
			return Outputs{}, &StageError{Stage: StageSummarize, Err: err}
		}
	}

	// Outputs reflect pipeline state even if delivery fails below.
	outputs := Outputs{NotificationCount: len(notifications), Summary: summaryText}
	if p.outputs != nil {
		if err := p.outputs.Publish(outputs); err != nil {
			p.log.Warn("publishing run outputs failed", logx.Err(err))
		}
	}

	if err := p.deliverer.Deliver(ctx, summaryText, hasNotifications); err != nil {
		return outputs, &StageError{Stage: StageDeliver, Err: err}
	}

	p.log.Info("run complete",
		logx.Int("notifications", outputs.NotificationCount),
		logx.String("channel", p.deliverer.Name()),
	)
	return outputs, nil
}
