package run

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"digestbot/internal/github"
	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

type fakeSource struct {
	events *[]string

	notifications []github.Notification
	err           error

	since   time.Time
	perPage int
	calls   int
}

func (f *fakeSource) Notifications(_ context.Context, since time.Time, perPage int) ([]github.Notification, error) {
	f.calls++
	f.since = since
	f.perPage = perPage
	*f.events = append(*f.events, "retrieve")
	if f.err != nil {
		return nil, f.err
	}
	return f.notifications, nil
}

type fakeSummarizer struct {
	events *[]string

	out string
	err error

	digest  string
	dialect summary.Dialect
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, digestText string, dialect summary.Dialect) (string, error) {
	f.calls++
	f.digest = digestText
	f.dialect = dialect
	*f.events = append(*f.events, "summarize")
	return f.out, f.err
}

type fakeDeliverer struct {
	events *[]string

	dialect summary.Dialect
	err     error

	summaryText      string
	hasNotifications bool
	calls            int
}

func (f *fakeDeliverer) Name() string             { return "fake" }
func (f *fakeDeliverer) Dialect() summary.Dialect { return f.dialect }

func (f *fakeDeliverer) Deliver(_ context.Context, summaryText string, hasNotifications bool) error {
	f.calls++
	f.summaryText = summaryText
	f.hasNotifications = hasNotifications
	*f.events = append(*f.events, "deliver")
	return f.err
}

type fakeSink struct {
	events *[]string

	outputs Outputs
	calls   int
}

func (f *fakeSink) Publish(outputs Outputs) error {
	f.calls++
	f.outputs = outputs
	*f.events = append(*f.events, "outputs")
	return nil
}

type fixture struct {
	events     []string
	source     *fakeSource
	summarizer *fakeSummarizer
	deliverer  *fakeDeliverer
	sink       *fakeSink
	pipeline   *Pipeline
}

func newFixture(notifications []github.Notification) *fixture {
	fx := &fixture{}
	fx.source = &fakeSource{events: &fx.events, notifications: notifications}
	fx.summarizer = &fakeSummarizer{events: &fx.events, out: "Summary X"}
	fx.deliverer = &fakeDeliverer{events: &fx.events, dialect: summary.DialectSlack}
	fx.sink = &fakeSink{events: &fx.events}
	fx.pipeline = New(Deps{
		Source:     fx.source,
		Summarizer: fx.summarizer,
		Deliverer:  fx.deliverer,
		Outputs:    fx.sink,
		HoursBack:  24,
		Log:        logx.Nop(),
	})
	return fx
}

func threeNotifications() []github.Notification {
	mk := func(id, title string) github.Notification {
		return github.Notification{
			ID:         id,
			Reason:     "mention",
			UpdatedAt:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			Subject:    github.Subject{Title: title, Type: "Issue"},
			Repository: github.Repository{FullName: "octo/widgets"},
		}
	}
	return []github.Notification{mk("1", "first"), mk("2", "second"), mk("3", "third")}
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()

	fx := newFixture(threeNotifications())
	outputs, err := fx.pipeline.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outputs.NotificationCount != 3 || outputs.Summary != "Summary X" {
		t.Fatalf("outputs = %+v, want {3 Summary X}", outputs)
	}
	if fx.source.perPage != 50 {
		t.Fatalf("perPage = %d, want 50", fx.source.perPage)
	}
	if lines := strings.Split(fx.summarizer.digest, "\n"); len(lines) != 3 {
		t.Fatalf("digest lines = %d, want 3:\n%s", len(lines), fx.summarizer.digest)
	}
	if fx.summarizer.dialect != summary.DialectSlack {
		t.Fatalf("dialect = %s, want slack (from deliverer)", fx.summarizer.dialect)
	}
	if fx.deliverer.summaryText != "Summary X" || !fx.deliverer.hasNotifications {
		t.Fatalf("delivered = %q/%v, want Summary X/true", fx.deliverer.summaryText, fx.deliverer.hasNotifications)
	}

	want := []string{"retrieve", "summarize", "outputs", "deliver"}
	if len(fx.events) != len(want) {
		t.Fatalf("events = %v, want %v", fx.events, want)
	}
	for i := range want {
		if fx.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", fx.events, want)
		}
	}
}

func TestExecuteZeroNotifications(t *testing.T) {
	t.Parallel()

	fx := newFixture(nil)
	outputs, err := fx.pipeline.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outputs.NotificationCount != 0 || outputs.Summary != "" {
		t.Fatalf("outputs = %+v, want {0 \"\"}", outputs)
	}
	if fx.summarizer.calls != 0 {
		t.Fatalf("summarizer calls = %d, want 0 (skipped entirely)", fx.summarizer.calls)
	}
	if fx.deliverer.calls != 1 {
		t.Fatalf("deliverer calls = %d, want 1 (sentinel still delivered)", fx.deliverer.calls)
	}
	if fx.deliverer.hasNotifications {
		t.Fatalf("hasNotifications = true, want false")
	}
	if fx.sink.calls != 1 || fx.sink.outputs.NotificationCount != 0 {
		t.Fatalf("sink = %d calls, outputs %+v", fx.sink.calls, fx.sink.outputs)
	}
}

func TestExecuteRetrievalFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(nil)
	fx.source.err = errors.New("github API 502: bad gateway")

	_, err := fx.pipeline.Execute(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageRetrieve {
		t.Fatalf("error = %v, want StageError{retrieve}", err)
	}
	if !errors.Is(err, fx.source.err) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if fx.summarizer.calls != 0 || fx.deliverer.calls != 0 || fx.sink.calls != 0 {
		t.Fatalf("later stages ran: summarize=%d deliver=%d outputs=%d, want 0/0/0",
			fx.summarizer.calls, fx.deliverer.calls, fx.sink.calls)
	}
}

func TestExecuteSummaryFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(threeNotifications())
	fx.summarizer.err = errors.New("llm API error 500: boom")
	fx.summarizer.out = ""

	_, err := fx.pipeline.Execute(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSummarize {
		t.Fatalf("error = %v, want StageError{summarize}", err)
	}
	if fx.deliverer.calls != 0 {
		t.Fatalf("deliverer calls = %d, want 0", fx.deliverer.calls)
	}
	if fx.sink.calls != 0 {
		t.Fatalf("outputs published after summary failure, want none")
	}
}

func TestExecuteDeliveryFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(threeNotifications())
	fx.deliverer.err = errors.New("slack API error: channel_not_found")

	outputs, err := fx.pipeline.Execute(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageDeliver {
		t.Fatalf("error = %v, want StageError{deliver}", err)
	}
	// Outputs were published before delivery and survive its failure.
	if fx.sink.calls != 1 || fx.sink.outputs.NotificationCount != 3 || fx.sink.outputs.Summary != "Summary X" {
		t.Fatalf("sink = %d calls, outputs %+v", fx.sink.calls, fx.sink.outputs)
	}
	if outputs.NotificationCount != 3 {
		t.Fatalf("returned outputs = %+v", outputs)
	}
}

func TestExecuteWindow(t *testing.T) {
	t.Parallel()

	fx := newFixture(nil)
	fixed := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	fx.pipeline = New(Deps{
		Source:     fx.source,
		Summarizer: fx.summarizer,
		Deliverer:  fx.deliverer,
		Outputs:    fx.sink,
		HoursBack:  48,
		Now:        func() time.Time { return fixed },
		Log:        logx.Nop(),
	})

	if _, err := fx.pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	want := fixed.Add(-48 * time.Hour)
	if !fx.source.since.Equal(want) {
		t.Fatalf("since = %v, want %v", fx.source.since, want)
	}
}

func TestStageErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &StageError{Stage: StageDeliver, Err: cause}
	if err.Error() != "deliver: boom" {
		t.Fatalf("Error() = %q, want deliver: boom", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("Unwrap lost the cause")
	}
}
