package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "digestbot/pkg/logx"
)

func noopJob(context.Context) error { return nil }

func TestServiceStartStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Spec: "09:00", Timezone: "UTC"}, noopJob, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if snap.Spec != "0 9 * * *" {
		t.Fatalf("Spec = %q, want normalized daily cron", snap.Spec)
	}
	if snap.Timezone != "UTC" {
		t.Fatalf("Timezone = %q, want UTC", snap.Timezone)
	}
	if snap.Next.IsZero() {
		t.Fatal("Next is zero, want a computed trigger time")
	}
}

func TestServiceStartInvalidSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Spec: "nope"}, noopJob, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with invalid spec, want error")
	}
	// A failed start leaves the service stopped.
	if snap := s.Snapshot(); !snap.Next.IsZero() {
		t.Fatalf("Next = %v after failed start, want zero", snap.Next)
	}
}

func TestServiceApplyRestartsOnSpecChange(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Spec: "0 9 * * *", Timezone: "UTC"}, noopJob, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(context.Background())

	s.Apply(Config{Enabled: true, Spec: "0 18 * * *", Timezone: "UTC"})
	if snap := s.Snapshot(); snap.Spec != "0 18 * * *" {
		t.Fatalf("Spec after Apply = %q, want 0 18 * * *", snap.Spec)
	}
}

func TestServiceApplyWhileRunInFlight(t *testing.T) {
	t.Parallel()

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(Config{Enabled: true, Spec: "@every 1s", Timezone: "UTC"}, func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(context.Background())
	defer close(release)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger fired within 5s")
	}

	// Reconfiguring must not wait for the run the old cron started.
	applied := make(chan struct{})
	go func() {
		s.Apply(Config{Enabled: true, Spec: "0 18 * * *", Timezone: "UTC"})
		close(applied)
	}()
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("Apply blocked behind an in-flight run")
	}
	if snap := s.Snapshot(); snap.Spec != "0 18 * * *" {
		t.Fatalf("Spec after Apply = %q, want 0 18 * * *", snap.Spec)
	}
}

func TestRunJobSkipsWhileInFlight(t *testing.T) {
	t.Parallel()

	calls := 0
	s := New(Config{Enabled: true, Spec: "09:00"}, func(context.Context) error {
		calls++
		return nil
	}, logx.Nop())

	if !s.state.tryAcquire() {
		t.Fatal("tryAcquire() = false on fresh state")
	}
	s.runJob()
	if calls != 0 {
		t.Fatalf("job ran while another run held the state, calls = %d", calls)
	}

	s.state.release()
	s.runJob()
	if calls != 1 {
		t.Fatalf("calls = %d after release, want 1", calls)
	}
}

func TestRunJobAppliesTimeout(t *testing.T) {
	t.Parallel()

	hasDeadline := false
	s := New(Config{Enabled: true, Spec: "09:00", RunTimeout: time.Minute}, func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}, logx.Nop())

	s.runJob()
	if !hasDeadline {
		t.Fatal("job context has no deadline, want RunTimeout applied")
	}
}
