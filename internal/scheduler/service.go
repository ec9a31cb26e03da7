package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "digestbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled    bool
	Spec       string // cron expression, "@every 24h", or daily "HH:MM"
	Timezone   string // IANA TZ, e.g. "Asia/Jakarta"
	RunTimeout time.Duration
}

// runState tracks whether a run is already in flight.
type runState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *runState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *runState) release() {
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

// Service triggers the digest job according to Config.Spec.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID
	spec    string // normalized cron spec currently registered

	job    func(ctx context.Context) error
	state  runState
	runCtx context.Context
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Timezone string
	Spec     string
	Next     time.Time
	Prev     time.Time
}

func New(cfg Config, job func(ctx context.Context) error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		job: job,
		// Accepts 5-field specs, 6-field specs with a seconds column,
		// and @-descriptors.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports whether the schedule is switched on in the current
// config.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates config. A timezone or spec change swaps in a fresh cron
// and re-registers the job. Enabling or disabling is the caller's job via
// Start/Stop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	oldSpec := strings.TrimSpace(s.cfg.Spec)
	s.cfg = cfg

	if s.c == nil || (oldTZ == strings.TrimSpace(cfg.Timezone) && oldSpec == strings.TrimSpace(cfg.Spec)) {
		s.mu.Unlock()
		return
	}
	old := s.rebuildLocked()
	s.mu.Unlock()

	// Retire the old instance outside the lock: runJob takes s.mu after
	// tryAcquire, so waiting for its drain here would deadlock a tick
	// caught between the two and block every caller for the run's
	// duration. Single-flight in runJob keeps old and new triggers from
	// overlapping.
	old.Stop()
}

// Start begins cron triggering. ctx is the base context every run derives
// from; cancelling it aborts an in-flight run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	if err := s.registerLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.String("spec", s.spec),
		logx.String("next", s.previewNextRunsLocked(3)),
	)
	return nil
}

// Stop halts triggering and waits for an in-flight run, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: strings.TrimSpace(s.cfg.Timezone),
		Spec:     s.spec,
	}
	if snap.Timezone == "" && s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.c != nil && s.entryID != 0 {
		e := s.c.Entry(s.entryID)
		snap.Next = e.Next
		snap.Prev = e.Prev
	}
	return snap
}

// registerLocked normalizes cfg.Spec and adds the job. Call with s.mu held
// and s.c non-nil.
func (s *Service) registerLocked() error {
	spec, err := NormalizeSpec(s.cfg.Spec)
	if err != nil {
		return err
	}
	eid, err := s.c.AddFunc(spec, s.runJob)
	if err != nil {
		return fmt.Errorf("register schedule %q: %w", spec, err)
	}
	s.spec = spec
	s.entryID = eid
	s.log.Debug("schedule registered",
		logx.String("spec", spec),
		logx.String("next", s.previewNextRunsLocked(3)),
	)
	return nil
}

// rebuildLocked swaps in a fresh cron built from the current config and
// hands back the previous instance for the caller to retire once s.mu is
// released. Call with s.mu held and s.c non-nil.
func (s *Service) rebuildLocked() *cron.Cron {
	old := s.c
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.entryID = 0
	if err := s.registerLocked(); err != nil {
		s.log.Error("schedule register failed", logx.String("spec", s.cfg.Spec), logx.Err(err))
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.String("spec", s.spec))
	return old
}

func (s *Service) runJob() {
	if !s.state.tryAcquire() {
		s.log.Warn("previous run still in flight, skipping trigger")
		return
	}
	defer s.state.release()

	s.mu.Lock()
	ctx := s.runCtx
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Warn("run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("run ok", logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewNextRunsLocked returns a short, human-friendly list of upcoming run
// times. Call with s.mu held.
func (s *Service) previewNextRunsLocked(n int) string {
	if s.spec == "" || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	sched, err := s.parser.Parse(s.spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
