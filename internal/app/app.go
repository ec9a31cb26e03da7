// Package app wires configuration, logging, the digest pipeline, and the
// daemon services together. cmd/digestbot stays a thin shell around it.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/delivery"
	"digestbot/internal/github"
	"digestbot/internal/llm"
	"digestbot/internal/observability/pprof"
	"digestbot/internal/run"
	"digestbot/internal/runtime/supervisor"
	"digestbot/internal/scheduler"
	"digestbot/internal/storage"
	"digestbot/internal/summary"
	logx "digestbot/pkg/logx"
)

// Options carry command-line overrides that are not part of the config file.
type Options struct {
	// HoursBack overrides digest.hours_back when > 0 (one-shot -hours flag).
	HoursBack int
}

type App struct {
	cfgm *config.Manager
	opts Options
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	sched *scheduler.Service
	pprof *pprof.Service

	// pipeline is rebuilt on config reload; runs always go through the
	// current one.
	mu       sync.Mutex
	pipeline *run.Pipeline
	channel  string
}

// NewApp loads and validates the config, builds the logging service, and
// constructs every component a run needs. Daemon-only services (scheduler,
// pprof) are constructed here too but only started by Start.
func NewApp(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm: cfgm,
		opts: opts,
		log:  log,
		logs: logSvc,
	}

	// Run-history store is optional.
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	scc, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(scc, a.RunOnce, log.With(logx.String("comp", "scheduler")))

	ppc, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.pprof = pprof.New(ppc, log.With(logx.String("comp", "pprof")))

	a.rebuildPipeline(cfg)
	return a, nil
}

// RunOnce executes a single digest run and records it in the run history.
// It is both the one-shot entry point and the scheduler's job: daemon mode
// adds scheduling around runs, never different run semantics.
func (a *App) RunOnce(ctx context.Context) error {
	started := time.Now()
	pl, channel := a.currentPipeline()
	outputs, err := pl.Execute(ctx)
	a.recordRun(started, channel, outputs, err)
	return err
}

// Close releases the run-history store and log sinks. One-shot callers use
// this instead of Stop.
func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}

func (a *App) currentPipeline() (*run.Pipeline, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pipeline, a.channel
}

// rebuildPipeline swaps in a pipeline built from cfg and returns the name of
// the delivery channel it selected.
func (a *App) rebuildPipeline(cfg *config.Config) string {
	pl, channel := a.buildPipeline(cfg)
	a.mu.Lock()
	a.pipeline = pl
	a.channel = channel
	a.mu.Unlock()
	return channel
}

func (a *App) buildPipeline(cfg *config.Config) (*run.Pipeline, string) {
	gh := github.New(github.Config{
		APIURL:     cfg.GitHub.APIURL,
		Token:      cfg.GitHub.Token,
		RatePerSec: cfg.GitHub.RatePerSec,
	}, a.log.With(logx.String("comp", "github")))

	chat := llm.New(llm.Config{
		APIURL: cfg.AI.APIURL,
		Token:  cfg.AI.Token,
	}, a.log.With(logx.String("comp", "llm")))

	provider := summary.Default()
	if path := strings.TrimSpace(cfg.Digest.Template); path != "" {
		provider = summary.NewFileProvider(path)
	}
	gen := summary.NewGenerator(provider, chat, a.log.With(logx.String("comp", "summary")))

	deliverer := delivery.Select(delivery.SlackConfig{
		APIURL:  cfg.Slack.APIURL,
		Token:   cfg.Slack.Token,
		Channel: cfg.Slack.ChannelID,
	}, gh, cfg.GitHub.Repository, a.log)

	hours := cfg.Digest.HoursBack
	if a.opts.HoursBack > 0 {
		hours = a.opts.HoursBack
	}

	pl := run.New(run.Deps{
		Source:     gh,
		Summarizer: gen,
		Deliverer:  deliverer,
		Outputs:    run.NewEnvOutputWriter(a.log),
		HoursBack:  hours,
		Log:        a.log,
	})
	return pl, deliverer.Name()
}

// recordRun appends one history record. Best effort: history must never fail
// a run, and it still writes when the run context is already dead.
func (a *App) recordRun(started time.Time, channel string, outputs run.Outputs, runErr error) {
	if a.store == nil {
		return
	}
	rec := storage.RunRecord{
		At:            started,
		Notifications: outputs.NotificationCount,
		Channel:       channel,
		SummaryChars:  len(outputs.Summary),
		TookMS:        time.Since(started).Milliseconds(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.store.AppendRun(ctx, rec); err != nil {
		a.log.Warn("run history append failed", logx.Err(err))
	}
}
