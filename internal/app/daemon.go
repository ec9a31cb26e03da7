package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/runtime/supervisor"
	logx "digestbot/pkg/logx"
	"digestbot/pkg/systemd"
)

// Done is closed when the daemon context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the failure that brought the daemon down, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings up daemon mode: scheduler, pprof, config watch plus reload
// fan-out, and the systemd watchdog. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: a new file revision is validated before
	// it is committed or published, so a bad edit never reaches services.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapPprofConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if a.sched.Enabled() {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Warn("schedule disabled; daemon idles until it is enabled via config reload")
	}
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.WatchdogLoop(c, a.log)
	})

	systemd.NotifyReady(a.log)
	a.log.Info("daemon started")
	return nil
}

// reloadLoop applies published config revisions to the live services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest revision matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded; nothing changed")
		return
	}
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage settings changed; they apply on the next restart")
			break
		}
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	// Clients hold the credentials and endpoints they were built with, so a
	// changed token or channel means a fresh pipeline.
	channel := a.rebuildPipeline(newCfg)
	a.log.Debug("pipeline rebuilt", logx.String("channel", channel))

	prevSchedEnabled := a.sched.Enabled()
	if scc, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scc)
		if prevSchedEnabled && !scc.Enabled {
			a.log.Info("schedule disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prevSchedEnabled && scc.Enabled {
			a.log.Info("schedule enabled via config")
			if err := a.sched.Start(ctx); err != nil {
				a.log.Warn("schedule start failed", logx.Err(err))
			}
		}
	}

	if ppc, err := mapPprofConfig(newCfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Reconfigure(ctx, ppc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop shuts the daemon down in order, bounding each step so one stuck
// component cannot stall the whole exit.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	systemd.NotifyStopping(a.log)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	a.stopStep(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.stopStep(ctx, "pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	a.stopStep(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.stopStep(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// stopStep runs one shutdown action with its own deadline and keeps
// going when it misses it, so a wedged component cannot block the rest.
func (a *App) stopStep(ctx context.Context, name string, budget time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("stop %s: panic: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	start := time.Now()
	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step failed", logx.String("name", name), logx.Err(err))
			return
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step timed out; moving on",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
