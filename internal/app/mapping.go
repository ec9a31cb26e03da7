package app

import (
	"fmt"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/observability/pprof"
	"digestbot/internal/scheduler"
	"digestbot/internal/storage"
	logx "digestbot/pkg/logx"
)

// The map*Config helpers translate the file-level config (strings, Go
// duration literals) into each service's typed config. They double as the
// validation surface for hot reloads: anything they reject never reaches a
// running service.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Schedule
	runTimeout, err := config.ParseDurationField("schedule.run_timeout", sc.RunTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	if sc.Enabled {
		if _, err := scheduler.NormalizeSpec(sc.Spec); err != nil {
			return scheduler.Config{}, fmt.Errorf("schedule.spec: %w", err)
		}
		if tz := strings.TrimSpace(sc.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return scheduler.Config{}, fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	return scheduler.Config{
		Enabled:    sc.Enabled,
		Spec:       sc.Spec,
		Timezone:   sc.Timezone,
		RunTimeout: runTimeout,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path, HistorySize: sc.HistorySize}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, HistorySize: sc.HistorySize}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	pc := cfg.Pprof
	readTimeout, err := config.ParseDurationField("pprof.read_timeout", pc.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTimeout, err := config.ParseDurationField("pprof.idle_timeout", pc.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          pc.Addr,
		Prefix:        pc.Prefix,
		Token:         pc.Token,
		AllowInsecure: pc.AllowInsecure,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}, nil
}
