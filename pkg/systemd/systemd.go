// Package systemd integrates with the service manager when running as a
// systemd unit. Every call is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "digestbot/pkg/logx"
)

// NotifyReady tells systemd the service finished starting up.
func NotifyReady(log logx.Logger) {
	ack, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
		return
	}
	if ack {
		log.Debug("sd_notify ready")
	}
}

// NotifyStopping tells systemd shutdown has begun.
func NotifyStopping(log logx.Logger) {
	ack, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Warn("sd_notify stopping failed", logx.Err(err))
		return
	}
	if ack {
		log.Debug("sd_notify stopping")
	}
}

// WatchdogLoop pings the systemd watchdog at half the configured interval
// until ctx is cancelled. It returns immediately when no watchdog is armed.
func WatchdogLoop(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("sd_watchdog probe failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	interval /= 2
	log.Debug("sd_watchdog armed", logx.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("sd_notify watchdog failed", logx.Err(err))
			}
		}
	}
}
