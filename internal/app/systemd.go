package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "telepal/pkg/logx"
)

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

func notifyReady(log logx.Logger)    { sdNotify(log, daemon.SdNotifyReady) }
func notifyStopping(log logx.Logger) { sdNotify(log, daemon.SdNotifyStopping) }

// watchdog pings systemd at half of WATCHDOG_USEC while the app runs.
func (a *App) watchdog(c context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 2
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			sdNotify(a.log, daemon.SdNotifyWatchdog)
		}
	}
}
