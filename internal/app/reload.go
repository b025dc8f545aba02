package app

import (
	"context"
	"strings"

	"telepal/internal/config"
	logx "telepal/pkg/logx"
)

// applyReloads applies logging and owner changes from hot reload. Other
// sections are reported as needing a restart.
func (a *App) applyReloads(c context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce a burst to the newest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(last, next)
			last = next
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	ch := config.Summarize(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(next.LogConfig())
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for these sections", logx.String("sections", strings.Join(ch.Restart, ",")))
	}
	fields := append([]logx.Field{logx.String("applied", strings.Join(ch.Applied, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
