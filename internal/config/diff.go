package config

import (
	"reflect"
	"strings"

	logx "telepal/pkg/logx"
)

// Change describes a reload. Applied sections take effect immediately;
// Restart sections need a process restart.
type Change struct {
	Applied []string
	Restart []string
	Fields  []logx.Field
}

func (c Change) Empty() bool { return len(c.Applied) == 0 && len(c.Restart) == 0 }

// Summarize compares two configs. Fields never include secrets.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Applied = append(ch.Applied, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		ch.Applied = append(ch.Applied, "telegram.owners")
		ch.Fields = append(ch.Fields, logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)))
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.SendTimeout != newCfg.Telegram.SendTimeout ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		ch.Restart = append(ch.Restart, "telegram")
		ch.Fields = append(ch.Fields, logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token))
	}
	if oldCfg.Storage != newCfg.Storage {
		ch.Restart = append(ch.Restart, "storage")
		ch.Fields = append(ch.Fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Reminders != newCfg.Reminders {
		ch.Restart = append(ch.Restart, "reminders")
	}
	return ch
}
