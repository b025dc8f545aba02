package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "telepal/pkg/logx"
)

const (
	DefaultResyncSpec = "@every 10m"
	DefaultPruneSpec  = "0 4 * * *"
)

type MaintenanceConfig struct {
	ResyncSpec string // empty disables
	PruneSpec  string // empty disables
	Retention  time.Duration
	Location   *time.Location
	JobTimeout time.Duration
}

// Maintenance runs periodic housekeeping for a Service on a cron clock:
// resync of missing timers and pruning of old executed rows.
type Maintenance struct {
	svc *Service
	cfg MaintenanceConfig
	log logx.Logger
	c   *cron.Cron
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a 5-field cron expression or a
// descriptor such as "@every 10m".
func ValidateSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

func NewMaintenance(svc *Service, cfg MaintenanceConfig, log logx.Logger) (*Maintenance, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	m := &Maintenance{svc: svc, cfg: cfg, log: log}
	m.c = cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)

	if spec := strings.TrimSpace(cfg.ResyncSpec); spec != "" {
		if _, err := m.c.AddFunc(spec, m.resync); err != nil {
			return nil, fmt.Errorf("resync schedule %q: %w", spec, err)
		}
	}
	if spec := strings.TrimSpace(cfg.PruneSpec); spec != "" && cfg.Retention > 0 {
		if _, err := m.c.AddFunc(spec, m.prune); err != nil {
			return nil, fmt.Errorf("prune schedule %q: %w", spec, err)
		}
	}
	return m, nil
}

// Jobs reports how many jobs are registered.
func (m *Maintenance) Jobs() int { return len(m.c.Entries()) }

func (m *Maintenance) Start() {
	m.c.Start()
	m.log.Info("maintenance started", logx.Int("jobs", m.Jobs()), logx.String("tz", m.cfg.Location.String()))
}

// Stop stops scheduling and waits for a running job, bounded by ctx.
func (m *Maintenance) Stop(ctx context.Context) {
	select {
	case <-m.c.Stop().Done():
	case <-ctx.Done():
	}
}

func (m *Maintenance) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JobTimeout)
	defer cancel()
	if _, err := m.svc.Resync(ctx); err != nil {
		m.log.Warn("resync failed", logx.Err(err))
	}
}

func (m *Maintenance) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JobTimeout)
	defer cancel()
	n, err := m.svc.PruneExecuted(ctx, m.cfg.Retention)
	if err != nil {
		m.log.Warn("prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		m.log.Info("pruned executed reminders", logx.Int64("rows", n), logx.Duration("retention", m.cfg.Retention))
	}
}

// cronLogger routes robfig/cron's logger through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
