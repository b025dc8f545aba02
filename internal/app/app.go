// Package app wires configuration, logging, storage, the Telegram transport
// and the reminder service into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"telepal/internal/bot"
	"telepal/internal/config"
	"telepal/internal/eventbus"
	"telepal/internal/reminder"
	rtsup "telepal/internal/runtime/supervisor"
	"telepal/internal/storage"
	"telepal/internal/task/scheduler"
	"telepal/internal/tools"
	kit "telepal/internal/transport"
	"telepal/internal/transport/telegram"
	logx "telepal/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store     storage.Store
	adapter   *telegram.Adapter
	sched     *scheduler.Scheduler
	reminders *reminder.Service
	maint     *reminder.Maintenance
	router    *bot.Router

	loc     *time.Location
	durs    config.Durations
	sup     *rtsup.Supervisor
	updates chan kit.Update
	started time.Time
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg, true); err != nil {
		return nil, err
	}
	durs, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// The log sink needs the adapter and the adapter needs a logger.
	var tg atomic.Pointer[telegram.Adapter]
	logs, root := logx.New(cfg.LogConfig(), logx.SenderFunc(func(ctx context.Context, chatID int64, threadID int, text string) error {
		ad := tg.Load()
		if ad == nil {
			return errors.New("telegram adapter not ready")
		}
		return ad.SendLog(ctx, chatID, threadID, text)
	}))
	log := root.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: durs.PollTimeout,
		SendTimeout: durs.SendTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	tg.Store(ad)

	sc, err := cfg.StorageConfig()
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if errors.Is(err, storage.ErrDisabled) {
		err = errors.New("storage.driver none: reminders need a persistent store")
	}
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	sched := scheduler.New(scheduler.WithLogger(root.With(logx.String("comp", "scheduler"))))
	svc := reminder.New(store, sched, reminder.Options{
		DeliveryTimeout: durs.DeliveryTimeout,
		RecoveryLimit:   cfg.Reminders.RecoveryLimit,
		Logger:          root.With(logx.String("comp", "reminder")),
		Bus:             bus,
	})
	resync := cfg.Reminders.ResyncSpec
	if resync == "" {
		resync = reminder.DefaultResyncSpec
	}
	prune := cfg.Reminders.PruneSpec
	if prune == "" {
		prune = reminder.DefaultPruneSpec
	}
	maint, err := reminder.NewMaintenance(svc, reminder.MaintenanceConfig{
		ResyncSpec: resync,
		PruneSpec:  prune,
		Retention:  durs.Retention,
		Location:   loc,
	}, root.With(logx.String("comp", "maintenance")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logs,
		bus:       bus,
		store:     store,
		adapter:   ad,
		sched:     sched,
		reminders: svc,
		maint:     maint,
		loc:       loc,
		durs:      durs,
		updates:   make(chan kit.Update, 256),
	}
	a.router = bot.NewRouter(ad, bot.Options{
		Logger: root.With(logx.String("comp", "commands")),
		Owners: cfg.Telegram.OwnerUserIDs,
	})
	a.router.SetCommands(bot.ReminderCommands(bot.ReminderCommandsConfig{
		Service:  svc,
		Location: loc,
		Status:   a.status,
	}))
	return a, nil
}

// Tools returns the agent tool set bound to one request's scope.
func (a *App) Tools(scope tools.Scope) *tools.Registry {
	return tools.NewRegistry(tools.ReminderTools(tools.Env{
		Service:  a.reminders,
		Logger:   a.log.With(logx.String("comp", "tools")),
		Location: a.loc,
	}, scope)...)
}

// Done is closed when the app context ends, including on a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.reminders.Initialize(a.sup.Context(), telegram.NewNotifier(a.adapter)); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	a.maint.Start()

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})
	a.sup.Go0("eventbus.log", a.logEvents)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})
	a.sup.Go0("config.reload", a.applyReloads)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.log.Debug("agent tools available", logx.String("tools", a.Tools(tools.Scope{}).Names()))
	notifyReady(a.log)
	a.log.Info("app started", logx.String("tz", a.loc.String()))
	return nil
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.SubscribePrefix("reminder.", 128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type)}
			if ev, ok := e.Data.(reminder.TaskEvent); ok {
				fields = append(fields, logx.Int64("task_id", ev.TaskID), logx.Int("count", ev.Count))
			}
			a.log.Trace("event", fields...)
		}
	}
}

func (a *App) status(context.Context) string {
	c := a.sup.Counters()
	return fmt.Sprintf("uptime: %s\npending timers: %d\ngoroutines: %d active, %d panics\nevents dropped: %d",
		time.Since(a.started).Round(time.Second), a.sched.Len(), c.Active, c.Panics, a.bus.Dropped())
}

// Stop shuts components down in dependency order, each step bounded.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	notifyStopping(a.log)
	a.log.Info("stopping")

	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	a.sup.Cancel()
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "reminders", a.durs.ShutdownTimeout, a.reminders.Shutdown)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs fn with at most max of ctx's remaining time. A step that
// overruns is logged and abandoned.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-sctx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
