// Package app wires the reminder bot together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/api"
	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/index"
	"remindbot/internal/notifier"
	"remindbot/internal/remind"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	remind  *remind.Service
	index   *index.Index

	handlers *commands.Handlers
	router   *commands.Router
	api      *api.Server

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm, cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	s, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(s.logging)
	appLog := log.With(logx.String("comp", "app"))

	ad, err := telegram.New(s.telegram, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	store, err := openStore(s, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	engineSvc := engine.New(s.engine, log.With(logx.String("comp", "taskengine")), bus)
	schedSvc := scheduler.New(s.scheduler, engineSvc, log.With(logx.String("comp", "scheduler")))
	notifSvc := notifier.New(s.notifier, ad, log.With(logx.String("comp", "notifier")), bus)
	remindSvc := remind.New(s.remind, store, schedSvc, notifSvc, log.With(logx.String("comp", "remind")), bus)
	ix := index.New(remindSvc, index.WithSeeAllInDirect(s.seeAllInDirect))

	handlers := commands.NewHandlers(newResolver(s, log), remindSvc, ix)
	handlers.SetKeywordErrors(s.keywordErrors)
	router := commands.NewRouter(log.With(logx.String("comp", "commands")), ad, s.owners)
	router.Register(handlers.Commands()...)
	router.Register(router.HelpCommand())
	router.SetKeyword(handlers.Keyword)

	a := &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   engineSvc,
		sched:    schedSvc,
		notif:    notifSvc,
		remind:   remindSvc,
		index:    ix,
		handlers: handlers,
		router:   router,
		updates:  make(chan kit.Update, 256),
	}
	if s.apiOn {
		alog := log.With(logx.String("comp", "api"))
		h := api.NewHandler(remindSvc, ix, alog, s.apiPprof,
			api.WithStatus("scheduler", func() any { return schedSvc.Snapshot() }),
			api.WithStatus("deliveries", func() any { return notifSvc.History() }),
			api.WithStatus("telegram", func() any {
				if sup := ad.Supervisor(); sup != nil {
					return sup.Counters()
				}
				return nil
			}),
			api.WithStatus("goroutines", func() any {
				if a.sup == nil {
					return nil
				}
				return a.sup.Counters()
			}),
		)
		a.api = api.NewServer(s.api, h, alog)
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start rehydrates every stored reminder before the bot accepts a single
// message, then brings up the transport, the command dispatcher and the
// optional API, and finally reports READY to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapConfig(cfg)
		return err
	})

	if a.engine.Enabled() {
		a.engine.Start(runCtx)
	} else {
		a.log.Warn("task engine disabled; reminders will not fire")
	}

	rep, err := a.remind.Startup(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	a.sched.Start(runCtx)
	a.log.Info("reminders loaded", logx.String("summary", rep.Summary()), logx.Int("scheduled", rep.Scheduled))

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}
	cancel()

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if a.api != nil {
		if err := a.api.Start(runCtx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify READY sent")
	}
	a.log.Info("app started")
	return nil
}

// applyConfig pushes the hot-reloadable parts of newCfg into the running
// components. Everything else is reported as needing a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	s, err := mapConfig(newCfg)
	if err != nil {
		// The validator already rejects these; keep the running config.
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(s.logging)
	a.router.SetOwners(s.owners)
	a.index.SetSeeAllInDirect(s.seeAllInDirect)
	a.handlers.SetKeywordErrors(s.keywordErrors)
	a.notif.Apply(s.notifier)
	a.remind.Apply(s.remind)

	if restart := config.RestartRequired(oldCfg, newCfg, sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Stop intake first, then triggers, then the executor, then persistence.
	a.step(ctx, "api", time.Second, func(c context.Context) error {
		if a.api != nil {
			a.api.Stop(c)
		}
		return nil
	})
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "storage", 2*time.Second, func(c context.Context) error {
		if err := a.store.Flush(c); err != nil {
			a.log.Warn("final snapshot write failed", logx.Err(err))
		}
		return a.store.Close()
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. fn must honor its context.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
