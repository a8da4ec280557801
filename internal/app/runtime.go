package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"memobot/internal/config"
	"memobot/internal/dispatch"
	"memobot/internal/eventbus"
	"memobot/internal/intent/resolver"
	"memobot/internal/notify"
	"memobot/internal/provider"
	"memobot/internal/storage"
	"memobot/internal/transport/telegram"
	logx "memobot/pkg/logx"
)

// Runtime is the composition root: it builds every service from the config
// file and owns their lifecycles.
type Runtime struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.ReminderStore
	bus   eventbus.Bus
	disp  *dispatch.Service
	app   *App
	tg    *telegram.Adapter

	cancel context.CancelFunc
}

func NewRuntime(cfgPath string) (*Runtime, error) {
	r := &Runtime{mgr: config.NewManager(cfgPath)}

	cfg, err := r.mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r.logSvc, r.log = logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	r.mgr.SetLogger(r.log.With(logx.String("comp", "config")))
	r.mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	r.store, err = storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, r.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	r.bus = eventbus.New()

	res, err := buildResolver(cfg.Resolver, r.log)
	if err != nil {
		return nil, err
	}

	sender, err := r.buildSender(cfg)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		dcfg, err := dispatchConfig(cfg.Dispatch)
		if err != nil {
			return nil, err
		}
		r.disp = dispatch.New(dcfg, r.store, sender, r.bus,
			r.log.With(logx.String("comp", "dispatch")))
	} else {
		r.log.Warn("storage disabled; reminders will not be persisted or dispatched")
	}

	r.app = New(Config{DefaultTimezone: cfg.Resolver.DefaultTimezone},
		r.store, res, r.disp, r.bus, r.log.With(logx.String("comp", "app")))

	if cfg.Telegram.Enabled {
		pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
		r.tg, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, r.app, r.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
	}
	return r, nil
}

func buildResolver(cfg config.ResolverConfig, log logx.Logger) (*resolver.Resolver, error) {
	entries := make([]resolver.Entry, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		apiKey := pc.APIKey
		if apiKey == "" && pc.APIKeyEnv != "" {
			apiKey = os.Getenv(pc.APIKeyEnv)
		}
		ad, err := provider.New(provider.Config{
			Name:    pc.Name,
			Kind:    pc.Kind,
			BaseURL: pc.BaseURL,
			APIKey:  apiKey,
			Model:   pc.Model,
		}, log.With(logx.String("provider", pc.Name)))
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		timeout, err := config.ParseDurationField("resolver.providers.timeout", pc.Timeout)
		if err != nil {
			return nil, err
		}
		entries = append(entries, resolver.Entry{Adapter: ad, Timeout: timeout})
	}
	return resolver.New(log.With(logx.String("comp", "resolver")), entries...), nil
}

func dispatchConfig(cfg config.DispatchConfig) (dispatch.Config, error) {
	var (
		out  dispatch.Config
		errs []error
		dur  = func(path, raw string) time.Duration {
			d, err := config.ParseDurationField(path, raw)
			if err != nil {
				errs = append(errs, err)
			}
			return d
		}
	)
	out.Workers = cfg.Workers
	out.QueueSize = cfg.QueueSize
	out.Retry.MaxAttempts = cfg.RetryMax
	out.Retry.Backoff = dur("dispatch.retry_base", cfg.RetryBase)
	out.Retry.MaxBackoff = dur("dispatch.retry_max_delay", cfg.RetryMaxDelay)
	out.SweepEvery = dur("dispatch.sweep_every", cfg.SweepEvery)
	out.SweepHorizon = dur("dispatch.sweep_horizon", cfg.SweepHorizon)
	return out, errors.Join(errs...)
}

// buildSender picks the delivery transport. Telegram binds late because the
// adapter is constructed after the dispatch service that sends through it.
func (r *Runtime) buildSender(cfg *config.Config) (notify.Sender, error) {
	var base notify.Sender
	if cfg.Telegram.Enabled {
		base = notify.Func(func(ctx context.Context, userID int64, channel, text string) error {
			if r.tg == nil {
				return errors.New("telegram adapter not ready")
			}
			return r.tg.Send(ctx, userID, channel, text)
		})
	} else {
		base = notify.LogOnly(r.log.With(logx.String("comp", "notify")))
	}
	if cfg.Notify.RatePerSec > 0 {
		return notify.NewRateLimited(base, cfg.Notify.RatePerSec), nil
	}
	return base, nil
}

// Handler exposes the message entrypoint for transports wired externally.
func (r *Runtime) Handler() *App { return r.app }

func (r *Runtime) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.disp != nil {
		if err := r.disp.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("start dispatch: %w", err)
		}
	}
	if r.tg != nil {
		if err := r.tg.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("start telegram: %w", err)
		}
	}

	go func() {
		if err := r.mgr.Watch(runCtx); err != nil {
			r.log.Warn("config watch exited", logx.Err(err))
		}
	}()
	go r.applyConfigUpdates(runCtx)
	go r.logEvents(runCtx)

	r.log.Info("memobot started")
	return nil
}

// applyConfigUpdates handles hot-reloadable settings. Only logging applies
// live; everything else needs a restart and is logged as such.
func (r *Runtime) applyConfigUpdates(ctx context.Context) {
	ch := r.mgr.Subscribe(4)
	defer r.mgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			r.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			r.log.Info("config reloaded; non-logging changes apply on restart")
		}
	}
}

func (r *Runtime) logEvents(ctx context.Context) {
	ch, unsub := r.bus.Subscribe(32)
	defer unsub()
	log := r.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func (r *Runtime) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.tg != nil {
		_ = r.tg.Stop(ctx)
	}
	if r.disp != nil {
		r.disp.Stop(ctx)
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn("storage close failed", logx.Err(err))
		}
	}
	r.log.Info("memobot stopped")
	if r.logSvc != nil {
		return r.logSvc.Close()
	}
	return nil
}
