// Package app wires the service together: config, logging, storage, the
// shared API client, the dispatcher and the relay loop, plus the
// optional metrics listener and config hot reload.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wikiwatch/internal/config"
	"wikiwatch/internal/dispatch"
	"wikiwatch/internal/eventbus"
	"wikiwatch/internal/metrics"
	"wikiwatch/internal/relay"
	"wikiwatch/internal/runtime/supervisor"
	"wikiwatch/internal/storage"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	client  *wiki.Client
	relay   *relay.Service
	metrics *metrics.Server
}

// New loads the config file and constructs every component. Startup
// failures here (unreadable config, unreachable store) are the only
// errors that terminate the process.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	storeCfg, err := cfg.StorageOptions()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	clientCfg, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	client := wiki.NewClient(clientCfg, nil, log.With(logx.String("comp", "wiki")))

	dispatcher := dispatch.New(log.With(logx.String("comp", "dispatch")), bus)

	relayCfg, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	relaySvc, err := relay.New(relayCfg, relay.Deps{
		Store:      store,
		Client:     client,
		HTTP:       &http.Client{Timeout: 15 * time.Second},
		Dispatcher: dispatcher,
		Bus:        bus,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}

	metricsSrv := metrics.NewServer(metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	}, log.With(logx.String("comp", "metrics")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		client:  client,
		relay:   relaySvc,
		metrics: metricsSrv,
	}, nil
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	interval, err := config.ParseDurationOrDefault("relay.interval", cfg.Relay.Interval, 10*time.Second)
	if err != nil {
		return relay.Config{}, err
	}
	grace, err := config.ParseDurationOrDefault("relay.grace", cfg.Relay.Grace, 15*time.Second)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		Interval: interval,
		Schedule: cfg.Relay.Schedule,
		Timezone: cfg.Relay.Timezone,
		Grace:    grace,
	}, nil
}

// Store exposes the persistence layer for the management subcommands.
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled, either by
// a fatal component error or by Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	if err := a.metrics.Start(); err != nil {
		return err
	}
	if err := a.relay.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the newest pending config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						break drain
					}
				}
				a.applyReload(cfg)
			}
		}
	})

	// Debug trace of pipeline signals (cycle.*, source.failed,
	// delivery.failed). Components publish; this is the only generic
	// consumer.
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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.log.Info("started")
	return nil
}

// applyReload applies the hot-reloadable subset of the config: logging
// and the poll interval. Storage and channel changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(cfg.LogxConfig())

	if interval, err := config.ParseDurationOrDefault("relay.interval", cfg.Relay.Interval, 10*time.Second); err == nil {
		a.relay.SetInterval(interval)
	}

	a.log.Info("config applied",
		logx.String("log_level", cfg.Logging.Level),
		logx.String("interval", cfg.Relay.Interval))
}

// Stop drains the relay, shuts the listeners down and closes the store,
// bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if a.relay != nil {
		if err := a.relay.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
