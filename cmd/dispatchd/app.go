package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/dispatchkit/pkg/api"
	"github.com/dmitrymomot/dispatchkit/pkg/audit"
	"github.com/dmitrymomot/dispatchkit/pkg/channel/inapp"
	inappstore "github.com/dmitrymomot/dispatchkit/pkg/channel/inapp/pgstore"
	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatch"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/mongo"
	"github.com/dmitrymomot/dispatchkit/pkg/opensearch"
	"github.com/dmitrymomot/dispatchkit/pkg/pg"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
	"github.com/dmitrymomot/dispatchkit/pkg/preference/pgsource"
	"github.com/dmitrymomot/dispatchkit/pkg/ratelimiter"
	"github.com/dmitrymomot/dispatchkit/pkg/redis"
	"github.com/dmitrymomot/dispatchkit/pkg/render"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker/pgstore"
)

// app holds the wired components and what has to be released on exit.
type app struct {
	cfg      appConfig
	log      *slog.Logger
	checks   []httpserver.Check
	closers  []func(context.Context) error
	renderer *render.Renderer
	inbox    *inapp.Inbox
	tracker  *tracker.Tracker
	limiter  *ratelimiter.Limiter
	submit   *ratelimiter.Bucket
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	a := &app{cfg: cfg, log: log}
	defer a.close()

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	if err := a.openRateLimits(ctx); err != nil {
		return err
	}
	sink, err := a.openAudit(ctx)
	if err != nil {
		return err
	}

	var inboxCfg inapp.Config
	if err := config.Load(&inboxCfg); err != nil {
		return err
	}
	a.inbox = inapp.NewInbox(st.inbox,
		inapp.WithConfig(inboxCfg),
		inapp.WithLogger(log.With(logger.Component("inbox"))),
	)
	a.closers = append(a.closers, func(context.Context) error { return a.inbox.Close() })

	defs, err := loadDefinitions(cfg.ChannelsFile)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(ctx, defs.Channels, adapterFactories(a.inbox), log)
	if err != nil {
		return err
	}

	a.renderer = render.New()
	if cfg.TemplatesFile != "" {
		err = a.renderer.LoadFile(cfg.TemplatesFile, render.Builtin()...)
	} else {
		err = a.renderer.Replace(render.Builtin())
	}
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	var dispatchCfg dispatch.Config
	if err := config.Load(&dispatchCfg); err != nil {
		return err
	}
	if err := checkLease(cfg.Lease, dispatchCfg.SendTimeout, defs.Channels); err != nil {
		return err
	}

	trackerOpts := []tracker.Option{
		tracker.WithPolicies(registry),
		tracker.WithLease(cfg.Lease),
		tracker.WithMaxThrottles(cfg.MaxThrottles),
		tracker.WithLogger(log.With(logger.Component("tracker"))),
	}
	if sink != nil {
		trackerOpts = append(trackerOpts, tracker.WithSink(sink))
	}
	a.tracker = tracker.New(st.tracker, trackerOpts...)
	a.closers = append(a.closers, func(context.Context) error { return a.tracker.Close() })

	resolver := preference.NewResolver(st.preferences, registry.Names)
	d := dispatch.New(a.tracker, registry, resolver, a.renderer,
		dispatch.WithConfig(dispatchCfg),
		dispatch.WithLimiter(a.limiter),
		dispatch.WithLogger(log),
	)
	for _, t := range defs.Types {
		if err := d.RegisterType(t); err != nil {
			return err
		}
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	handler := a.routes(d, httpCfg.CheckTimeout)
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	scheduler, err := newScheduler(ctx, log,
		job{name: "recover", schedule: cfg.RecoverSchedule, timeout: time.Minute, run: d.Recover},
		job{name: "inbox_purge", schedule: cfg.PurgeSchedule, timeout: 5 * time.Minute, run: func(ctx context.Context) error {
			n, err := a.inbox.PurgeExpired(ctx)
			if n > 0 {
				log.LogAttrs(ctx, slog.LevelInfo, "expired inbox entries purged", logger.Count(n))
			}
			return err
		}},
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, handler) })
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	if cfg.TemplatesFile != "" && cfg.WatchTemplates {
		g.Go(func() error {
			return a.renderer.Watch(gctx, cfg.TemplatesFile, log.With(logger.Component("render")), render.Builtin()...)
		})
	}

	log.LogAttrs(ctx, slog.LevelInfo, "dispatchd started",
		slog.String("storage", cfg.Storage),
		slog.Int("channels", len(defs.Channels)),
		slog.Int("types", len(defs.Types)),
	)
	return g.Wait()
}

type stores struct {
	tracker     tracker.Store
	preferences preference.Source
	inbox       inapp.Store
}

func (a *app) openStores(ctx context.Context) (stores, error) {
	if a.cfg.Storage == "memory" {
		prefs, err := loadPreferences(a.cfg.PreferencesFile)
		if err != nil {
			return stores{}, fmt.Errorf("preferences: %w", err)
		}
		a.log.Warn("using in-memory storage, delivery state is lost on restart")
		return stores{
			tracker:     tracker.NewMemoryStore(),
			preferences: prefs,
			inbox:       inapp.NewMemoryStore(),
		}, nil
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return stores{}, err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return stores{}, err
	}
	db := pg.OpenDB(pool)
	a.closers = append(a.closers, func(context.Context) error {
		err := db.Close()
		pool.Close()
		return err
	})
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Func: pg.Healthcheck(pool)})

	if err := pgstore.Migrate(ctx, db, pgCfg, a.log); err != nil {
		return stores{}, fmt.Errorf("migrate tracker: %w", err)
	}
	if err := pgsource.Migrate(ctx, db, pgCfg, a.log); err != nil {
		return stores{}, fmt.Errorf("migrate preferences: %w", err)
	}
	if err := inappstore.Migrate(ctx, db, pgCfg, a.log); err != nil {
		return stores{}, fmt.Errorf("migrate inbox: %w", err)
	}

	var prefs preference.Source = pgsource.New(db)
	if a.cfg.PreferencesFile != "" {
		mem, err := loadPreferences(a.cfg.PreferencesFile)
		if err != nil {
			return stores{}, fmt.Errorf("preferences: %w", err)
		}
		prefs = mem
	}
	return stores{
		tracker:     pgstore.New(db),
		preferences: prefs,
		inbox:       inappstore.New(db),
	}, nil
}

func (a *app) openRateLimits(ctx context.Context) error {
	var store ratelimiter.Store
	switch a.cfg.RateLimitStore {
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.checks = append(a.checks, httpserver.Check{Name: "redis", Func: redis.Healthcheck(client)})
		store = ratelimiter.NewRedisStore(client)
	default:
		mem := ratelimiter.NewMemoryStore()
		a.closers = append(a.closers, func(context.Context) error {
			mem.Close()
			return nil
		})
		store = mem
	}

	a.limiter = ratelimiter.NewLimiter(store)
	if a.cfg.SubmitBurst > 0 {
		bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
			Capacity:       a.cfg.SubmitBurst,
			RefillRate:     a.cfg.SubmitRefill,
			RefillInterval: a.cfg.SubmitInterval,
		})
		if err != nil {
			return fmt.Errorf("submit rate limit: %w", err)
		}
		a.submit = bucket
	}
	return nil
}

// openAudit ships delivery events to the configured backend. A nil sink
// leaves the store's event log as the only record.
func (a *app) openAudit(ctx context.Context) (tracker.EventSink, error) {
	var bw audit.BatchWriter
	switch a.cfg.AuditBackend {
	case "":
		return nil, nil
	case "mongo":
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, err
		}
		client, err := mongo.New(ctx, mongoCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		a.checks = append(a.checks, httpserver.Check{Name: "mongo", Func: mongo.Healthcheck(client)})
		w := mongo.NewEventWriter(client, mongoCfg)
		if err := w.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("audit indexes: %w", err)
		}
		bw = w
	default:
		var osCfg opensearch.Config
		if err := config.Load(&osCfg); err != nil {
			return nil, err
		}
		client, err := opensearch.New(ctx, osCfg)
		if err != nil {
			return nil, err
		}
		a.checks = append(a.checks, httpserver.Check{Name: "opensearch", Func: opensearch.Healthcheck(client)})
		bw = opensearch.NewEventWriter(client, osCfg.IndexPrefix)
	}

	var auditCfg audit.Config
	if err := config.Load(&auditCfg); err != nil {
		return nil, err
	}
	w, err := audit.NewAsyncWriter(bw, auditCfg, audit.WithLogger(a.log.With(logger.Component("audit"))))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, w.Close)
	return w, nil
}

func (a *app) routes(d *dispatch.Dispatcher, checkTimeout time.Duration) http.Handler {
	opts := []api.Option{
		api.WithInbox(a.inbox),
		api.WithLogger(a.log.With(logger.Component("api"))),
	}
	if a.submit != nil {
		opts = append(opts, api.WithSubmitLimit(a.submit, ratelimiter.HeaderKey(a.cfg.APIKeyHeader)))
	}

	r := chi.NewRouter()
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.log, checkTimeout, a.checks...))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", api.New(d, opts...))
	return r
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.LogAttrs(ctx, slog.LevelWarn, "shutdown cleanup failed", logger.Error(err))
	}
}
