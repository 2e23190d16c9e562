package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"ncrflow/internal/bootstrap/config"
	"ncrflow/internal/bootstrap/database"
	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	cacheinfra "ncrflow/internal/infrastructure/cache"
	"ncrflow/internal/infrastructure/notify"
	sqliterepo "ncrflow/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "ncrflow/internal/infrastructure/persistence/sqlite/uow"
	"ncrflow/internal/ports"
	"ncrflow/internal/usecase/ncr"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewNCRRepository,
			fx.As(new(ports.NCRRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewMagicLinkRepository,
			fx.As(new(ports.MagicLinkRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewReferenceRepository,
			fx.As(new(ports.ReferenceRepository)),
		),
	),
	fx.Provide(func(refs ports.ReferenceRepository) ports.ReferenceReadRepository { return refs }),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(providePolicy),
	fx.Provide(provideNotifier),
	fx.Provide(provideNCRService),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func providePolicy(ctx context.Context, cfg config.Config) (*ncr.PolicyHolder, error) {
	policy, err := ncr.LoadPolicy(cfg.Policy.File)
	if err != nil {
		return nil, errs.Wrap(err, "load workflow policy")
	}
	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")), "workflow policy loaded",
		slog.String("policy_file", cfg.Policy.File),
		slog.Int("max_level", policy.Escalation.MaxLevel),
		slog.Bool("allow_direct_close", policy.Close.AllowDirectClose),
	)
	return ncr.NewPolicyHolder(policy), nil
}

// provideNotifier builds the delivery queue. The log sink is always on;
// notify.driver=nats adds publishing to NATS.
func provideNotifier(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.Notifier, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	sinks := []notify.Sink{notify.NewLogSink()}
	var natsSink *notify.NATSSink
	if strings.EqualFold(cfg.Notify.Driver, "nats") {
		sink, err := notify.NewNATSSink(notify.NATSOptions{
			URL:           cfg.Notify.NATSURL,
			SubjectPrefix: cfg.Notify.SubjectPrefix,
			ClientName:    cfg.App.Name,
		})
		if err != nil {
			return nil, err
		}
		natsSink = sink
		sinks = append(sinks, sink)
	}

	queue := notify.NewQueue(notify.QueueOptions{
		Capacity:        cfg.Notify.QueueSize,
		Workers:         cfg.Notify.Workers,
		DeliveryTimeout: cfg.Notify.DeliveryTimeout,
	}, sinks...)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			queue.Start()
			logging.Info(logCtx, "notification queue started", slog.String("driver", cfg.Notify.Driver))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			err := queue.Stop(stopCtx)
			if natsSink != nil {
				if closeErr := natsSink.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}
			return err
		},
	})
	return queue, nil
}

type serviceParams struct {
	fx.In

	Config   config.Config
	Repo     ports.NCRRepository
	Links    ports.MagicLinkRepository
	Refs     ports.ReferenceReadRepository
	UOW      ports.UnitOfWork
	Cache    ports.Cache
	Notifier ports.Notifier
	Policy   *ncr.PolicyHolder
}

func provideNCRService(p serviceParams) *ncr.Service {
	return ncr.NewService(p.Repo, p.Links, p.Refs, p.UOW, p.Cache, p.Notifier, p.Policy, ncr.Options{
		PortalBaseURL:     p.Config.HTTP.PortalBaseURL,
		DefaultLinkExpiry: time.Duration(p.Config.MagicLink.DefaultExpiryHours) * time.Hour,
		PerNCRTimeout:     p.Config.Scheduler.PerNCRTimeout,
		DashboardTTL:      p.Config.App.DashboardTTL,
	})
}

type appParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Policy *ncr.PolicyHolder
	Refs   ports.ReferenceRepository
	UOW    ports.UnitOfWork
	Cache  ports.Cache
}

func provideApp(p appParams) *App {
	return &App{
		Config: p.Config,
		DB:     p.DB,
		Policy: p.Policy,
		Refs:   p.Refs,
		UOW:    p.UOW,
		Cache:  p.Cache,
	}
}
