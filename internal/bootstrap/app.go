package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"ncrflow/internal/bootstrap/config"
	"ncrflow/internal/bootstrap/database"
	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	"ncrflow/internal/ports"
	"ncrflow/internal/usecase/ncr"
)

// App bundles what commands need beyond the NCR service itself.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Policy *ncr.PolicyHolder
	Refs   ports.ReferenceRepository
	UOW    ports.UnitOfWork
	Cache  ports.Cache
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration", slog.String("database_driver", a.Config.Database.Driver))

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

// Ready reports whether the database answers. lastRun is the most recent
// scheduler heartbeat, empty when none was recorded.
func (a *App) Ready(ctx context.Context) (lastRun string, err error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := database.Ping(ctx, a.DB); err != nil {
		return "", err
	}
	if a.Cache == nil {
		return "", nil
	}
	value, found, err := a.Cache.Get(ctx, ncr.SchedulerLastRunKey)
	if err != nil {
		logging.Warn(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")),
			"read scheduler heartbeat failed", slog.Any("err", errs.Loggable(err)))
		return "", nil
	}
	if !found {
		return "", nil
	}
	return value, nil
}
