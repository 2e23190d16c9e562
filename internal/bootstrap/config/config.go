package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/errs"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	MagicLink MagicLinkConfig `mapstructure:"magic_link"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type AppConfig struct {
	Name         string        `mapstructure:"name"`
	Env          string        `mapstructure:"env"`
	DashboardTTL time.Duration `mapstructure:"dashboard_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr          string `mapstructure:"addr"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	PortalBaseURL string `mapstructure:"portal_base_url"`
}

type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	PerNCRTimeout time.Duration `mapstructure:"per_ncr_timeout"`
}

type PolicyConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type MagicLinkConfig struct {
	DefaultExpiryHours int `mapstructure:"default_expiry_hours"`
}

type NotifyConfig struct {
	Driver          string        `mapstructure:"driver"`
	NATSURL         string        `mapstructure:"nats_url"`
	SubjectPrefix   string        `mapstructure:"subject_prefix"`
	QueueSize       int           `mapstructure:"queue_size"`
	Workers         int           `mapstructure:"workers"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

// Load reads .env (when present), then the YAML config file, then NCR_*
// environment overrides such as NCR_DATABASE_DSN.
func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	if err := loadDotEnv(logCtx, ".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), configFile != "" && errors.Is(err, os.ErrNotExist):
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("path", configFile))
		default:
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notify_driver", cfg.Notify.Driver),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Notify.Driver) {
	case "log":
	case "nats":
		if strings.TrimSpace(c.Notify.NATSURL) == "" {
			return errors.New("notify.nats_url is required when notify.driver is nats")
		}
	default:
		return fmt.Errorf("unsupported notify.driver %q (expected: log or nats)", c.Notify.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	if c.MagicLink.DefaultExpiryHours < 0 || c.MagicLink.DefaultExpiryHours > 720 {
		return errors.New("magic_link.default_expiry_hours must be between 0 and 720")
	}
	return nil
}

func loadDotEnv(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errs.Wrapf(err, "stat %s", path)
	}
	if err := godotenv.Load(path); err != nil {
		return errs.Wrapf(err, "load %s", path)
	}
	logging.Info(ctx, "environment file loaded", slog.String("path", path))
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ncrflow")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.dashboard_ttl", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".ncrflow/state/ncr.sqlite?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.portal_base_url", "http://localhost:8080")
	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.per_ncr_timeout", "10s")
	v.SetDefault("policy.file", "")
	v.SetDefault("policy.watch", true)
	v.SetDefault("magic_link.default_expiry_hours", 72)
	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject_prefix", "ncr.notifications")
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.delivery_timeout", "10s")
}
