package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/scheduler"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/storage/postgres"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/storage/sqlite"
)

// backend is an opened entity store and its lifecycle hooks.
type backend struct {
	store    service.Store
	sessions service.Sessions
	ping     func(ctx context.Context) error
	close    func()
}

// openStore opens the configured driver. Migrations run when migrate is true.
func openStore(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (*backend, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn(ctx, "using in-memory store, data is lost on exit")
		store := service.NewMemoryStore(nil)
		return &backend{store: store, sessions: store, close: func() {}}, nil

	case "sqlite":
		if path, _, _ := strings.Cut(cfg.DSN, "?"); path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		repo := sqlite.NewRepository(db)
		if migrate {
			if err := sqlite.RunMigrations(ctx, db); err != nil {
				_ = repo.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		return &backend{
			store:    repo,
			sessions: repo,
			ping:     repo.Ping,
			close:    func() { _ = repo.Close() },
		}, nil

	case "postgres":
		pool, err := postgres.Open(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		repo := postgres.NewRepository(pool)
		return &backend{store: repo, sessions: repo, ping: repo.Ping, close: repo.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func notificationOptions(cfg config.SchedulerConfig, loc *time.Location) service.Options {
	opts := service.DefaultOptions()
	opts.Location = loc
	opts.Cooldown = time.Duration(cfg.CooldownDays) * 24 * time.Hour
	opts.PaymentWindowStart = cfg.PaymentWindowStart
	opts.PaymentWindowEnd = cfg.PaymentWindowEnd
	if len(cfg.ContractStatuses) > 0 {
		opts.ContractStatuses = make([]model.ContractStatus, 0, len(cfg.ContractStatuses))
		for _, s := range cfg.ContractStatuses {
			opts.ContractStatuses = append(opts.ContractStatuses, model.ContractStatus(strings.TrimSpace(s)))
		}
	}
	return opts
}

// newLocker returns the redis tick lock, or nil when no redis address is configured.
func newLocker(ctx context.Context, cfg config.RedisConfig) (scheduler.Locker, func(), error) {
	if cfg.Addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "redis tick lock enabled", "addr", cfg.Addr, "key", cfg.LockKey)
	return scheduler.NewRedisLocker(client, cfg.LockKey, cfg.LockTTL), func() { _ = client.Close() }, nil
}

// engine bundles everything the commands share.
type engine struct {
	cfg       *config.Config
	backend   *backend
	notifier  *service.NotificationService
	scheduler *scheduler.Scheduler
	closers   []func()
}

func newEngine(ctx context.Context, cfg *config.Config, migrate bool) (*engine, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	b, err := openStore(ctx, cfg.Database, migrate)
	if err != nil {
		return nil, err
	}
	e := &engine{cfg: cfg, backend: b, closers: []func(){b.close}}

	locker, closeLocker, err := newLocker(ctx, cfg.Redis)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closeLocker)

	e.notifier = service.NewNotificationService(notificationOptions(cfg.Scheduler, loc))
	e.scheduler = scheduler.New(b.sessions, e.notifier, scheduler.Options{
		Tiers:              cfg.Scheduler.Tiers,
		CleanupDays:        cfg.Scheduler.CleanupDays,
		Location:           loc,
		Locker:             locker,
		ContractExpiryCron: cfg.Scheduler.ContractExpiryCron,
		DocumentExpiryCron: cfg.Scheduler.DocumentExpiryCron,
		PaymentDueCron:     cfg.Scheduler.PaymentDueCron,
		CleanupCron:        cfg.Scheduler.CleanupCron,
	})
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
