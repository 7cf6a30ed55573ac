package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/config"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/handler"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/scheduler"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

func main() {
	root := &cli.Command{
		Name:  "kzh",
		Usage: "Lease contract and document backend with expiry notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "YAML configuration file; empty to use environment only",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			schedulerCommand(),
			tickCommand(),
			cleanupCommand(),
			migrateCommand(),
			seedCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config and initializes logging.
func loadConfig(c *cli.Command) (*config.Config, error) {
	path := c.String("config")
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !c.IsSet("config") {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded", "driver", cfg.Database.Driver, "timezone", cfg.Scheduler.Timezone)
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and, when enabled, the notification scheduler",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	eng, err := newEngine(ctx, cfg, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer eng.Close()

	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		return fmt.Errorf("initialize minio: %w", err)
	}
	if err := minioSvc.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure minio bucket: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.Deps{
		Config:   cfg,
		Store:    eng.backend.store,
		Files:    minioSvc,
		Notifier: eng.notifier,
		Runner:   eng.scheduler,
		Ping:     eng.backend.ping,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	var schedDone chan error
	if cfg.Scheduler.Enabled {
		schedDone = make(chan error, 1)
		go func() { schedDone <- eng.scheduler.Run(schedCtx) }()
	} else {
		slog.Info("scheduler disabled, pipelines run only on demand")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("shutting down server...", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			eng.scheduler.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case err := <-schedDone:
		// Run only returns early on a bad schedule.
		_ = srv.Close()
		return fmt.Errorf("scheduler failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop waits for a running pipeline to finish.
	stopScheduler()
	eng.scheduler.Stop()
	if schedDone != nil {
		if err := <-schedDone; err != nil {
			return err
		}
	}

	slog.Info("server exited gracefully")
	return nil
}

func schedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Run only the notification scheduler",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			eng, err := newEngine(ctx, cfg, cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return eng.scheduler.Run(ctx)
		},
	}
}

func tickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Run pipelines once and print the report",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "pipeline",
				Usage: "contract_expiry, document_expiry, payment_due or cleanup; repeatable. Defaults to the notification pipelines",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var pipelines []scheduler.Pipeline
			for _, name := range c.StringSlice("pipeline") {
				p, err := scheduler.ParsePipeline(name)
				if err != nil {
					return err
				}
				pipelines = append(pipelines, p)
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			eng, err := newEngine(ctx, cfg, cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer eng.Close()

			report, err := eng.scheduler.Tick(ctx, pipelines...)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d pipeline(s) failed", len(failed))
			}
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete read notifications older than --days",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "retention in days; defaults to scheduler.cleanup_days"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			days := cfg.Scheduler.CleanupDays
			if c.IsSet("days") {
				days = int(c.Int("days"))
			}

			eng, err := newEngine(ctx, cfg, cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer eng.Close()

			store, release, err := eng.backend.sessions.Session(ctx)
			if err != nil {
				return err
			}
			defer release()

			deleted, err := eng.notifier.CleanupOldNotifications(ctx, store, days)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d notifications\n", deleted)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			b, err := openStore(ctx, cfg.Database, true)
			if err != nil {
				return err
			}
			b.close()
			slog.Info("migrations applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create the users listed in the configuration, plus an optional admin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "admin-username", Usage: "also create this admin account"},
			&cli.StringFlag{Name: "admin-password", Sources: cli.EnvVars(config.EnvPrefix + "ADMIN_PASSWORD")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			users := cfg.Users
			if name := c.String("admin-username"); name != "" {
				users = append(users, config.User{
					Username: name,
					Password: c.String("admin-password"),
					Role:     "admin",
				})
			}
			if len(users) == 0 {
				return errors.New("no users to seed; add users to the config or pass --admin-username")
			}

			b, err := openStore(ctx, cfg.Database, cfg.Database.AutoMigrate)
			if err != nil {
				return err
			}
			defer b.close()

			n, err := service.SeedUsers(ctx, b.store, users)
			if err != nil {
				return err
			}
			fmt.Printf("created %d users\n", n)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
