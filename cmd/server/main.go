package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"sort"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/lmittmann/tint"
	"github.com/researchllm/identity"
	"github.com/researchllm/identity/notifier"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	slogger := newSlogger(cfg.Log.Level)
	logger := slogAdapter{log: slogger}

	if err := run(cfg, slogger, logger); err != nil {
		slogger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *AppConfig, slogger *slog.Logger, logger identity.Logger) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := identity.NewRepositoryManager(db)
	repos.MustValidate()

	provider := identity.NewUserProvider(repos.Users()).WithLogger(logger)
	auther := identity.NewAuthenticator(provider, cfg.Auth).WithLogger(logger)

	routeAuth, err := identity.NewHTTPAuthenticator(auther, cfg.Auth)
	if err != nil {
		return err
	}
	routeAuth.Logger = logger

	dispatcher := buildNotifier(cfg, slogger)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       "researchllm-identity",
			StrictRouting: false,
		}))
	})

	identity.RegisterAuthRoutes(srv.Router().Group("/"),
		identity.WithControllerLogger(logger),
		identity.WithControllerRepo(repos),
		identity.WithControllerAuther(auther),
		identity.WithControllerMiddleware(routeAuth),
		identity.WithControllerConfig(cfg.Auth),
		identity.WithControllerNotifier(dispatcher),
		identity.WithControllerDebug(cfg.Log.Debug),
	)

	slogger.Info("listening", "address", cfg.Server.Address)
	srv.Serve(cfg.Server.Address)

	waitExitSignal()
	slogger.Info("shutting down")

	return nil
}

func openDatabase(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := runMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *bun.DB) error {
	const dir = "data/sql/migrations"
	migrations := identity.GetMigrationsFS()

	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := fs.ReadFile(migrations, path.Join(dir, name))
		if err != nil {
			return err
		}

		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}

	return nil
}

func buildNotifier(cfg *AppConfig, slogger *slog.Logger) identity.Notifier {
	if cfg.SMTP.Host == "" {
		slogger.Warn("no SMTP host configured, notifications go to the log")
		return notifier.NewLog(slogger)
	}

	smtp, err := notifier.NewSMTP(cfg.NotifierConfig())
	if err != nil {
		slogger.Warn("SMTP notifier misconfigured, notifications go to the log", "error", err)
		return notifier.NewLog(slogger)
	}

	return smtp
}

func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: lvl}))
}

// slogAdapter bridges the printf-style Logger interface onto slog
type slogAdapter struct {
	log *slog.Logger
}

func (l slogAdapter) Debug(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l slogAdapter) Info(format string, args ...any)  { l.log.Info(fmt.Sprintf(format, args...)) }
func (l slogAdapter) Warn(format string, args ...any)  { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l slogAdapter) Error(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }

func waitExitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
