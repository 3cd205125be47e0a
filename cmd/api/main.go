package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sectorboard/api/db"
	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/app"
	"sectorboard/api/internal/approval"
	"sectorboard/api/internal/authpw"
	"sectorboard/api/internal/config"
	"sectorboard/api/internal/directory"
	"sectorboard/api/internal/email"
	"sectorboard/api/internal/logging"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/search"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/subtask"
)

const appName = "Sectorboard"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "sectorboard-api",
	Short:         "Sector activity board API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and serve the HTTP and live API",
	RunE:  runServe,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch index from Postgres",
	RunE:  runReindex,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd, reindexCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads and validates config and builds the logger every command shares.
func setup() (config.Config, *zap.Logger, error) {
	cfg := config.Load(envFile)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	sqlDB, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	applied, err := store.ApplyMigrations(ctx, sqlDB, db.Migrations())
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}
	pgStore := store.NewPostgresStore(sqlDB)

	// LISTEN needs a dedicated connection outside database/sql.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("listener pool: %w", err)
	}
	defer pool.Close()

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer redisStore.Close()
	tokens := session.NewTokens(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, redisStore)

	hub := realtime.NewHub(cfg.RealtimeDebounce, logger.Named("realtime"))
	bus := realtime.NewRedisBus(redisStore.Client(), cfg.RedisChannel, hub, logger.Named("bus"))
	listener := realtime.NewListener(pool, hub, logger.Named("listener"))

	searchSvc := newSearch(cfg, pgStore, logger)
	defer searchSvc.close()

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured; invitation tokens are returned in API responses")
	}

	activities := activity.NewService(pgStore, bus, searchSvc.Service, logger.Named("activity"))
	service := app.New(cfg, app.Components{
		Store:      pgStore,
		Tokens:     tokens,
		Accounts:   authpw.NewService(pgStore),
		Activities: activities,
		Subtasks:   subtask.NewService(pgStore, activities, bus, logger.Named("subtask")),
		Approvals:  approval.NewService(pgStore, mailer, appName, strings.TrimRight(cfg.PublicURL, "/")+"/login", logger.Named("approval")),
		Directory: directory.NewService(pgStore, activities, bus, mailer, directory.Options{
			AppName:       appName,
			PublicURL:     cfg.PublicURL,
			InvitationTTL: cfg.InvitationTTL,
		}, logger.Named("directory")),
		Search:         searchSvc.Service,
		Hub:            hub,
		MailConfigured: mailer.IsConfigured(),
	}, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, logger.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return realtime.RunFeed(gctx, "postgres", logger, listener.Run) })
	g.Go(func() error { return realtime.RunFeed(gctx, "redis", logger, bus.Run) })
	g.Go(func() error {
		if _, err := searchSvc.Reindex(gctx, pgStore); err != nil {
			logger.Warn("startup reindex failed", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("sectorboard API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("sectorboard API stopped")
	return err
}

func runReindex(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return errors.New("MEILI_URL is not set")
	}

	sqlDB, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()
	pgStore := store.NewPostgresStore(sqlDB)

	searchSvc := newSearch(cfg, pgStore, logger)
	defer searchSvc.close()
	if searchSvc.Backend() != search.BackendMeili {
		return errors.New("meilisearch is unreachable")
	}
	n, err := searchSvc.Reindex(cmd.Context(), pgStore)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d activities\n", n)
	return nil
}

type searchBackend struct {
	*search.Service
	meili *search.Meili
}

// newSearch wires Meilisearch when configured. The index is passed as an untyped nil
// otherwise so the service sees no index at all.
func newSearch(cfg config.Config, pgStore *store.PostgresStore, logger *zap.Logger) searchBackend {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return searchBackend{Service: search.NewService(nil, pgStore, logger.Named("search"))}
	}
	meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("meili"))
	return searchBackend{Service: search.NewService(meili, pgStore, logger.Named("search")), meili: meili}
}

func (b searchBackend) close() {
	if b.meili != nil {
		b.meili.Close()
	}
}
