package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/slidesmith/slidesmith/internal/app"
	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/database"
	"github.com/slidesmith/slidesmith/internal/http/handler"
	"github.com/slidesmith/slidesmith/internal/http/middleware"
	"github.com/slidesmith/slidesmith/internal/http/router"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/repository"
	"github.com/slidesmith/slidesmith/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:          "slidesmith",
		Short:        "Slidesmith presentation service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file, existing environment wins")
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return config.LoadEnvFile(envFile)
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newAdminCommand())
	return cmd
}

// bootstrap loads config, opens the database, and wires the auth service.
// Every subcommand starts here.
func bootstrap(ctx context.Context) (*config.Config, *service.AuthService, *observability.Runtime, *slog.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	runtime.LoggerProvider = loggerProvider

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, nil, nil, err
	}
	auth := service.NewAuthService(cfg, repository.NewUserRepository(db), repository.NewSessionRepository(db), logger)
	return cfg, auth, runtime, logger, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and session sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, auth, runtime, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	if cfg.BootstrapDefaultAdmin {
		if err := auth.EnsureDefaultAdmin(); err != nil {
			return fmt.Errorf("bootstrap default admin: %w", err)
		}
	}

	dep := router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, cfg.SessionCookieSecure),
		AdminHandler:     handler.NewAdminHandler(auth),
		AuthService:      auth,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		EnableOTelHTTP:   cfg.EnableOTelHTTP,
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		dep.GlobalRateLimiter = middleware.NewRateLimiterWithBackend(
			middleware.NewRedisFixedWindowLimiter(client, "api"),
			cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware()
		dep.AuthRateLimiter = middleware.NewRateLimiterWithBackend(
			middleware.NewRedisFixedWindowLimiter(client, "auth"),
			cfg.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	a := app.New(cfg, logger, server, runtime, stopSweeper)
	sweeper := service.NewSessionSweeper(auth, cfg.SessionCleanupInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(sweepCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		a.StopBackgroundTasks()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return runtime.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations",
	}
	cmd.AddCommand(newCreateUserCommand())
	cmd.AddCommand(newCleanupSessionsCommand())
	return cmd
}

func newCreateUserCommand() *cobra.Command {
	var (
		username string
		password string
		email    string
		isAdmin  bool
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, auth, runtime, _, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer shutdownRuntime(runtime)
			user, err := auth.CreateUser(username, password, email, isAdmin)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q (id=%d admin=%v)\n", user.Username, user.ID, user.IsAdmin)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	cmd.Flags().StringVar(&email, "email", "", "optional email")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant admin privileges")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newCleanupSessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-sessions",
		Short: "Deactivate expired sessions now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, auth, runtime, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownRuntime(runtime)
			deactivated, err := auth.CleanupExpiredSessions()
			if err != nil {
				return fmt.Errorf("cleanup sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d expired sessions\n", deactivated)
			return nil
		},
	}
}

func shutdownRuntime(runtime *observability.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = runtime.Shutdown(ctx)
}
