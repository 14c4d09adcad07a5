package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/devforum-backend/internal/config"
	"github.com/chachabrian/devforum-backend/internal/database"
	"github.com/chachabrian/devforum-backend/internal/handlers"
	"github.com/chachabrian/devforum-backend/internal/logger"
	"github.com/chachabrian/devforum-backend/internal/metrics"
	"github.com/chachabrian/devforum-backend/internal/middleware"
	"github.com/chachabrian/devforum-backend/internal/notify"
	"github.com/chachabrian/devforum-backend/internal/services"
	"github.com/chachabrian/devforum-backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:           "devforum",
		Short:         "DevForum identity API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading APP_* variables (default .env if present)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envFiles)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(envFiles)
		},
	})

	return cmd
}

func setup(envFiles []string) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Development())
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func migrate(envFiles []string) error {
	cfg, log, err := setup(envFiles)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrate needs the postgres driver, got %q", cfg.Database.Driver)
	}
	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func serve(envFiles []string) error {
	cfg, log, err := setup(envFiles)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	store, db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		if err := database.RunMigrations(db); err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	notifier, closeNotifier, err := notify.New(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	tokens := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)
	identity := services.NewIdentityService(store, notifier, tokens, log, services.Options{
		BcryptCost:           cfg.Auth.BcryptCost,
		OTPTTL:               cfg.OTP.TTL,
		RequireVerifiedLogin: cfg.Auth.RequireVerifiedLogin,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rdb, err := database.InitRedis(context.Background(), cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = middleware.NewRateLimiter(rdb, "ratelimit:auth", cfg.RateLimit.Limit, cfg.RateLimit.Window, log)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Identity:     identity,
		Tokens:       tokens,
		Log:          log,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Login: handlers.LoginOptions{
			CookieMaxAge: int(cfg.JWT.TTL.Seconds()),
			SecureCookie: !cfg.Development(),
		},
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
