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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"reclaim/account"
	"reclaim/cache"
	"reclaim/common"
	"reclaim/config"
	"reclaim/database"
	"reclaim/ratelimit"
	"reclaim/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reclaim",
		Short:         "Reclaim recovery program API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := bootstrap()
				if err != nil {
					return err
				}
				return database.RunMigrations(db)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert the program phases, exercises and assessments",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := bootstrap()
				if err != nil {
					return err
				}
				if err := database.RunMigrations(db); err != nil {
					return err
				}
				return database.Seed(db)
			},
		},
		&cobra.Command{
			Use:   "promote <email>",
			Short: "Grant admin access to an existing user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := bootstrap()
				if err != nil {
					return err
				}
				if err := account.Promote(db, args[0]); err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("no user with email %s", args[0])
					}
					return err
				}
				log.Info().Str("email", account.NormalizeEmail(args[0])).Msg("user promoted to admin")
				return nil
			},
		},
	)
	return root
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	common.SetupLogging(cfg.Logging)

	db, err := common.ConnectDb(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func serve() error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	if err := database.Seed(db); err != nil {
		return err
	}

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.Limits, cfg.Redis)
	ratelimit.StartCleanup(ctx, limiter, 10*time.Minute)

	pages := cache.NewStore(cfg.Cache.Dir, cfg.Cache.MaxAge)
	go sweepCache(ctx, pages, cfg.Cache.MaxAge)

	router := server.NewRouter(db, cfg, server.Options{Limiter: limiter, Cache: pages})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepCache(ctx context.Context, pages *cache.Store, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pages.ClearOld(); err != nil {
				log.Warn().Err(err).Msg("cache sweep failed")
			}
		}
	}
}
