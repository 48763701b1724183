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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/config"
	"github.com/iliyamo/weighbridge-ops/internal/database"
	"github.com/iliyamo/weighbridge-ops/internal/handler"
	"github.com/iliyamo/weighbridge-ops/internal/logging"
	"github.com/iliyamo/weighbridge-ops/internal/middleware"
	"github.com/iliyamo/weighbridge-ops/internal/queue"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/router"
	"github.com/iliyamo/weighbridge-ops/internal/seed"
	"github.com/iliyamo/weighbridge-ops/internal/service"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var migrate, runSeed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate, runSeed)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	cmd.Flags().BoolVar(&runSeed, "seed", false, "apply the RBAC matrix and bootstrap accounts before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Env, cfg.LogLevel)
			defer func() { _ = log.Sync() }()

			db, err := database.Open(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := database.ApplySchema(cmd.Context(), db, cfg.DBDriver); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply the RBAC matrix and the optional admin/user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Env, cfg.LogLevel)
			defer func() { _ = log.Sync() }()

			db, err := database.Open(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			rdb := config.NewRedisClient(log)
			if rdb != nil {
				defer rdb.Close()
			}
			cacheCfg := config.LoadCacheConfig()

			s := &seed.Seeder{
				Roles:      repository.NewRoleRepo(db),
				Users:      repository.NewUserRepo(db),
				BcryptCost: cfg.BcryptCost,
				Log:        log,
				Prune:      prune,
				OnMatrixChange: []func(context.Context) error{
					func(ctx context.Context) error { return middleware.PurgeCache(ctx, cacheCfg, rdb) },
				},
			}
			return runSeeder(cmd.Context(), s, cfg)
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "also remove grants the matrix does not list")
	return cmd
}

func runSeeder(ctx context.Context, s *seed.Seeder, cfg config.Config) error {
	m, err := seed.DefaultMatrix()
	if err != nil {
		return err
	}
	accounts := seed.AccountsFromConfig(cfg.Seed)
	if len(accounts) == 0 {
		s.Log.Warn("ADMIN_EMAIL/ADMIN_PASSWORD and USER_EMAIL/USER_PASSWORD not set, no accounts seeded")
	}
	return s.Seed(ctx, m, accounts)
}

// serve wires the stores, services and HTTP surface and runs until ctx is
// cancelled, then drains in-flight requests.
func serve(ctx context.Context, migrate, runSeed bool) error {
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.ApplySchema(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	rateCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	sessions := repository.NewTokenRepo(db)
	items := repository.NewItemRepo(db)

	var perms middleware.PermissionChecker = roles
	var permCache *service.PermissionCache
	if cfg.PermissionCacheTTL > 0 {
		permCache = service.NewPermissionCache(roles, cfg.PermissionCacheTTL)
		perms = permCache
		log.Info("permission cache enabled", zap.Duration("ttl", cfg.PermissionCacheTTL))
	}

	if runSeed {
		s := &seed.Seeder{Roles: roles, Users: users, BcryptCost: cfg.BcryptCost, Log: log,
			OnMatrixChange: []func(context.Context) error{
				func(ctx context.Context) error { return middleware.PurgeCache(ctx, cacheCfg, rdb) },
			}}
		if permCache != nil {
			s.OnMatrixChange = append(s.OnMatrixChange, func(context.Context) error { permCache.Flush(); return nil })
		}
		if err := runSeeder(ctx, s, cfg); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	mailer, err := service.NewMailer(cfg, log)
	if err != nil {
		return err
	}
	if cfg.Mail.Transport == "queue" && cfg.Mail.ConsumerEnabled {
		var deliver service.Mailer = service.NewSMTPMailer(cfg.Mail, log)
		if cfg.Mail.Host == "" {
			deliver = &service.LogMailer{Log: log}
		}
		go func() {
			if err := queue.StartMailConsumer(ctx, cfg.RabbitMQ, deliver.Send, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("mail consumer stopped", zap.Error(err))
			}
		}()
	}

	issuer := utils.NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	auth := service.NewAuthService(users, sessions, roles, issuer, mailer, log, service.AuthOptions{
		BcryptCost:           cfg.BcryptCost,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		FrontendURL:          cfg.FrontendURL,
		ResetRevokesSessions: cfg.ResetRevokesSessions,
	})

	e := router.New(router.Deps{
		Cfg:         cfg,
		RateLimit:   rateCfg,
		Cache:       cacheCfg,
		DB:          db,
		Redis:       rdb,
		Log:         log,
		Tokens:      issuer,
		Permissions: perms,
		Auth:        handler.NewAuthHandler(auth, handler.CookieOptions{Secure: cfg.CookieSecure, MaxAge: cfg.RefreshTokenTTL}),
		Users:       handler.NewUserHandler(users, roles, sessions, cfg.BcryptCost, log),
		Items:       handler.NewItemHandler(items),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DBDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
