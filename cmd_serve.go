package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"fluxmail/config"
	"fluxmail/handlers/api"
	"fluxmail/handlers/web"
	"fluxmail/mailbox"
	"fluxmail/middleware"
	"fluxmail/storage"
	"fluxmail/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := storage.InitDB(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	accounts := storage.NewAccountStorage(db)
	app := newApp(cfg, accounts)

	if cfg.Server.AdminPassword == "" {
		utils.Log.Warn("No admin password configured, admin login is disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Info("Starting server on port %d...", cfg.Server.Port)
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// newApp wires the mail core, the API and the pages into one fiber app
func newApp(cfg *config.Config, accounts *storage.AccountStorage) *fiber.App {
	cache := utils.NewExpiringCache()
	broker := mailbox.NewTokenBroker(cfg.OAuth, cfg.Cache.TokenTTL.Duration, cache, accounts)
	sessions := mailbox.NewSessions(cfg.IMAP)
	service := mailbox.NewService(broker, sessions, cache, cfg.Cache)
	tokens := middleware.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.UserTokenTTL.Duration, cfg.Auth.AdminTokenTTL.Duration)

	app := fiber.New(fiber.Config{
		AppName:               "FluxMail",
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:;",
	}))
	app.Use(middleware.LocaleMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.RegisterRoutes(app, api.Deps{
		Accounts:      accounts,
		Mail:          service,
		Tokens:        tokens,
		AdminPassword: cfg.Server.AdminPassword,
		LoginRequests: cfg.RateLimit.LoginRequests,
		LoginWindow:   cfg.RateLimit.LoginWindow.Duration,
	})
	web.NewPageHandler(cfg.Server.StaticDir).RegisterRoutes(app)

	app.Use(func(c *fiber.Ctx) error {
		return utils.NotFoundError(utils.T(middleware.Localizer(c), "error.not_found"), nil)
	})

	return app
}
