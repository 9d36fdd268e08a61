package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"fluxmail/middleware"
	"fluxmail/storage"
)

// Deps holds everything the JSON API is built from
type Deps struct {
	Accounts      *storage.AccountStorage
	Mail          MailReader
	Tokens        *middleware.TokenManager
	AdminPassword string
	LoginRequests int
	LoginWindow   time.Duration
}

// RegisterRoutes mounts the /api tree on router
func RegisterRoutes(router fiber.Router, deps Deps) {
	authHandler := NewAuthHandler(deps.Accounts, deps.Tokens, deps.AdminPassword)
	mailHandler := NewMailHandler(deps.Mail)
	adminHandler := NewAdminHandler(deps.Accounts, deps.Mail)

	apiRoutes := router.Group("/api")

	apiRoutes.Get("/i18n/:lang", (&I18nHandler{}).GetTranslations)

	loginLimit := middleware.RateLimiter(deps.LoginRequests, deps.LoginWindow)
	apiRoutes.Post("/login", loginLimit, authHandler.Login)
	apiRoutes.Post("/admin/login", loginLimit, authHandler.AdminLogin)

	// Per route, since a Group("") middleware would also run for /api/admin
	requireUser := middleware.RequireUser(deps.Tokens, deps.Accounts)
	apiRoutes.Get("/account", requireUser, mailHandler.Account)
	apiRoutes.Get("/folders", requireUser, mailHandler.Folders)
	apiRoutes.Get("/emails", requireUser, mailHandler.ListEmails)
	apiRoutes.Get("/emails/:uid", requireUser, mailHandler.GetEmail)

	admin := apiRoutes.Group("/admin", middleware.RequireAdmin(deps.Tokens))
	{
		admin.Get("/stats", adminHandler.Stats)
		admin.Get("/accounts", adminHandler.ListAccounts)
		admin.Post("/accounts/bulk", adminHandler.BulkImport)
		admin.Put("/accounts/:id", adminHandler.UpdateAccount)
		admin.Delete("/accounts/:id", adminHandler.DeleteAccount)
		admin.Post("/accounts/:id/check", adminHandler.CheckAccount)
	}
}
