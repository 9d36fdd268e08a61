package web

import (
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PageHandler serves the single-page frontends from a static directory
type PageHandler struct {
	staticDir string
}

// NewPageHandler serves pages from staticDir
func NewPageHandler(staticDir string) *PageHandler {
	return &PageHandler{staticDir: staticDir}
}

// RegisterRoutes mounts the page routes and the static assets under /
func (h *PageHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/", h.page("index.html"))
	app.Get("/inbox", h.page("inbox.html"))
	app.Get("/admin", h.page("admin.html"))

	app.Static("/", h.staticDir, fiber.Static{
		Compress:      true,
		CacheDuration: 24 * time.Hour,
	})
}

func (h *PageHandler) page(name string) fiber.Handler {
	path := filepath.Join(h.staticDir, name)
	return func(c *fiber.Ctx) error {
		return c.SendFile(path)
	}
}
