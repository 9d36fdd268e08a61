package api

import (
	"github.com/gofiber/fiber/v2"

	"fluxmail/middleware"
	"fluxmail/utils"
)

// clientMessageIDs are the strings the inbox and admin pages render
var clientMessageIDs = []string{
	"mail.no_subject",
	"ui.loading",
	"ui.empty_folder",
	"ui.attachments",
	"ui.sign_in",
	"ui.sign_out",
	"error.session_expired",
	"error.mail_auth",
	"error.mail_network",
}

// I18nHandler serves translations to the frontend
type I18nHandler struct{}

// GetTranslations returns the client strings for :lang, falling back to
// English for unsupported languages
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	lang := middleware.DetectLanguage(c.Params("lang"), "", "")
	localizer := utils.GetLocalizer(lang)

	translations := make(map[string]string, len(clientMessageIDs))
	for _, id := range clientMessageIDs {
		translations[id] = utils.T(localizer, id)
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.JSON(fiber.Map{
		"lang":         lang,
		"translations": translations,
	})
}
