package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"fluxmail/utils"
)

// Localizer returns the request's localizer set by LocaleMiddleware, or nil
func Localizer(c *fiber.Ctx) *i18n.Localizer {
	localizer, _ := c.Locals("localizer").(*i18n.Localizer)
	return localizer
}

// ErrorHandler renders every error as {error, kind}. AppError messages are
// already user-facing; anything else becomes a generic internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := utils.T(Localizer(c), "error.internal")
	kind := "internal"

	var appErr *utils.AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		code, message, kind = appErr.Code, appErr.Message, appErr.Kind
	case errors.As(err, &fiberErr):
		code, message, kind = fiberErr.Code, fiberErr.Message, "http"
	}

	fields := map[string]interface{}{"path": c.Path(), "status": code}
	if code >= fiber.StatusInternalServerError {
		utils.Log.WithFields(fields).Error("Request failed: %v", err)
	} else {
		utils.Log.WithFields(fields).Debug("Request rejected: %v", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"kind":  kind,
	})
}
