package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"

	"fluxmail/utils"
)

var languageMatcher = language.NewMatcher(utils.SupportedLanguages)

// LocaleMiddleware picks the response language from the lang query
// parameter, then the lang cookie, then Accept-Language.
func LocaleMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		lang := DetectLanguage(c.Query("lang"), c.Cookies("lang"), c.Get(fiber.HeaderAcceptLanguage))

		c.Locals("localizer", utils.GetLocalizer(lang))
		c.Locals("lang", lang)

		return c.Next()
	}
}

// DetectLanguage returns the base language of the first supported choice
func DetectLanguage(query, cookie, acceptLanguage string) string {
	for _, explicit := range []string{query, cookie} {
		if explicit == "" {
			continue
		}
		if tag, err := language.Parse(explicit); err == nil {
			if _, _, conf := languageMatcher.Match(tag); conf >= language.High {
				return baseOf(tag)
			}
		}
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	matched, _, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return "en"
	}
	return baseOf(matched)
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
