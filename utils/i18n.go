package utils

import (
	"embed"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// SupportedLanguages lists the locales shipped with the binary
var SupportedLanguages = []language.Tag{language.English, language.Russian}

var (
	bundle     *i18n.Bundle
	bundleErr  error
	bundleOnce sync.Once
)

// InitI18n loads the embedded message files. It is safe to call repeatedly.
func InitI18n() error {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

		for _, file := range []string{"locales/active.en.toml", "locales/active.ru.toml"} {
			if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
				bundleErr = err
				return
			}
		}
		Log.Debug("i18n initialized with %d languages", len(bundle.LanguageTags()))
	})
	return bundleErr
}

// GetLocalizer returns a localizer for the given language preferences,
// falling back to English
func GetLocalizer(langs ...string) *i18n.Localizer {
	if err := InitI18n(); err != nil {
		Log.Error("Failed to load translations: %v", err)
	}
	return i18n.NewLocalizer(bundle, append(langs, language.English.String())...)
}

// T translates a message ID, falling back to the ID itself
func T(localizer *i18n.Localizer, messageID string) string {
	return TWithData(localizer, messageID, nil)
}

// TWithData translates a message ID with template data
func TWithData(localizer *i18n.Localizer, messageID string, data map[string]interface{}) string {
	if localizer == nil {
		localizer = GetLocalizer()
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		Log.Debug("Translation error for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}
