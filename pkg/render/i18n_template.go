package render

import (
	"fmt"
	"strings"
)

// TemplateI18nConfig configures template-level translation helpers.
type TemplateI18nConfig struct {
	// LocaleKey is the map key holding the locale when templates pass their
	// context instead of a locale string. Defaults to "locale".
	LocaleKey string
	// FuncName names the translate helper. Defaults to "translate".
	FuncName  string
	OnMissing MissingTranslationHandler
}

// TemplateI18nFuncs returns template globals for engines such as the pongo2
// adapter:
//
//	{{ translate(locale, "Password required.") }}
//	{{ current_locale(page) }}
func TemplateI18nFuncs(t Translator, cfg TemplateI18nConfig) map[string]any {
	localeKey := strings.TrimSpace(cfg.LocaleKey)
	if localeKey == "" {
		localeKey = "locale"
	}
	name := strings.TrimSpace(cfg.FuncName)
	if name == "" {
		name = "translate"
	}
	onMissing := cfg.OnMissing
	if onMissing == nil {
		onMissing = missingTranslationDefault
	}

	return map[string]any{
		name: func(localeSrc any, key string) string {
			return translate(resolveLocale(localeSrc, localeKey), key, t, onMissing)
		},
		"current_locale": func(localeSrc any) string {
			return resolveLocale(localeSrc, localeKey)
		},
	}
}

func resolveLocale(src any, key string) string {
	switch data := src.(type) {
	case nil:
		return ""
	case string:
		return data
	case map[string]string:
		return data[key]
	case map[string]any:
		if v, ok := data[key]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}
