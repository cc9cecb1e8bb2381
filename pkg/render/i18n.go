package render

import (
	"errors"
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
)

var (
	// ErrMissingTranslator is passed to MissingTranslationHandler when no
	// Translator was configured.
	ErrMissingTranslator = errors.New("render: translator not configured")
	// ErrMissingTranslation is returned by translators that have no message
	// for a key.
	ErrMissingTranslation = errors.New("render: missing translation")
)

// Translator resolves a message key for a locale. English source strings are
// used as keys.
type Translator interface {
	Translate(locale, key string, args ...any) (string, error)
}

// MissingTranslationHandler decides what text to use when a key cannot be
// translated.
type MissingTranslationHandler func(locale, key string, args []any, err error) string

func missingTranslationDefault(_ string, key string, _ []any, _ error) string {
	return key
}

// LocalizeForm returns a copy of form with titles, labels, placeholders and
// rule messages translated. The input is not modified.
func LocalizeForm(form model.FormModel, opts RenderOptions) model.FormModel {
	out := form.Clone()
	if opts.Translator == nil {
		return out
	}
	tr := opts.translateFunc()

	out.Title = tr(out.Title)
	for i := range out.Fields {
		field := &out.Fields[i]
		field.Label = tr(field.Label)
		field.Placeholder = tr(field.Placeholder)
		field.Description = tr(field.Description)
		for j := range field.Validations {
			field.Validations[j].Message = tr(field.Validations[j].Message)
		}
	}
	return out
}

// LocalizeMessages translates every message in a field error map.
func LocalizeMessages(messages map[string][]string, opts RenderOptions) map[string][]string {
	if len(messages) == 0 {
		return nil
	}
	tr := opts.translateFunc()
	out := make(map[string][]string, len(messages))
	for field, list := range messages {
		translated := make([]string, 0, len(list))
		for _, msg := range list {
			translated = append(translated, tr(msg))
		}
		out[field] = translated
	}
	return out
}

// Translate resolves a single key with the options' translator.
func (o RenderOptions) Translate(key string) string {
	return o.translateFunc()(key)
}

func (o RenderOptions) translateFunc() func(string) string {
	onMissing := o.OnMissing
	if onMissing == nil {
		onMissing = missingTranslationDefault
	}
	return func(key string) string {
		return translate(o.Locale, key, o.Translator, onMissing)
	}
}

func translate(locale, key string, t Translator, onMissing MissingTranslationHandler) string {
	if strings.TrimSpace(key) == "" {
		return key
	}
	if t == nil {
		return onMissing(locale, key, nil, ErrMissingTranslator)
	}
	result, err := t.Translate(locale, key)
	if err == nil && strings.TrimSpace(result) != "" {
		return result
	}
	if err == nil {
		err = ErrMissingTranslation
	}
	return onMissing(locale, key, nil, err)
}
