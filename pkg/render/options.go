package render

import (
	"net/http"

	theme "github.com/goliatone/go-theme"
)

// Notice is a one-off message shown above a form, typically carried across a
// redirect by a flash cookie.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notice kinds.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeInfo    = "info"
)

// RenderOptions describe per-request data renderers use to customise their
// output without touching the schema.
type RenderOptions struct {
	// Action is the submission target. Empty keeps the current URL.
	Action string
	// Method defaults to POST.
	Method string
	// Values pre-populates controls. Secret fields are never echoed back.
	Values map[string]any
	// Errors surfaces field validation feedback keyed by field name.
	Errors map[string][]string
	// FormErrors are messages not tied to a field.
	FormErrors []string
	// Hidden carries extra hidden inputs (CSRF tokens and the like).
	Hidden map[string]string
	// Notices are rendered before the form.
	Notices []Notice
	// SubmitLabel overrides the submit button text.
	SubmitLabel string
	// Links are secondary navigation entries (label -> href).
	Links []Link
	// Theme carries the resolved theme tokens, partials and asset resolver.
	Theme *theme.RendererConfig

	// Locale selects the translation language; Translator resolves labels and
	// messages. A nil Translator leaves the English text untouched.
	Locale     string
	Translator Translator
	OnMissing  MissingTranslationHandler
}

// Link is a secondary navigation entry rendered under the form.
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// ResolvedMethod returns the upper-cased method, defaulting to POST.
func (o RenderOptions) ResolvedMethod() string {
	switch o.Method {
	case "", http.MethodPost, "post":
		return http.MethodPost
	case http.MethodGet, "get":
		return http.MethodGet
	default:
		return http.MethodPost
	}
}
