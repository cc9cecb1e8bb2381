// Package authforms is the entry point for callers that just want the
// account forms rendered or a submission checked. The sub-packages expose
// the full API: forms for definitions, orchestrator for wiring, identity for
// backends and internal/server for the HTTP surface.
package authforms

import (
	"context"
	"fmt"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-authforms/pkg/features"
	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/html"
)

// RenderOptions describes per-request overrides such as prefilled values or
// server-side errors.
type RenderOptions = render.RenderOptions

// Outcome is the result of a submission.
type Outcome = orchestrator.Outcome

// NewOrchestrator returns an orchestrator with the HTML renderer registered.
func NewOrchestrator(options ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	page, err := html.New(html.WithDefaultStyles())
	if err != nil {
		return nil, fmt.Errorf("authforms: html renderer: %w", err)
	}
	opts := append([]orchestrator.Option{orchestrator.WithRegistry(render.NewRegistry(page))}, options...)
	return orchestrator.New(opts...), nil
}

// GenerateHTML renders the form registered under formID as a full page.
func GenerateHTML(ctx context.Context, formID string, options ...orchestrator.Option) ([]byte, error) {
	gen, err := NewOrchestrator(options...)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, orchestrator.Request{FormID: formID})
}

// Validate binds values to the form registered under formID and runs its
// validators.
func Validate(ctx context.Context, formID string, values map[string]any, options ...orchestrator.Option) (*forms.Form, error) {
	return orchestrator.New(options...).Validate(ctx, formID, values)
}

// WithFeatures forwards the registration toggles.
func WithFeatures(cfg *features.Config) orchestrator.Option {
	return orchestrator.WithFeatures(cfg)
}

// WithBackend forwards the identity backend used by Submit.
func WithBackend(backend identity.Backend) orchestrator.Option {
	return orchestrator.WithBackend(backend)
}

// WithThemeSelector passes a go-theme selector through to the orchestrator so
// theme and variant choices are resolved ahead of rendering.
func WithThemeSelector(selector theme.ThemeSelector) orchestrator.Option {
	return orchestrator.WithThemeSelector(selector)
}

// WithThemeFallbacks forwards fallback partials used when deriving renderer
// configuration from a theme selection.
func WithThemeFallbacks(fallbacks map[string]string) orchestrator.Option {
	return orchestrator.WithThemeFallbacks(fallbacks)
}
