package orchestrator

import (
	"context"
	"errors"
	"testing"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/html"
)

func TestOrchestrator_PassesThemeConfigToRenderer(t *testing.T) {
	manifest := &theme.Manifest{
		Name:    "acme",
		Version: "1.0.0",
		Tokens: map[string]string{
			"brand": "#123456",
		},
	}

	selection := &theme.Selection{
		Theme:    "acme",
		Variant:  "custom-variant",
		Manifest: manifest,
	}

	selector := &stubThemeSelector{selection: selection}

	renderer := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(renderer)

	orch := New(
		WithRegistry(registry),
		WithDefaultRenderer(renderer.Name()),
		WithThemeSelector(selector),
	)

	out, err := orch.Generate(context.Background(), Request{
		FormID:       forms.IDLogin,
		ThemeName:    "custom-theme",
		ThemeVariant: "custom-variant",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(out) != forms.IDLogin {
		t.Fatalf("unexpected output %q", out)
	}

	if len(selector.calls) != 1 {
		t.Fatalf("expected selector called once, got %d", len(selector.calls))
	}
	if selector.calls[0].name != "custom-theme" || selector.calls[0].variant != "custom-variant" {
		t.Fatalf("unexpected selector args: %+v", selector.calls[0])
	}

	cfg := renderer.options.Theme
	if cfg == nil {
		t.Fatalf("expected theme config passed to renderer")
	}
	if cfg.Theme != selection.Theme || cfg.Variant != selection.Variant {
		t.Fatalf("selection mismatch: %s/%s", cfg.Theme, cfg.Variant)
	}
	if cfg.AssetURL == nil {
		t.Fatalf("expected AssetURL resolver present")
	}
	if got := cfg.Partials[html.PartialField]; got != html.DefaultPartials()[html.PartialField] {
		t.Fatalf("partials not merged with fallbacks: got %s", got)
	}
	if cfg.Tokens["brand"] != manifest.Tokens["brand"] {
		t.Fatalf("tokens not propagated")
	}
	if cfg.CSSVars["--brand"] != manifest.Tokens["brand"] {
		t.Fatalf("css vars not derived from tokens")
	}
}

func TestOrchestrator_WithThemeManifestsUsesDefaults(t *testing.T) {
	manifest := &theme.Manifest{
		Name:    "acme",
		Version: "1.0.0",
		Tokens: map[string]string{
			"brand": "#123456",
		},
		Templates: map[string]string{
			html.PartialField: "themes/acme/field",
		},
		Assets: theme.Assets{
			Prefix: "/assets/themes/acme",
			Files: map[string]string{
				html.ThemeAssetStylesheet: "theme.css",
			},
		},
		Variants: map[string]theme.Variant{
			"dark": {
				Tokens: map[string]string{
					"brand": "#654321",
				},
				Templates: map[string]string{
					html.PartialForm: "themes/acme/dark/form",
				},
				Assets: theme.Assets{
					Files: map[string]string{
						"html.logo": "logo.dark.svg",
					},
				},
			},
		},
	}

	renderer := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(renderer)

	orch := New(
		WithRegistry(registry),
		WithDefaultRenderer(renderer.Name()),
		WithThemeManifests("acme", "dark", manifest),
	)

	if _, err := orch.Generate(context.Background(), Request{FormID: forms.IDForgotPassword}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	cfg := renderer.options.Theme
	if cfg == nil {
		t.Fatalf("expected theme config passed to renderer")
	}
	if cfg.Theme != "acme" || cfg.Variant != "dark" {
		t.Fatalf("unexpected selection %s/%s", cfg.Theme, cfg.Variant)
	}
	if cfg.Partials[html.PartialField] != "themes/acme/field" {
		t.Fatalf("expected base template override, got %s", cfg.Partials[html.PartialField])
	}
	if cfg.Partials[html.PartialForm] != "themes/acme/dark/form" {
		t.Fatalf("expected variant template override, got %s", cfg.Partials[html.PartialForm])
	}
	if cfg.Partials[html.PartialPage] != html.DefaultPartials()[html.PartialPage] {
		t.Fatalf("fallback partial not applied for page")
	}
	if cfg.Tokens["brand"] != "#654321" || cfg.CSSVars["--brand"] != "#654321" {
		t.Fatalf("variant tokens not applied: %v %v", cfg.Tokens, cfg.CSSVars)
	}
	if got := cfg.AssetURL("html.logo"); got != "/assets/themes/acme/logo.dark.svg" {
		t.Fatalf("unexpected variant asset url: %s", got)
	}
	if got := cfg.AssetURL(html.ThemeAssetStylesheet); got != "/assets/themes/acme/theme.css" {
		t.Fatalf("unexpected stylesheet asset url: %s", got)
	}
	if got := cfg.AssetURL("missing"); got != "" {
		t.Fatalf("unknown assets should resolve to empty, got %s", got)
	}
}

func TestManifestSelector(t *testing.T) {
	manifest := &theme.Manifest{Name: "acme", Variants: map[string]theme.Variant{"dark": {}}}

	if _, err := NewManifestSelector("missing", "", manifest); err == nil {
		t.Fatalf("expected unknown default theme error")
	}
	if _, err := NewManifestSelector("", "", manifest, manifest); err == nil {
		t.Fatalf("expected duplicate manifest error")
	}

	selector, err := NewManifestSelector("", "", manifest)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	if selection, err := selector.Select("", ""); err != nil || selection != nil {
		t.Fatalf("no default theme should select nothing: %v %v", selection, err)
	}
	if _, err := selector.Select("acme", "light"); err == nil {
		t.Fatalf("expected unknown variant error")
	}
	selection, err := selector.Select("acme", "")
	if err != nil || selection.Theme != "acme" || selection.Variant != "" {
		t.Fatalf("unexpected selection %+v %v", selection, err)
	}
}

func TestOrchestrator_ThemeSelectorError(t *testing.T) {
	renderer := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(renderer)

	boom := errors.New("boom")
	orch := New(WithRegistry(registry), WithThemeSelector(&stubThemeSelector{err: boom}))
	if _, err := orch.Generate(context.Background(), Request{FormID: forms.IDLogin}); !errors.Is(err, boom) {
		t.Fatalf("expected selector error, got %v", err)
	}
}

type captureRenderer struct {
	form    model.FormModel
	options render.RenderOptions
}

func (r *captureRenderer) Name() string {
	return "capture"
}

func (r *captureRenderer) ContentType() string {
	return "text/plain"
}

func (r *captureRenderer) Render(_ context.Context, form model.FormModel, opts render.RenderOptions) ([]byte, error) {
	r.form = form
	r.options = opts
	return []byte(form.ID), nil
}

type selectorCall struct {
	name    string
	variant string
}

type stubThemeSelector struct {
	selection *theme.Selection
	err       error
	calls     []selectorCall
}

func (s *stubThemeSelector) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	s.calls = append(s.calls, selectorCall{name: name, variant: variant})
	return s.selection, s.err
}
