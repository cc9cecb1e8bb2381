// Package html renders form schemas as server-side HTML using pongo2
// templates. Theme partials can replace the page, form and field templates.
package html

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
	rendertemplate "github.com/goliatone/go-authforms/pkg/render/template"
	"github.com/goliatone/go-authforms/pkg/render/template/gotemplate"
)

// Partial keys looked up in theme.RendererConfig.Partials.
const (
	PartialPage  = "forms.page"
	PartialForm  = "forms.form"
	PartialField = "forms.field"
)

var defaultPartials = map[string]string{
	PartialPage:  "templates/page",
	PartialForm:  "templates/form",
	PartialField: "templates/field",
}

// DefaultPartials returns the built-in template names keyed by partial.
func DefaultPartials() map[string]string {
	out := make(map[string]string, len(defaultPartials))
	for key, value := range defaultPartials {
		out[key] = value
	}
	return out
}

type Option func(*config)

type config struct {
	templateFS       fs.FS
	templateRenderer rendertemplate.TemplateRenderer
	inlineStyles     bool
	fragment         bool
}

// WithTemplatesFS supplies an alternate template bundle via fs.FS.
func WithTemplatesFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.templateFS = files
	}
}

// WithTemplatesDir loads templates from a directory on disk.
func WithTemplatesDir(path string) Option {
	return func(cfg *config) {
		if path == "" {
			return
		}
		cfg.templateFS = os.DirFS(path)
	}
}

// WithTemplateRenderer injects a custom template renderer implementation.
func WithTemplateRenderer(renderer rendertemplate.TemplateRenderer) Option {
	return func(cfg *config) {
		if renderer != nil {
			cfg.templateRenderer = renderer
		}
	}
}

// WithDefaultStyles inlines the bundled stylesheet into full page output.
func WithDefaultStyles() Option {
	return func(cfg *config) {
		cfg.inlineStyles = true
	}
}

// WithFragment renders only the form element, without the page shell.
func WithFragment() Option {
	return func(cfg *config) {
		cfg.fragment = true
	}
}

type Renderer struct {
	templates  rendertemplate.TemplateRenderer
	stylesheet string
	fragment   bool
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs the HTML renderer applying any provided options.
func New(options ...Option) (*Renderer, error) {
	cfg := config{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.templateFS == nil {
		cfg.templateFS = TemplatesFS()
	}

	templates := cfg.templateRenderer
	if templates == nil {
		engine, err := gotemplate.New(
			gotemplate.WithFS(cfg.templateFS),
			gotemplate.WithExtension(".tmpl"),
		)
		if err != nil {
			return nil, fmt.Errorf("html renderer: configure template renderer: %w", err)
		}
		templates = engine
	}

	r := &Renderer{templates: templates, fragment: cfg.fragment}
	if cfg.inlineStyles {
		r.stylesheet = defaultStylesheet()
	}
	return r, nil
}

func (r *Renderer) Name() string {
	return "html"
}

func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

// Render produces the page (or form fragment) for form. Labels and messages
// are translated with options.Translator before templates run.
func (r *Renderer) Render(ctx context.Context, form model.FormModel, options render.RenderOptions) ([]byte, error) {
	if r == nil || r.templates == nil {
		return nil, fmt.Errorf("html renderer: template renderer is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	view := buildFormView(form, options)
	view.Stylesheet = r.stylesheet
	page := map[string]any{
		"locale": options.Locale,
		"title":  view.Title,
	}
	funcs := render.TemplateI18nFuncs(options.Translator, render.TemplateI18nConfig{OnMissing: options.OnMissing})

	partials := resolvePartials(options)
	for i := range view.Fields {
		data := withFuncs(map[string]any{"field": view.Fields[i], "page": page}, funcs)
		markup, err := r.templates.RenderTemplate(partials[PartialField], data)
		if err != nil {
			return nil, fmt.Errorf("html renderer: render field %q: %w", view.Fields[i].Name, err)
		}
		view.Fields[i].Markup = markup
	}

	formMarkup, err := r.templates.RenderTemplate(partials[PartialForm], withFuncs(map[string]any{
		"form": view,
		"page": page,
	}, funcs))
	if err != nil {
		return nil, fmt.Errorf("html renderer: render form: %w", err)
	}
	if r.fragment {
		return []byte(formMarkup), nil
	}

	result, err := r.templates.RenderTemplate(partials[PartialPage], withFuncs(map[string]any{
		"form":        view,
		"page":        page,
		"form_markup": formMarkup,
	}, funcs))
	if err != nil {
		return nil, fmt.Errorf("html renderer: render page: %w", err)
	}
	return []byte(result), nil
}

func resolvePartials(options render.RenderOptions) map[string]string {
	out := DefaultPartials()
	if options.Theme == nil {
		return out
	}
	for key, value := range options.Theme.Partials {
		if _, known := out[key]; known && value != "" {
			out[key] = value
		}
	}
	return out
}

func withFuncs(data map[string]any, funcs map[string]any) map[string]any {
	for name, fn := range funcs {
		data[name] = fn
	}
	return data
}
