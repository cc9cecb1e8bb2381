package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-authforms/pkg/features"
	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/html"
	"github.com/goliatone/go-authforms/pkg/validation"
)

const defaultRendererName = "html"

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithForms injects the form definitions registry.
func WithForms(registry *forms.Registry) Option {
	return func(o *Orchestrator) {
		o.forms = registry
	}
}

// WithRegistry injects a renderer registry.
func WithRegistry(registry *render.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithDefaultRenderer overrides the renderer used when a request omits an
// explicit Renderer field.
func WithDefaultRenderer(name string) Option {
	return func(o *Orchestrator) {
		o.defaultRenderer = name
	}
}

// WithValidationEngine injects the validator engine.
func WithValidationEngine(engine *validation.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithFeatures sets the registration toggles used when building schemas.
func WithFeatures(cfg *features.Config) Option {
	return func(o *Orchestrator) {
		o.features = cfg
	}
}

// WithBackend registers the identity backend used by Submit.
func WithBackend(backend identity.Backend) Option {
	return func(o *Orchestrator) {
		o.backend = backend
	}
}

// WithSubmitHandler registers a handler for a form id, replacing the
// built-in backend dispatch for that form.
func WithSubmitHandler(formID string, handler SubmitHandler) Option {
	return func(o *Orchestrator) {
		if formID == "" || handler == nil {
			return
		}
		if o.handlers == nil {
			o.handlers = make(map[string]SubmitHandler)
		}
		o.handlers[formID] = handler
	}
}

// WithSchemaTransformer registers a Transformer that can adjust presentation
// details of a form after it is built.
func WithSchemaTransformer(t Transformer) Option {
	return func(o *Orchestrator) {
		o.transformer = t
	}
}

// WithThemeSelector passes a go-theme selector used to resolve the theme
// for each render.
func WithThemeSelector(selector theme.ThemeSelector) Option {
	return func(o *Orchestrator) {
		o.themeSelector = selector
	}
}

// WithThemeManifests resolves themes from the given manifests, falling back
// to defaultTheme and defaultVariant when a request names neither.
func WithThemeManifests(defaultTheme, defaultVariant string, manifests ...*theme.Manifest) Option {
	return func(o *Orchestrator) {
		selector, err := NewManifestSelector(defaultTheme, defaultVariant, manifests...)
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: theme manifests: %w", err)
			return
		}
		o.themeSelector = selector
	}
}

// WithThemeFallbacks overrides the partials used when a theme does not
// provide its own templates.
func WithThemeFallbacks(fallbacks map[string]string) Option {
	return func(o *Orchestrator) {
		o.themeFallbacks = copyStringMap(fallbacks)
	}
}

// Orchestrator coordinates schema building, validation, rendering and
// submission. It applies defaults (HTML renderer, default form registry,
// fresh validator engine) while remaining open to dependency injection.
type Orchestrator struct {
	forms           *forms.Registry
	registry        *render.Registry
	defaultRenderer string
	engine          *validation.Engine
	features        *features.Config
	backend         identity.Backend
	handlers        map[string]SubmitHandler
	transformer     Transformer
	themeSelector   theme.ThemeSelector
	themeFallbacks  map[string]string
	initialiseErr   error
}

// New constructs an Orchestrator applying any provided options.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		defaultRenderer: defaultRendererName,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	o.applyDefaults()
	return o
}

// Request describes a form render.
type Request struct {
	// FormID selects the registered form.
	FormID string

	// Renderer names the renderer to use. If empty, the orchestrator falls back
	// to the configured default renderer.
	Renderer string

	// ThemeName and ThemeVariant are passed to the theme selector.
	ThemeName    string
	ThemeVariant string

	// RenderOptions carries per-request data such as prefilled values or
	// server-side errors.
	RenderOptions render.RenderOptions
}

// Form returns a freshly built schema for id with the configured toggles
// and transformer applied.
func (o *Orchestrator) Form(ctx context.Context, id string) (model.FormModel, error) {
	if err := o.ready(ctx); err != nil {
		return model.FormModel{}, err
	}
	if id == "" {
		return model.FormModel{}, errors.New("orchestrator: form id is required")
	}

	form, err := o.forms.Build(id, o.features)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("orchestrator: build form: %w", err)
	}
	if err := o.applyTransformer(ctx, &form); err != nil {
		return model.FormModel{}, err
	}
	return form, nil
}

// Generate builds the form named by req and renders it.
func (o *Orchestrator) Generate(ctx context.Context, req Request) ([]byte, error) {
	form, err := o.Form(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	return o.Render(ctx, form, req)
}

// Render renders an already built form, resolving the renderer and theme
// named by req. req.FormID is ignored.
func (o *Orchestrator) Render(ctx context.Context, form model.FormModel, req Request) ([]byte, error) {
	if err := o.ready(ctx); err != nil {
		return nil, err
	}

	renderer, err := o.rendererFor(req.Renderer)
	if err != nil {
		return nil, err
	}

	opts := req.RenderOptions
	if opts.Theme == nil {
		cfg, err := o.resolveTheme(req.ThemeName, req.ThemeVariant)
		if err != nil {
			return nil, err
		}
		opts.Theme = cfg
	}

	output, err := renderer.Render(ctx, form, opts)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: render output: %w", err)
	}
	return output, nil
}

// Validate builds the form named by id, binds values and validates them.
func (o *Orchestrator) Validate(ctx context.Context, id string, values map[string]any) (*forms.Form, error) {
	schema, err := o.Form(ctx, id)
	if err != nil {
		return nil, err
	}
	form := forms.New(schema, values)
	if _, err := form.Validate(o.engine); err != nil {
		return nil, fmt.Errorf("orchestrator: validate %s: %w", id, err)
	}
	return form, nil
}

// Engine returns the validator engine in use.
func (o *Orchestrator) Engine() *validation.Engine {
	return o.engine
}

// Forms returns the form registry in use.
func (o *Orchestrator) Forms() *forms.Registry {
	return o.forms
}

// Renderers returns the renderer registry in use.
func (o *Orchestrator) Renderers() *render.Registry {
	return o.registry
}

func (o *Orchestrator) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("orchestrator: context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.initialiseErr
}

func (o *Orchestrator) rendererFor(name string) (render.Renderer, error) {
	if o.registry == nil {
		return nil, errors.New("orchestrator: renderer registry is nil")
	}

	target := name
	if target == "" {
		target = o.defaultRenderer
	}

	if target != "" {
		renderer, err := o.registry.Get(target)
		if err == nil {
			return renderer, nil
		}
		if name != "" {
			return nil, fmt.Errorf("orchestrator: renderer %q: %w", name, err)
		}
	}

	names := o.registry.List()
	if len(names) == 0 {
		return nil, errors.New("orchestrator: no renderers registered")
	}

	renderer, err := o.registry.Get(names[0])
	if err != nil {
		return nil, fmt.Errorf("orchestrator: renderer %q: %w", names[0], err)
	}
	return renderer, nil
}

func (o *Orchestrator) applyTransformer(ctx context.Context, form *model.FormModel) error {
	if o.transformer == nil || form == nil {
		return nil
	}
	before := contractOf(form)
	if err := o.transformer.Transform(ctx, form); err != nil {
		return fmt.Errorf("orchestrator: transform form: %w", err)
	}
	if !reflect.DeepEqual(before, contractOf(form)) {
		return fmt.Errorf("%w: %s", ErrTransformerContract, form.ID)
	}
	return nil
}

// fieldContract is the part of a field submissions are checked against.
type fieldContract struct {
	name  string
	kind  model.FieldKind
	rules []model.ValidationRule
}

func contractOf(form *model.FormModel) []fieldContract {
	out := make([]fieldContract, 0, len(form.Fields))
	for _, field := range form.Fields {
		rules := make([]model.ValidationRule, 0, len(field.Validations))
		for _, rule := range field.Validations {
			rule.Params = maps.Clone(rule.Params)
			rules = append(rules, rule)
		}
		out = append(out, fieldContract{name: field.Name, kind: field.Kind, rules: rules})
	}
	return out
}

func (o *Orchestrator) applyDefaults() {
	if o.forms == nil {
		o.forms = forms.DefaultRegistry()
	}
	if o.engine == nil {
		o.engine = validation.New()
	}
	if o.registry == nil {
		o.registry = render.NewRegistry()
		renderer, err := html.New()
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: default renderer: %w", err)
		} else {
			o.registry.MustRegister(renderer)
		}
	}
	if o.defaultRenderer == "" {
		o.defaultRenderer = defaultRendererName
	}
	if o.themeFallbacks == nil {
		o.themeFallbacks = html.DefaultPartials()
	}
}
