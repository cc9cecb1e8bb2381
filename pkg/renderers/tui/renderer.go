package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/validation"
)

const secretMask = "********"

// Renderer implements render.Renderer for terminal sessions. It prompts for
// every visible field, re-prompting until the field's rules pass, and
// serializes the collected answers.
type Renderer struct {
	driver            PromptDriver
	outputFormat      OutputFormat
	engine            *validation.Engine
	maxAttempts       int
	submitTransformer SubmitTransformer
	theme             Theme
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs a TUI renderer with defaults (survey driver, JSON output,
// three attempts per field).
func New(options ...Option) (*Renderer, error) {
	r := &Renderer{
		outputFormat: OutputFormatJSON,
		maxAttempts:  3,
		theme:        Theme{ErrorPrefix: "✗ "},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	if r.engine == nil {
		r.engine = validation.New()
	}
	if _, ok := ParseOutputFormat(string(r.outputFormat)); !ok {
		return nil, fmt.Errorf("tui: unsupported output format %q", r.outputFormat)
	}
	return r, nil
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// ContentType reports the serialization format used by Render.
func (r *Renderer) ContentType() string {
	switch r.outputFormat {
	case OutputFormatFormURLEncoded:
		return "application/x-www-form-urlencoded"
	case OutputFormatPrettyText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Render prompts for each field of form. Hidden fields are never prompted;
// their values come from opts.Values or opts.Hidden.
func (r *Renderer) Render(ctx context.Context, form model.FormModel, opts render.RenderOptions) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("tui: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.driver == nil {
		return nil, errors.New("tui: prompt driver is nil")
	}

	localized := render.LocalizeForm(form, opts)
	state := NewState(opts.Values, opts.Hidden, render.LocalizeMessages(opts.Errors, opts))

	if localized.Title != "" {
		if err := r.driver.Info(ctx, r.theme.InfoPrefix+localized.Title); err != nil {
			return nil, err
		}
	}
	for _, msg := range render.MergeFormErrors(nil, opts.FormErrors...) {
		if err := r.driver.Info(ctx, r.theme.ErrorPrefix+opts.Translate(msg)); err != nil {
			return nil, err
		}
	}

	for _, field := range localized.Fields {
		if err := r.promptField(ctx, localized, field, state); err != nil {
			return nil, err
		}
	}

	result, err := r.engine.Validate(localized, state.Values())
	if err != nil {
		return nil, fmt.Errorf("tui: validate: %w", err)
	}
	values := result.Data
	if r.submitTransformer != nil {
		values, err = r.submitTransformer(values)
		if err != nil {
			return nil, fmt.Errorf("tui: submit transformer: %w", err)
		}
	}
	return r.serialize(localized, values)
}

func (r *Renderer) promptField(ctx context.Context, form model.FormModel, field model.Field, state *State) error {
	if field.Kind == model.FieldKindHidden {
		return nil
	}

	for _, msg := range state.ErrorsFor(field.Name) {
		if err := r.driver.Info(ctx, r.theme.ErrorPrefix+displayLabel(field)+": "+msg); err != nil {
			return err
		}
	}
	state.ClearErrors(field.Name)

	for attempt := 1; ; attempt++ {
		answer, err := r.ask(ctx, field, state)
		if err != nil {
			return err
		}
		state.Set(field.Name, answer)

		messages, err := r.engine.ValidateField(form, field.Name, state.Values())
		if err != nil {
			return fmt.Errorf("tui: validate %s: %w", field.Name, err)
		}
		if len(messages) == 0 {
			return nil
		}
		for _, msg := range messages {
			if err := r.driver.Info(ctx, r.theme.ErrorPrefix+msg); err != nil {
				return err
			}
		}
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return fmt.Errorf("%w: %s", ErrTooManyAttempts, field.Name)
		}
	}
}

func (r *Renderer) ask(ctx context.Context, field model.Field, state *State) (any, error) {
	label := displayLabel(field)
	help := render.StripMarkup(field.Description)

	switch field.Kind {
	case model.FieldKindBoolean:
		answer, err := r.driver.Confirm(ctx, ConfirmConfig{
			Message: label,
			Default: state.BoolDefault(field.Name),
			Help:    help,
		})
		return answer, err
	case model.FieldKindSecret:
		answer, err := r.driver.Password(ctx, InputConfig{Message: label, Help: help})
		return answer, err
	default:
		answer, err := r.driver.Input(ctx, InputConfig{
			Message: label,
			Default: state.StringDefault(field.Name),
			Help:    help,
		})
		return answer, err
	}
}

func (r *Renderer) serialize(form model.FormModel, values map[string]any) ([]byte, error) {
	switch r.outputFormat {
	case OutputFormatFormURLEncoded:
		return []byte(encodeForm(form, values)), nil
	case OutputFormatPrettyText:
		return []byte(prettyPrint(form, values)), nil
	default:
		return json.Marshal(values)
	}
}

func displayLabel(field model.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

// encodeForm follows browser checkbox semantics: true booleans are sent as
// "y", false ones are omitted.
func encodeForm(form model.FormModel, values map[string]any) string {
	out := url.Values{}
	for _, field := range form.Fields {
		value, ok := values[field.Name]
		if !ok {
			continue
		}
		if b, isBool := value.(bool); isBool {
			if b {
				out.Set(field.Name, "y")
			}
			continue
		}
		out.Set(field.Name, fmt.Sprint(value))
	}
	for name, value := range values {
		if _, declared := form.Field(name); !declared {
			out.Set(name, fmt.Sprint(value))
		}
	}
	return out.Encode()
}

func prettyPrint(form model.FormModel, values map[string]any) string {
	var b strings.Builder
	for _, field := range form.Fields {
		value, ok := values[field.Name]
		if !ok {
			continue
		}
		if field.Kind == model.FieldKindSecret && fmt.Sprint(value) != "" {
			value = secretMask
		}
		fmt.Fprintf(&b, "%s: %v\n", displayLabel(field), value)
	}
	return b.String()
}
