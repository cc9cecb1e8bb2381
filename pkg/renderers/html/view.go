package html

import (
	"fmt"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/validation"
)

// ThemeAssetStylesheet is the theme asset key for an external stylesheet.
const ThemeAssetStylesheet = "html.stylesheet"

type formView struct {
	ID          string        `json:"id"`
	DOMID       string        `json:"dom_id"`
	Title       string        `json:"title"`
	Action      string        `json:"action"`
	Method      string        `json:"method"`
	SubmitLabel string        `json:"submit_label"`
	Fields      []fieldView   `json:"fields"`
	Hidden      []hiddenView  `json:"hidden"`
	Notices     []noticeView  `json:"notices"`
	Errors      []string      `json:"errors"`
	HasErrors   bool          `json:"has_errors"`
	Links       []render.Link `json:"links"`
	Theme       themeView     `json:"theme"`
	Stylesheet  string        `json:"stylesheet,omitempty"`
}

type fieldView struct {
	Name         string   `json:"name"`
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	InputType    string   `json:"input_type"`
	Placeholder  string   `json:"placeholder,omitempty"`
	Description  string   `json:"description,omitempty"`
	Value        string   `json:"value,omitempty"`
	Checked      bool     `json:"checked"`
	Required     bool     `json:"required"`
	Autocomplete string   `json:"autocomplete,omitempty"`
	DescribedBy  string   `json:"described_by,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Markup       string   `json:"markup,omitempty"`
}

type hiddenView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type noticeView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type themeView struct {
	Name          string `json:"name,omitempty"`
	Variant       string `json:"variant,omitempty"`
	Style         string `json:"style,omitempty"`
	StylesheetURL string `json:"stylesheet_url,omitempty"`
}

func buildFormView(form model.FormModel, opts render.RenderOptions) formView {
	localized := render.LocalizeForm(form, opts)
	fieldErrors := render.LocalizeMessages(opts.Errors, opts)

	view := formView{
		ID:          form.ID,
		DOMID:       "af-" + form.ID,
		Title:       localized.Title,
		Action:      strings.TrimSpace(opts.Action),
		Method:      opts.ResolvedMethod(),
		SubmitLabel: opts.Translate(submitLabel(opts)),
		Theme:       buildThemeView(opts.Theme),
	}

	values := fieldValues(opts)
	for _, field := range localized.Fields {
		fv := buildFieldView(form.ID, field, values)
		fv.Errors = fieldErrors[field.Name]
		fv.DescribedBy = describedBy(fv)
		if len(fv.Errors) > 0 {
			view.HasErrors = true
		}
		view.Fields = append(view.Fields, fv)
	}

	for _, msg := range render.MergeFormErrors(nil, opts.FormErrors...) {
		view.Errors = append(view.Errors, opts.Translate(msg))
	}
	if len(view.Errors) > 0 {
		view.HasErrors = true
	}

	for _, hidden := range render.SortedHiddenFields(opts.Hidden) {
		if _, declared := form.Field(hidden.Name); declared {
			continue
		}
		view.Hidden = append(view.Hidden, hiddenView{Name: hidden.Name, Value: hidden.Value})
	}

	for _, notice := range opts.Notices {
		msg := render.SanitizeMarkup(opts.Translate(notice.Message))
		if msg == "" {
			continue
		}
		kind := notice.Kind
		if kind == "" {
			kind = render.NoticeInfo
		}
		view.Notices = append(view.Notices, noticeView{Kind: kind, Message: msg})
	}

	for _, link := range opts.Links {
		if strings.TrimSpace(link.Href) == "" {
			continue
		}
		view.Links = append(view.Links, render.Link{Label: opts.Translate(link.Label), Href: link.Href})
	}
	return view
}

func buildFieldView(formID string, field model.Field, values map[string]any) fieldView {
	fv := fieldView{
		Name:         field.Name,
		ID:           "af-" + field.Name,
		Label:        field.Label,
		InputType:    inputType(field),
		Placeholder:  field.Placeholder,
		Description:  render.SanitizeMarkup(field.Description),
		Required:     field.IsRequired(),
		Autocomplete: autocomplete(formID, field.Name),
	}

	raw, ok := values[field.Name]
	if !ok {
		return fv
	}
	switch field.Kind {
	case model.FieldKindSecret:
		// never echoed back
	case model.FieldKindBoolean:
		if checked, err := validation.Coerce(model.FieldKindBoolean, raw); err == nil {
			fv.Checked, _ = checked.(bool)
		}
	default:
		if value, err := validation.Coerce(model.FieldKindText, raw); err == nil {
			fv.Value = fmt.Sprint(value)
		}
	}
	return fv
}

// fieldValues overlays opts.Hidden under opts.Values so declared hidden
// fields (such as a reset href) can be supplied either way.
func fieldValues(opts render.RenderOptions) map[string]any {
	out := make(map[string]any, len(opts.Values)+len(opts.Hidden))
	for name, value := range opts.Hidden {
		out[name] = value
	}
	for name, value := range opts.Values {
		out[name] = value
	}
	return out
}

func inputType(field model.Field) string {
	switch field.Kind {
	case model.FieldKindSecret:
		return "password"
	case model.FieldKindHidden:
		return "hidden"
	case model.FieldKindBoolean:
		return "checkbox"
	}
	if field.HasRule(model.ValidationRuleEmail) {
		return "email"
	}
	return "text"
}

func autocomplete(formID, name string) string {
	switch name {
	case "username", "login":
		return "username"
	case "email":
		return "email"
	case "given_name":
		return "given-name"
	case "middle_name":
		return "additional-name"
	case "surname":
		return "family-name"
	case "password", "password_again":
		if formID == "login" {
			return "current-password"
		}
		return "new-password"
	}
	return ""
}

func describedBy(fv fieldView) string {
	var ids []string
	if fv.Description != "" {
		ids = append(ids, fv.ID+"-description")
	}
	if len(fv.Errors) > 0 {
		ids = append(ids, fv.ID+"-errors")
	}
	return strings.Join(ids, " ")
}

func submitLabel(opts render.RenderOptions) string {
	if label := strings.TrimSpace(opts.SubmitLabel); label != "" {
		return label
	}
	return "Submit"
}

func buildThemeView(cfg *theme.RendererConfig) themeView {
	if cfg == nil {
		return themeView{}
	}
	view := themeView{
		Name:    cfg.Theme,
		Variant: cfg.Variant,
		Style:   cssVarsStyle(cfg.CSSVars),
	}
	if cfg.AssetURL != nil {
		view.StylesheetURL = cfg.AssetURL(ThemeAssetStylesheet)
	}
	return view
}

func cssVarsStyle(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(vars[key])
		b.WriteString(";\n")
	}
	b.WriteString("}")
	return b.String()
}
