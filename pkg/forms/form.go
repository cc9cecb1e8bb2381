package forms

import (
	"errors"
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/validation"
)

// Form binds submitted values to a schema for a single request. It is
// validated at most once; later calls return the cached outcome.
type Form struct {
	schema    model.FormModel
	values    map[string]any
	result    validation.Result
	validated bool
	extra     map[string][]string
	formLevel []string
}

// New binds values to schema. Unknown keys in values are ignored.
func New(schema model.FormModel, values map[string]any) *Form {
	bound := make(map[string]any, len(schema.Fields))
	for _, field := range schema.Fields {
		if v, ok := values[field.Name]; ok {
			bound[field.Name] = v
		}
	}
	return &Form{schema: schema, values: bound}
}

// Schema returns the bound schema.
func (f *Form) Schema() model.FormModel {
	return f.schema
}

// Values returns the raw submitted values restricted to declared fields.
func (f *Form) Values() map[string]any {
	return f.values
}

// Validate runs the schema rules with engine.
func (f *Form) Validate(engine *validation.Engine) (bool, error) {
	if f.validated {
		return f.Valid(), nil
	}
	if engine == nil {
		return false, errors.New("forms: validation engine is required")
	}
	result, err := engine.Validate(f.schema, f.values)
	if err != nil {
		return false, err
	}
	f.result = result
	f.validated = true
	return f.Valid(), nil
}

// Validated reports whether Validate has run.
func (f *Form) Validated() bool {
	return f.validated
}

// Valid reports whether validation ran and nothing failed, including errors
// added after validation.
func (f *Form) Valid() bool {
	return f.validated && f.result.Valid && len(f.extra) == 0 && len(f.formLevel) == 0
}

// Errors returns field messages keyed by field name.
func (f *Form) Errors() map[string][]string {
	if len(f.result.Errors) == 0 && len(f.extra) == 0 {
		return nil
	}
	out := make(map[string][]string, len(f.result.Errors)+len(f.extra))
	for name, msgs := range f.result.Errors {
		out[name] = append([]string(nil), msgs...)
	}
	for name, msgs := range f.extra {
		out[name] = append(out[name], msgs...)
	}
	return out
}

// FormErrors returns messages that are not tied to a field.
func (f *Form) FormErrors() []string {
	return append([]string(nil), f.formLevel...)
}

// AddError attaches a message after validation, typically surfaced by the
// identity backend. An empty or unknown field name records a form-level
// message.
func (f *Form) AddError(field, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	if _, ok := f.schema.Field(field); !ok {
		f.formLevel = append(f.formLevel, message)
		return
	}
	if f.extra == nil {
		f.extra = make(map[string][]string)
	}
	f.extra[field] = append(f.extra[field], message)
}

// Data returns coerced values. It is empty until Validate has run.
func (f *Form) Data() map[string]any {
	return f.result.Data
}

// String returns the coerced string value of name.
func (f *Form) String(name string) string {
	s, _ := f.result.Data[name].(string)
	return s
}

// Bool returns the coerced boolean value of name.
func (f *Form) Bool(name string) bool {
	b, _ := f.result.Data[name].(bool)
	return b
}
