package tui

import (
	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/validation"
)

// State tracks collected answers and the server-provided errors shown
// before each prompt.
type State struct {
	values map[string]any
	errors map[string][]string
}

// NewState seeds the state with prefilled values, hidden inputs and errors.
// Values win over hidden inputs with the same name.
func NewState(prefill map[string]any, hidden map[string]string, errs map[string][]string) *State {
	s := &State{
		values: make(map[string]any, len(prefill)+len(hidden)),
		errors: make(map[string][]string, len(errs)),
	}
	for name, value := range hidden {
		s.values[name] = value
	}
	for name, value := range prefill {
		s.values[name] = value
	}
	for name, messages := range errs {
		s.errors[name] = append([]string(nil), messages...)
	}
	return s
}

// Values returns the current value map (mutable).
func (s *State) Values() map[string]any {
	if s == nil {
		return nil
	}
	return s.values
}

// ErrorsFor returns the errors attached to a field.
func (s *State) ErrorsFor(name string) []string {
	if s == nil {
		return nil
	}
	return s.errors[name]
}

// ClearErrors drops the errors of a field once it has been answered again.
func (s *State) ClearErrors(name string) {
	if s != nil {
		delete(s.errors, name)
	}
}

// Set stores an answer.
func (s *State) Set(name string, value any) {
	s.values[name] = value
}

// StringDefault returns the prefilled value of a text field.
func (s *State) StringDefault(name string) string {
	raw, ok := s.values[name]
	if !ok {
		return ""
	}
	value, err := validation.Coerce(model.FieldKindText, raw)
	if err != nil {
		return ""
	}
	str, _ := value.(string)
	return str
}

// BoolDefault returns the prefilled value of a boolean field.
func (s *State) BoolDefault(name string) bool {
	raw, ok := s.values[name]
	if !ok {
		return false
	}
	value, err := validation.Coerce(model.FieldKindBoolean, raw)
	if err != nil {
		return false
	}
	b, _ := value.(bool)
	return b
}
