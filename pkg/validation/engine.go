// Package validation evaluates the rules attached to a form model against
// submitted values using go-playground/validator for the individual checks.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/goliatone/go-authforms/pkg/model"
)

var (
	// ErrUnknownRule is returned when a field carries a rule kind the engine
	// does not understand.
	ErrUnknownRule = errors.New("validation: unknown rule")
	// ErrUnknownField is returned when an equalTo rule references a field
	// that is not declared on the form.
	ErrUnknownField = errors.New("validation: unknown field")
)

const (
	defaultRequiredMessage = "This field is required."
	defaultEmailMessage    = "Invalid email address."
	defaultEqualToMessage  = "Field must be equal to %s."
	defaultCoerceMessage   = "Invalid value."
)

// Issue is a single failing check, used for ordered reporting.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result captures the outcome of validating one submission.
type Result struct {
	Valid bool `json:"valid"`
	// Errors holds messages for failing fields only.
	Errors map[string][]string `json:"errors,omitempty"`
	// Data holds values coerced to their declared kinds.
	Data   map[string]any `json:"data,omitempty"`
	issues []Issue
}

// Issues returns failing checks in form field order.
func (r Result) Issues() []Issue {
	out := make([]Issue, len(r.issues))
	copy(out, r.issues)
	return out
}

// FieldErrors returns the messages for a single field.
func (r Result) FieldErrors(name string) []string {
	return r.Errors[name]
}

// Engine runs form rules. It is safe for concurrent use.
type Engine struct {
	validate *validator.Validate
}

// New constructs an Engine backed by a fresh validator instance.
func New() *Engine {
	return &Engine{validate: validator.New()}
}

// Validate runs every rule of form against values. Expected validation
// failures are reported through Result; an error is only returned for
// malformed schemas (unknown rule kinds or equalTo targets).
func (e *Engine) Validate(form model.FormModel, values map[string]any) (Result, error) {
	if e == nil || e.validate == nil {
		return Result{}, errors.New("validation: engine is nil")
	}

	result := Result{
		Valid: true,
		Data:  make(map[string]any, len(form.Fields)),
	}

	for _, field := range form.Fields {
		messages, coerced, err := e.validateField(form, field, values)
		if err != nil {
			return Result{}, err
		}
		if coerced != nil {
			result.Data[field.Name] = coerced
		}
		if len(messages) == 0 {
			continue
		}
		if result.Errors == nil {
			result.Errors = make(map[string][]string)
		}
		result.Valid = false
		result.Errors[field.Name] = messages
		for _, msg := range messages {
			result.issues = append(result.issues, Issue{Field: field.Name, Message: msg})
		}
	}

	return result, nil
}

// ValidateField runs the rules of a single field. values must contain every
// field referenced by equalTo rules.
func (e *Engine) ValidateField(form model.FormModel, name string, values map[string]any) ([]string, error) {
	field, ok := form.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	messages, _, err := e.validateField(form, field, values)
	return messages, err
}

func (e *Engine) validateField(form model.FormModel, field model.Field, values map[string]any) ([]string, any, error) {
	value, err := Coerce(field.Kind, values[field.Name])
	if err != nil {
		return []string{defaultCoerceMessage}, nil, nil
	}

	var messages []string
	for _, rule := range field.Validations {
		switch rule.Kind {
		case model.ValidationRuleRequired:
			if e.validate.Var(value, "required") != nil {
				messages = append(messages, messageOr(rule.Message, defaultRequiredMessage))
				return messages, value, nil
			}
		case model.ValidationRuleEmail:
			if e.validate.Var(strings.TrimSpace(asString(value)), "email") != nil {
				messages = append(messages, messageOr(rule.Message, defaultEmailMessage))
			}
		case model.ValidationRuleEqualTo:
			target := rule.Target()
			if _, ok := form.Field(target); !ok {
				return nil, nil, fmt.Errorf("%w: %q compared from %q", ErrUnknownField, target, field.Name)
			}
			other, _ := Coerce(model.FieldKindText, values[target])
			if e.validate.VarWithValue(asString(value), asString(other), "eqcsfield") != nil {
				messages = append(messages, messageOr(rule.Message, fmt.Sprintf(defaultEqualToMessage, target)))
			}
		default:
			return nil, nil, fmt.Errorf("%w: %q on field %q", ErrUnknownRule, rule.Kind, field.Name)
		}
	}
	return messages, value, nil
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
