package model

import "strings"

// Required builds a presence rule.
func Required(message string) ValidationRule {
	return ValidationRule{Kind: ValidationRuleRequired, Message: message}
}

// Email builds an email format rule.
func Email(message string) ValidationRule {
	return ValidationRule{Kind: ValidationRuleEmail, Message: message}
}

// EqualTo builds a rule comparing the field value with the value submitted
// for other.
func EqualTo(other, message string) ValidationRule {
	return ValidationRule{
		Kind:    ValidationRuleEqualTo,
		Message: message,
		Params:  map[string]string{"field": strings.TrimSpace(other)},
	}
}

// Target returns the compared field name for equalTo rules.
func (r ValidationRule) Target() string {
	if r.Params == nil {
		return ""
	}
	return r.Params["field"]
}

// IsRequired reports whether any Required rule is attached to the field.
func (f Field) IsRequired() bool {
	return f.HasRule(ValidationRuleRequired)
}

// HasRule reports whether a rule of the given kind is attached to the field.
func (f Field) HasRule(kind string) bool {
	for _, rule := range f.Validations {
		if rule.Kind == kind {
			return true
		}
	}
	return false
}

// WithRules returns a copy of the field with rules appended to a fresh
// validator list.
func (f Field) WithRules(rules ...ValidationRule) Field {
	out := f.Clone()
	for _, rule := range rules {
		out.Validations = append(out.Validations, rule.clone())
	}
	return out
}

func (r ValidationRule) clone() ValidationRule {
	out := r
	if r.Params != nil {
		out.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return out
}
