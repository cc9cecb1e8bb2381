package model

// FieldKind enumerates the input kinds a form field can declare.
type FieldKind string

const (
	FieldKindText    FieldKind = "text"
	FieldKindSecret  FieldKind = "secret"
	FieldKindHidden  FieldKind = "hidden"
	FieldKindBoolean FieldKind = "boolean"
)

const (
	ValidationRuleRequired = "required"
	ValidationRuleEmail    = "email"
	ValidationRuleEqualTo  = "equalTo"
)

// ValidationRule represents a single check attached to a field. EqualTo rules
// encode the compared field name in Params["field"].
type ValidationRule struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// Field models an individual input inside a form schema.
type Field struct {
	Name        string            `json:"name"`
	Label       string            `json:"label,omitempty"`
	Kind        FieldKind         `json:"kind"`
	Placeholder string            `json:"placeholder,omitempty"`
	Description string            `json:"description,omitempty"`
	Validations []ValidationRule  `json:"validations,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FormModel is the top-level schema representation.
type FormModel struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Fields   []Field           `json:"fields"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
