package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-authforms/pkg/model"
)

// ErrTransformerContract is returned when a transformer adds, removes,
// renames or retypes a field, or touches its validators.
var ErrTransformerContract = errors.New("orchestrator: transformer changed the field contract")

// Transformer adjusts a built FormModel before it is validated or rendered.
// Implementations may change presentation (title, labels, placeholders,
// descriptions, metadata). Changes to field names, kinds, order or validators
// fail with ErrTransformerContract.
type Transformer interface {
	Transform(ctx context.Context, form *model.FormModel) error
}

// TransformerFunc adapts plain functions to the Transformer interface.
type TransformerFunc func(ctx context.Context, form *model.FormModel) error

// Transform executes the wrapped function when non-nil.
func (fn TransformerFunc) Transform(ctx context.Context, form *model.FormModel) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, form)
}

// JSONPresetTransformer applies declarative overrides loaded from a JSON
// document keyed by form id:
//
//	{
//	  "login": {
//	    "title": "Sign in",
//	    "metadata": {"layout": "compact"},
//	    "fields": {
//	      "login": {"label": "Email or username", "placeholder": "ada@example.com"}
//	    }
//	  }
//	}
//
// Forms missing from the document pass through untouched.
type JSONPresetTransformer struct {
	document map[string]jsonFormPatch
}

type jsonFormPatch struct {
	Title    string                    `json:"title"`
	Metadata map[string]string         `json:"metadata"`
	Fields   map[string]jsonFieldPatch `json:"fields"`
}

type jsonFieldPatch struct {
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Placeholder string            `json:"placeholder"`
	Metadata    map[string]string `json:"metadata"`
}

// NewJSONPresetTransformer constructs a transformer from raw JSON bytes.
func NewJSONPresetTransformer(data []byte) (*JSONPresetTransformer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("json preset transformer: document is empty")
	}
	var document map[string]jsonFormPatch
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("json preset transformer: parse document: %w", err)
	}
	return &JSONPresetTransformer{document: document}, nil
}

// NewJSONPresetTransformerFromFS loads a JSON transformer document from the
// provided filesystem path.
func NewJSONPresetTransformerFromFS(fsys fs.FS, path string) (*JSONPresetTransformer, error) {
	if fsys == nil {
		return nil, errors.New("json preset transformer: filesystem is nil")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("json preset transformer: path is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("json preset transformer: read %s: %w", path, err)
	}
	return NewJSONPresetTransformer(data)
}

// Transform applies the patches registered for form.ID.
func (t *JSONPresetTransformer) Transform(ctx context.Context, form *model.FormModel) error {
	if form == nil {
		return errors.New("json preset transformer: form model is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	patch, ok := t.document[form.ID]
	if !ok {
		return nil
	}
	if patch.Title != "" {
		form.Title = patch.Title
	}
	if len(patch.Metadata) > 0 {
		form.Metadata = mergeStringMap(form.Metadata, patch.Metadata)
	}

	for name, fieldPatch := range patch.Fields {
		field := findField(form.Fields, name)
		if field == nil {
			return fmt.Errorf("json preset transformer: %s: field %q not found", form.ID, name)
		}
		applyFieldPatch(field, fieldPatch)
	}
	return nil
}

func applyFieldPatch(field *model.Field, patch jsonFieldPatch) {
	if patch.Label != "" {
		field.Label = patch.Label
	}
	if patch.Description != "" {
		field.Description = patch.Description
	}
	if patch.Placeholder != "" {
		field.Placeholder = patch.Placeholder
	}
	if len(patch.Metadata) > 0 {
		field.Metadata = mergeStringMap(field.Metadata, patch.Metadata)
	}
}

func findField(fields []model.Field, name string) *model.Field {
	for idx := range fields {
		if fields[idx].Name == name {
			return &fields[idx]
		}
	}
	return nil
}

func mergeStringMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	out := make(map[string]string, len(dst)+len(src))
	for key, value := range dst {
		out[key] = value
	}
	for key, value := range src {
		out[key] = value
	}
	return out
}
