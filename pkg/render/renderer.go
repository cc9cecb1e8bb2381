// Package render defines the renderer contract shared by the HTML and
// terminal front ends, plus the helpers they have in common: hidden fields,
// error mapping, translation and markup sanitising.
package render

import (
	"context"

	"github.com/goliatone/go-authforms/pkg/model"
)

// Renderer converts a form schema into a byte representation (an HTML page,
// a JSON payload collected from a terminal session, ...).
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, form model.FormModel, options RenderOptions) ([]byte, error)
}
