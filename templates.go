package authforms

import (
	"io/fs"

	"github.com/goliatone/go-authforms/pkg/renderers/html"
)

// EmbeddedTemplates exposes the built-in HTML templates so callers can reuse
// or extend them without importing the renderer package directly.
func EmbeddedTemplates() fs.FS {
	return html.TemplatesFS()
}

// EmbeddedAssets exposes the default stylesheet.
func EmbeddedAssets() fs.FS {
	return html.AssetsFS()
}
