package template

import "io"

// TemplateRenderer is the seam HTML renderers depend on. Its methods mirror
// the github.com/goliatone/go-template engine. Implementations must keep
// function values found in the data map callable, since the HTML renderer
// passes its i18n helpers that way.
type TemplateRenderer interface {
	Render(name string, data any, out ...io.Writer) (string, error)
	RenderTemplate(name string, data any, out ...io.Writer) (string, error)
	RenderString(templateContent string, data any, out ...io.Writer) (string, error)
	RegisterFilter(name string, fn func(input any, param any) (any, error)) error
	GlobalContext(data any) error
}
