package gotemplate_test

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-authforms/pkg/render/template/gotemplate"
	"github.com/goliatone/go-authforms/pkg/testsupport"
)

//go:embed testdata/templates/*.tpl
var embeddedTemplates embed.FS

func TestEngine_RenderTemplate(t *testing.T) {
	engine := newEngine(t)

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("hello", map[string]any{"name": "Ada"}, w)
	})

	assertGolden(t, "hello.golden", result, written)
}

func TestEngine_GlobalContext(t *testing.T) {
	engine := newEngine(t)
	if err := engine.GlobalContext(map[string]any{
		"settings": map[string]any{"env": "staging"},
	}); err != nil {
		t.Fatalf("global context: %v", err)
	}

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("use-global", nil, w)
	})

	assertGolden(t, "use-global.golden", result, written)
}

func TestEngine_RegisterFilter(t *testing.T) {
	engine := newEngine(t)
	err := engine.RegisterFilter("shout", func(input any, _ any) (any, error) {
		if input == nil {
			return "", nil
		}
		return fmt.Sprintf("%s!", strings.ToUpper(fmt.Sprint(input))), nil
	})
	if err != nil {
		t.Fatalf("register filter: %v", err)
	}
	if err := engine.RegisterFilter("shout", func(input any, _ any) (any, error) { return input, nil }); err == nil {
		t.Fatalf("expected duplicate filter error")
	}

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("use-filter", map[string]any{"name": "Ada"}, w)
	})

	assertGolden(t, "use-filter.golden", result, written)
}

func TestEngine_StructDataUsesJSONNames(t *testing.T) {
	type field struct {
		Name     string `json:"name"`
		Label    string `json:"label"`
		Required bool   `json:"required"`
	}
	engine := newEngine(t)

	result, written := testsupport.CaptureTemplateOutput(t, func(w io.Writer) (string, error) {
		return engine.RenderTemplate("field", map[string]any{
			"field": field{Name: "email", Label: "  Email ", Required: true},
		}, w)
	})

	assertGolden(t, "field.golden", result, written)
}

func TestEngine_RenderStringAndFuncs(t *testing.T) {
	templatesFS, err := fs.Sub(embeddedTemplates, "testdata/templates")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}
	engine, err := gotemplate.New(
		gotemplate.WithFS(templatesFS),
		gotemplate.WithGlobalData(map[string]any{"site": "Accounts"}),
		gotemplate.WithTemplateFunc(map[string]any{
			"greet": func(name string) string { return "Welcome, " + name },
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	got, err := engine.Render("{{ site }}: {{ greet(name) }}", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("render string: %v", err)
	}
	if got != "Accounts: Welcome, Ada" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEngine_Errors(t *testing.T) {
	if _, err := gotemplate.New(); err == nil {
		t.Fatalf("expected error without template source")
	}

	engine := newEngine(t)
	if _, err := engine.RenderTemplate("missing", nil); err == nil {
		t.Fatalf("expected error for missing template")
	}
	if _, err := engine.RenderString("{% if %}", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func newEngine(t *testing.T) *gotemplate.Engine {
	t.Helper()

	templatesFS, err := fs.Sub(embeddedTemplates, "testdata/templates")
	if err != nil {
		t.Fatalf("sub fs: %v", err)
	}

	engine, err := gotemplate.New(gotemplate.WithFS(templatesFS))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func assertGolden(t *testing.T, name, result, written string) {
	t.Helper()

	path := filepath.Join("testdata", name)
	if testsupport.WriteMaybeGolden(t, path, []byte(result)) {
		return
	}
	want := testsupport.MustReadGoldenString(t, path)
	if result != want {
		t.Fatalf("render mismatch result\nwant: %q\n got: %q", want, result)
	}
	if written != want {
		t.Fatalf("render mismatch writer\nwant: %q\n got: %q", want, written)
	}
}
