package render_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/language"

	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/model"
	"github.com/goliatone/go-authforms/pkg/render"
)

type stubTranslator map[string]string

func (t stubTranslator) Translate(_ string, key string, _ ...any) (string, error) {
	if msg, ok := t[key]; ok {
		return msg, nil
	}
	return "", errors.New("missing translation")
}

type namedRenderer string

func (n namedRenderer) Name() string        { return string(n) }
func (n namedRenderer) ContentType() string { return "text/plain" }
func (n namedRenderer) Render(context.Context, model.FormModel, render.RenderOptions) ([]byte, error) {
	return []byte(n), nil
}

func TestRegistry(t *testing.T) {
	registry := render.NewRegistry(namedRenderer("html"), nil, namedRenderer("tui"))

	if diff := cmp.Diff([]string{"html", "tui"}, registry.List()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if err := registry.Register(namedRenderer("html")); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := registry.Get("pdf"); !errors.Is(err, render.ErrRendererNotFound) {
		t.Fatalf("expected ErrRendererNotFound, got %v", err)
	}
	if !registry.Has("tui") {
		t.Fatalf("expected tui renderer")
	}
}

func TestMapErrorPayload(t *testing.T) {
	form := forms.Registration(nil)

	mapped := render.ErrorMapper{Aliases: map[string]string{"identifier": "username"}}.Map(form, map[string][]string{
		"/traits/email":       {"Email already taken", " Email already taken "},
		"body.password":       {"Too weak"},
		"identifier":          {"Unknown identifier"},
		"non_field_errors":    {"Try again later"},
		"traits.unknown.path": {"Lost field"},
		"":                    {"  "},
	})

	wantFields := map[string][]string{
		"email":    {"Email already taken"},
		"password": {"Too weak"},
		"username": {"Unknown identifier"},
	}
	if diff := cmp.Diff(wantFields, mapped.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Try again later", "Lost field"}, mapped.Form); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFormErrors(t *testing.T) {
	got := render.MergeFormErrors([]string{"a", " b"}, "b", "", "c")
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestHiddenFields(t *testing.T) {
	merged := render.MergeHiddenFields(
		map[string]string{"href": "/old", " ": "ignored"},
		render.CSRFToken("_csrf", "tok"),
		render.Hidden("href", "/new"),
		render.Hidden("", "skip"),
	)
	want := []render.HiddenField{{Name: "_csrf", Value: "tok"}, {Name: "href", Value: "/new"}}
	if diff := cmp.Diff(want, render.SortedHiddenFields(merged)); diff != "" {
		t.Fatalf("hidden fields mismatch (-want +got):\n%s", diff)
	}
	if render.MergeHiddenFields(nil) != nil {
		t.Fatalf("expected nil for empty merge")
	}
}

func TestLocalizeForm(t *testing.T) {
	form := forms.Login()
	opts := render.RenderOptions{
		Locale: "es",
		Translator: stubTranslator{
			"Log in":                     "Iniciar sesión",
			"Login":                      "Usuario",
			"Login identifier required.": "Identificador obligatorio.",
		},
	}

	localized := render.LocalizeForm(form, opts)

	if localized.Title != "Iniciar sesión" {
		t.Fatalf("title not translated: %q", localized.Title)
	}
	login, _ := localized.Field("login")
	if login.Label != "Usuario" || login.Validations[0].Message != "Identificador obligatorio." {
		t.Fatalf("login field not translated: %+v", login)
	}
	password, _ := localized.Field("password")
	if password.Label != "Password" {
		t.Fatalf("missing translation should keep source text, got %q", password.Label)
	}
	original, _ := form.Field("login")
	if original.Label != "Login" {
		t.Fatalf("input form mutated")
	}
}

func TestLocalizeMessages_OnMissing(t *testing.T) {
	var missing []string
	opts := render.RenderOptions{
		Translator: stubTranslator{},
		OnMissing: func(_ string, key string, _ []any, _ error) string {
			missing = append(missing, key)
			return "?" + key
		},
	}
	got := render.LocalizeMessages(map[string][]string{"email": {"Email address required."}}, opts)
	if diff := cmp.Diff(map[string][]string{"email": {"?Email address required."}}, got); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	if len(missing) != 1 {
		t.Fatalf("expected one missing callback, got %v", missing)
	}
}

func TestCatalogTranslator(t *testing.T) {
	tr := render.NewCatalogTranslator(language.English)
	if err := tr.Add(language.Spanish, map[string]string{"Password required.": "Contraseña obligatoria."}); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := tr.Translate("es-MX,es;q=0.9,en;q=0.5", "Password required.")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "Contraseña obligatoria." {
		t.Fatalf("unexpected translation %q", got)
	}

	if _, err := tr.Translate("en", "Password required."); !errors.Is(err, render.ErrMissingTranslation) {
		t.Fatalf("expected missing translation for english source text, got %v", err)
	}
	if tag := tr.Match("de-DE"); tag != language.English {
		t.Fatalf("unsupported language should fall back to english, got %s", tag)
	}
}

func TestDefaultTranslator_CoversFormMessages(t *testing.T) {
	tr, err := render.DefaultTranslator()
	if err != nil {
		t.Fatalf("default translator: %v", err)
	}

	registry := forms.DefaultRegistry()
	for _, id := range registry.List() {
		schema, err := registry.Build(id, nil)
		if err != nil {
			t.Fatalf("build %s: %v", id, err)
		}
		for _, field := range schema.Fields {
			for _, rule := range field.Validations {
				if _, err := tr.Translate("es", rule.Message); err != nil {
					t.Fatalf("%s.%s: %v", id, field.Name, err)
				}
			}
		}
	}
}

func TestTemplateI18nFuncs(t *testing.T) {
	funcs := render.TemplateI18nFuncs(stubTranslator{"Submit": "Enviar"}, render.TemplateI18nConfig{})

	translateFn, ok := funcs["translate"].(func(any, string) string)
	if !ok {
		t.Fatalf("translate helper has unexpected type %T", funcs["translate"])
	}
	if got := translateFn(map[string]any{"locale": "es"}, "Submit"); got != "Enviar" {
		t.Fatalf("unexpected translation %q", got)
	}
	if got := translateFn("es", "Cancel"); got != "Cancel" {
		t.Fatalf("missing key should fall back to key, got %q", got)
	}

	localeFn := funcs["current_locale"].(func(any) string)
	if got := localeFn(map[string]string{"locale": "fr"}); got != "fr" {
		t.Fatalf("unexpected locale %q", got)
	}
}

func TestSanitizeMarkup(t *testing.T) {
	got := render.SanitizeMarkup(`Read the <a href="https://example.com/terms" onclick="x()">terms</a><script>alert(1)</script>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") {
		t.Fatalf("unsafe markup kept: %q", got)
	}
	if !strings.Contains(got, `href="https://example.com/terms"`) {
		t.Fatalf("link stripped: %q", got)
	}
	if got := render.StripMarkup("<b>Bold</b> text"); got != "Bold text" {
		t.Fatalf("unexpected stripped text %q", got)
	}
}

func TestRenderOptions_ResolvedMethod(t *testing.T) {
	for in, want := range map[string]string{"": "POST", "get": "GET", "DELETE": "POST"} {
		if got := (render.RenderOptions{Method: in}).ResolvedMethod(); got != want {
			t.Fatalf("method %q: want %s, got %s", in, want, got)
		}
	}
}
