package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-authforms/internal/logging"
	"github.com/goliatone/go-authforms/internal/mailer"
	"github.com/goliatone/go-authforms/internal/server"
	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/identity/kratos"
	"github.com/goliatone/go-authforms/pkg/identity/memory"
	"github.com/goliatone/go-authforms/pkg/openapi"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/html"
	"github.com/goliatone/go-authforms/pkg/renderers/tui"
)

// Deps carries injectable collaborators. Nil fields fall back to the
// configured defaults.
type Deps struct {
	Backend identity.Backend
	// PromptDriver replaces the survey driver used by the prompt command.
	PromptDriver tui.PromptDriver
	// LogWriter receives log records. Defaults to stderr.
	LogWriter io.Writer
}

const kratosTimeout = 10 * time.Second

func newLogger(cfg *appConfig, out io.Writer) (*slog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	return logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "authforms",
		Version: version,
		Writer:  out,
	})
}

// newMailer renders notifications with links to the pages the serve command
// mounts.
func newMailer(cfg *appConfig) (*mailer.Mailer, error) {
	prefix := strings.TrimRight(strings.TrimSpace(cfg.Server.Prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	routes := openapi.DefaultRoutes(cfg.Terms.Enabled)
	mail, err := mailer.New(mailer.Config{
		BaseURL:    cfg.Server.PublicURL,
		ChangePath: prefix + routes[forms.IDChangePasswordHref],
		VerifyPath: prefix + server.VerifyPath,
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return mail, nil
}

// newBackend builds the configured identity backend. Notifications are
// rendered by the mailer and written to the log; no mail transport is wired.
func newBackend(cfg *appConfig, log *slog.Logger) (identity.Backend, error) {
	mail, err := newMailer(cfg)
	if err != nil {
		return nil, err
	}
	notify := mail.Notifier(log, func(ctx context.Context, msg mailer.Message) error {
		log.InfoContext(ctx, "notification", "kind", msg.Kind, "to", msg.To, "subject", msg.Subject, "link", msg.Link)
		return nil
	})
	switch cfg.Backend.Kind {
	case backendKratos:
		backend, err := kratos.New(kratos.Config{
			PublicURL:  cfg.Backend.Kratos.PublicURL,
			AdminURL:   cfg.Backend.Kratos.AdminURL,
			HTTPClient: &http.Client{Timeout: kratosTimeout},
			Notifier:   notify,
		})
		if err != nil {
			return nil, fmt.Errorf("kratos backend: %w", err)
		}
		return backend, nil
	default:
		return memory.New(memory.WithNotifier(notify)), nil
	}
}

// newOrchestrator wires the configured forms, toggles, theme and presets.
// Extra renderers (the TUI) are registered next to the HTML renderer.
func newOrchestrator(cfg *appConfig, backend identity.Backend, extra ...render.Renderer) (*orchestrator.Orchestrator, error) {
	page, err := html.New(html.WithDefaultStyles())
	if err != nil {
		return nil, fmt.Errorf("html renderer: %w", err)
	}
	registry := render.NewRegistry(page)
	for _, r := range extra {
		if err := registry.Register(r); err != nil {
			return nil, fmt.Errorf("register renderer: %w", err)
		}
	}

	opts := []orchestrator.Option{
		orchestrator.WithRegistry(registry),
		orchestrator.WithFeatures(cfg.Features),
		orchestrator.WithBackend(backend),
	}
	if manifest := cfg.Theme.manifest(); manifest != nil {
		opts = append(opts, orchestrator.WithThemeManifests(cfg.Theme.Name, cfg.Theme.Variant, manifest))
	}
	if cfg.Presets != "" {
		data, err := os.ReadFile(cfg.Presets)
		if err != nil {
			return nil, fmt.Errorf("read presets: %w", err)
		}
		transformer, err := orchestrator.NewJSONPresetTransformer(data)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithSchemaTransformer(transformer))
	}
	return orchestrator.New(opts...), nil
}

func (c themeConfig) manifest() *theme.Manifest {
	if c.Name == "" {
		return nil
	}
	m := &theme.Manifest{
		Name:    c.Name,
		Version: "1.0.0",
		Tokens:  c.Tokens,
	}
	if c.Stylesheet != "" {
		m.Assets = theme.Assets{
			Prefix: c.AssetsPrefix,
			Files:  map[string]string{html.ThemeAssetStylesheet: c.Stylesheet},
		}
	}
	if len(c.Variants) > 0 {
		m.Variants = make(map[string]theme.Variant, len(c.Variants))
		for name, variant := range c.Variants {
			m.Variants[name] = theme.Variant{Tokens: variant.Tokens}
		}
	}
	return m
}

func (a *app) backend() (identity.Backend, error) {
	if a.deps.Backend != nil {
		return a.deps.Backend, nil
	}
	return newBackend(a.cfg, a.log)
}

func (a *app) orchestrator(extra ...render.Renderer) (*orchestrator.Orchestrator, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}
	return newOrchestrator(a.cfg, backend, extra...)
}
