// Package mailer turns identity notifications into the messages a deployment
// would email: a subject, the link to the change or verify page and a plain
// text body rendered with go-template.
package mailer

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"

	gotemplate "github.com/goliatone/go-template"

	"github.com/goliatone/go-authforms/pkg/identity"
)

//go:embed templates/*.tpl
var templateFS embed.FS

// ErrUnknownKind is returned for notifications without a template.
var ErrUnknownKind = errors.New("mailer: unknown notification kind")

const defaultProduct = "authforms"

// Config configures New.
type Config struct {
	// BaseURL prefixes links, e.g. https://example.com. Empty keeps them
	// relative.
	BaseURL string
	// ChangePath and VerifyPath are the pages tokens are sent to.
	ChangePath string
	VerifyPath string
	// Product names the service in message bodies.
	Product string
	// Templates replaces the embedded message templates.
	Templates fs.FS
}

// Message is a rendered notification.
type Message struct {
	Kind    string
	To      string
	Subject string
	Link    string
	Body    string
}

// Sender delivers rendered messages.
type Sender func(ctx context.Context, msg Message) error

type kind struct {
	template string
	subject  string
	path     func(Config) string
}

var kinds = map[string]kind{
	identity.KindPasswordReset: {
		template: "password_reset",
		subject:  "Reset your password",
		path:     func(cfg Config) string { return cfg.ChangePath },
	},
	identity.KindVerification: {
		template: "verification",
		subject:  "Verify your email address",
		path:     func(cfg Config) string { return cfg.VerifyPath },
	},
}

// Mailer renders notifications.
type Mailer struct {
	cfg    Config
	engine *gotemplate.Engine
}

// New builds a Mailer over the embedded templates or cfg.Templates.
func New(cfg Config) (*Mailer, error) {
	if cfg.Product == "" {
		cfg.Product = defaultProduct
	}
	files := cfg.Templates
	if files == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, fmt.Errorf("mailer: templates: %w", err)
		}
		files = sub
	}
	engine, err := gotemplate.NewRenderer(
		gotemplate.WithFS(files),
		gotemplate.WithGlobalData(map[string]any{"product": cfg.Product}),
	)
	if err != nil {
		return nil, fmt.Errorf("mailer: template engine: %w", err)
	}
	return &Mailer{cfg: cfg, engine: engine}, nil
}

// Compose renders the message for n.
func (m *Mailer) Compose(n identity.Notification) (Message, error) {
	k, ok := kinds[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	link := m.link(k.path(m.cfg), n.Token)
	body, err := m.engine.RenderTemplate(k.template, map[string]any{
		"email": n.Email,
		"link":  link,
	})
	if err != nil {
		return Message{}, fmt.Errorf("mailer: render %s: %w", n.Kind, err)
	}
	return Message{
		Kind:    n.Kind,
		To:      n.Email,
		Subject: k.subject,
		Link:    link,
		Body:    body,
	}, nil
}

// Notifier adapts the mailer to identity backends. Failures are logged;
// backends do not wait on delivery.
func (m *Mailer) Notifier(log *slog.Logger, send Sender) identity.Notifier {
	return func(ctx context.Context, n identity.Notification) {
		msg, err := m.Compose(n)
		if err != nil {
			log.ErrorContext(ctx, "compose notification", "kind", n.Kind, "error", err)
			return
		}
		if err := send(ctx, msg); err != nil {
			log.ErrorContext(ctx, "send notification", "kind", n.Kind, "to", msg.To, "error", err)
		}
	}
}

func (m *Mailer) link(path, token string) string {
	query := url.Values{"token": {token}}
	return strings.TrimRight(m.cfg.BaseURL, "/") + path + "?" + query.Encode()
}
