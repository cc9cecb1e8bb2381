// Package server exposes the authentication forms over HTTP with fiber.
//
// GET renders a form, POST validates the submission, hands it to the
// identity backend and either re-renders the form with messages (422) or
// redirects with a flash notice. Clients asking for JSON receive the
// validation result instead of markup.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/goliatone/go-authforms/internal/logging"
	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/openapi"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
	"github.com/goliatone/go-authforms/pkg/render"
	"github.com/goliatone/go-authforms/pkg/renderers/html"
)

const (
	// HeaderRequestID carries the per-request id.
	HeaderRequestID = "X-Request-ID"
	// DefaultSessionCookie holds the session token issued on login.
	DefaultSessionCookie = "authforms_session"
	// CSRFCookie holds the anti-forgery token. CSRFField and HeaderCSRFToken
	// carry it back on submissions.
	CSRFCookie      = "authforms_csrf"
	CSRFField       = "csrf_token"
	HeaderCSRFToken = "X-CSRF-Token"

	// VerifyPath serves verification links, below the prefix.
	VerifyPath = "/verify"

	healthPath = "/healthz"
	assetsPath = "/assets/"
)

// Verifier is implemented by backends that confirm email addresses from a
// link. When the backend in Config implements it, GET /verify is served.
type Verifier interface {
	Verify(ctx context.Context, token string) (identity.Account, error)
}

// Config configures New.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
	// Translator defaults to render.DefaultTranslator.
	Translator *render.CatalogTranslator
	// Verifier enables GET /verify.
	Verifier Verifier

	// Prefix is prepended to every route. "" and "/" mount at the root.
	Prefix string
	// Terms swaps the registration form for its terms variant.
	Terms bool

	ThemeName    string
	ThemeVariant string

	// HomeURL is the default target after a login. Defaults to "/".
	HomeURL       string
	SessionCookie string
	SecureCookies bool

	// RateLimit caps submissions per client and path per minute. Zero
	// disables the limiter.
	RateLimit int

	// DisableCSRF turns off the anti-forgery check on submissions.
	DisableCSRF bool
}

// Server wires the forms to a fiber application.
type Server struct {
	cfg        Config
	app        *fiber.App
	orch       *orchestrator.Orchestrator
	log        *slog.Logger
	translator *render.CatalogTranslator
	routes     map[string]string
	stylesheet []byte
}

// New builds the fiber application and registers every route.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Translator == nil {
		translator, err := render.DefaultTranslator()
		if err != nil {
			return nil, fmt.Errorf("server: translator: %w", err)
		}
		cfg.Translator = translator
	}
	if strings.TrimSpace(cfg.HomeURL) == "" {
		cfg.HomeURL = "/"
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = DefaultSessionCookie
	}
	cfg.Prefix = normalizePrefix(cfg.Prefix)

	stylesheet, err := fs.ReadFile(html.AssetsFS(), html.StylesheetName)
	if err != nil {
		return nil, fmt.Errorf("server: read stylesheet: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		orch:       cfg.Orchestrator,
		log:        cfg.Logger,
		translator: cfg.Translator,
		routes:     make(map[string]string),
		stylesheet: stylesheet,
	}
	for id, path := range openapi.DefaultRoutes(cfg.Terms) {
		s.routes[id] = s.path(path)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "authforms",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.register()
	return s, nil
}

// App returns the underlying fiber application, mainly for tests and for
// mounting into a larger app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Route returns the full path serving formID.
func (s *Server) Route(formID string) (string, bool) {
	path, ok := s.routes[formID]
	return path, ok
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", "addr", addr, "prefix", s.cfg.Prefix, "terms", s.cfg.Terms)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) register() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Header:    HeaderRequestID,
		Generator: newRequestID,
	}))
	s.app.Use(s.requestContext)
	s.app.Use(s.accessLog)

	router := s.app.Group(s.cfg.Prefix)
	router.Get(healthPath, s.health)
	router.Get(assetsPath+html.StylesheetName, s.serveStylesheet)
	if s.cfg.Verifier != nil {
		router.Get(VerifyPath, s.verify)
	}

	protect := s.csrfProtection()
	for _, p := range s.pages() {
		if !p.postOnly {
			router.Get(p.relPath, protect, s.showForm(p))
		}
		router.Post(p.relPath, s.limit(), protect, s.submitForm(p))
	}
}

func (s *Server) limit() fiber.Handler {
	if s.cfg.RateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        s.cfg.RateLimit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + ":" + c.Path()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		},
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) serveStylesheet(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/css; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(s.stylesheet)
}

func (s *Server) path(rel string) string {
	return s.cfg.Prefix + rel
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// loginURL is where most flows land once they succeed.
func (s *Server) loginURL() string {
	return s.routes[forms.IDLogin]
}
