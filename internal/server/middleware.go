package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/oarkflow/xid/wuid"

	"github.com/goliatone/go-authforms/internal/logging"
)

const (
	localeKey = "authforms.locale"
	csrfKey   = "authforms.csrf"
)

func newRequestID() string {
	return wuid.New().String()
}

// requestContext stores the request id on the user context so log records
// carry it, and resolves the locale once per request.
func (s *Server) requestContext(c *fiber.Ctx) error {
	ctx := logging.WithRequestID(c.UserContext(), c.GetRespHeader(HeaderRequestID))
	c.SetUserContext(ctx)
	c.Locals(localeKey, s.locale(c))
	return c.Next()
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	s.log.InfoContext(c.UserContext(), "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
	)
	return err
}

// csrfProtection issues a token on safe requests and checks it on every
// submission. Browsers post it back in the hidden form field, API clients in
// the X-CSRF-Token header. The cookie holds the same value.
func (s *Server) csrfProtection() fiber.Handler {
	if s.cfg.DisableCSRF {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return csrf.New(csrf.Config{
		CookieName:     CSRFCookie,
		CookiePath:     "/",
		CookieSameSite: fiber.CookieSameSiteLaxMode,
		CookieSecure:   s.cfg.SecureCookies,
		CookieHTTPOnly: true,
		Expiration:     time.Hour,
		ContextKey:     csrfKey,
		Extractor:      csrfFromRequest,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			s.log.InfoContext(c.UserContext(), "csrf check failed", "path", c.Path(), "error", err)
			return fiber.NewError(fiber.StatusForbidden, "invalid csrf token")
		},
	})
}

func csrfFromRequest(c *fiber.Ctx) (string, error) {
	if token := strings.TrimSpace(c.Get(HeaderCSRFToken)); token != "" {
		return token, nil
	}
	return csrf.CsrfFromForm(CSRFField)(c)
}

// csrfToken returns the token issued for this request, if any.
func csrfToken(c *fiber.Ctx) string {
	token, _ := c.Locals(csrfKey).(string)
	return token
}

// locale prefers an explicit ?lang= over Accept-Language.
func (s *Server) locale(c *fiber.Ctx) string {
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return s.translator.Match(lang).String()
	}
	return s.translator.Match(c.Get(fiber.HeaderAcceptLanguage)).String()
}

func localeOf(c *fiber.Ctx) string {
	locale, _ := c.Locals(localeKey).(string)
	return locale
}

func wantsJSON(c *fiber.Ctx) bool {
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
		return true
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "error", err)
	}

	message := http.StatusText(code)
	if wantsJSON(c) {
		return c.Status(code).JSON(fiber.Map{"error": message, "status": code})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(message)
}
