package server

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/openapi"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
	"github.com/goliatone/go-authforms/pkg/render"
)

// Notices shown after a redirect. They double as translation keys.
const (
	NoticeRegistered       = "Your account has been created."
	NoticeLoggedIn         = "You are now logged in."
	NoticeResetSent        = "A password reset email is on its way."
	NoticePasswordChanged  = "Your password has been changed."
	NoticeVerificationSent = "A new verification email has been sent."
	NoticeVerified         = "Your email address has been verified."
	NoticeVerifyFailed     = "This verification link is invalid or has expired."

	msgMalformed = "The submission could not be read."
)

const (
	flashNotice = "notice"
	flashKind   = "notice_kind"
	tokenField  = "token"
)

type page struct {
	formID   string
	relPath  string
	links    []render.Link
	notice   string
	postOnly bool
	// next picks the redirect target of an accepted submission.
	next func(c *fiber.Ctx, out orchestrator.Outcome) string
}

func (s *Server) pages() []page {
	registration := forms.IDRegistration
	if s.cfg.Terms {
		registration = forms.IDRegistrationTerms
	}
	routes := openapi.DefaultRoutes(s.cfg.Terms)
	login := render.Link{Label: "Log in", Href: s.loginURL()}
	toLogin := func(*fiber.Ctx, orchestrator.Outcome) string { return s.loginURL() }

	return []page{
		{
			formID:  registration,
			relPath: routes[registration],
			links:   []render.Link{login},
			notice:  NoticeRegistered,
			next:    toLogin,
		},
		{
			formID:  forms.IDLogin,
			relPath: routes[forms.IDLogin],
			links: []render.Link{
				{Label: "Create an account", Href: s.routes[registration]},
				{Label: "Forgot your password?", Href: s.routes[forms.IDForgotPassword]},
			},
			notice: NoticeLoggedIn,
			next: func(c *fiber.Ctx, _ orchestrator.Outcome) string {
				return safeRedirect(c.Query("next"), s.cfg.HomeURL)
			},
		},
		{
			formID:  forms.IDForgotPassword,
			relPath: routes[forms.IDForgotPassword],
			links:   []render.Link{login},
			notice:  NoticeResetSent,
			next:    toLogin,
		},
		{
			formID:  forms.IDChangePasswordHref,
			relPath: routes[forms.IDChangePasswordHref],
			notice:  NoticePasswordChanged,
			next: func(_ *fiber.Ctx, out orchestrator.Outcome) string {
				return safeRedirect(out.Form.String(forms.FieldHref), s.loginURL())
			},
		},
		{
			formID:   forms.IDResendVerification,
			relPath:  routes[forms.IDResendVerification],
			notice:   NoticeVerificationSent,
			postOnly: true,
			next:     toLogin,
		},
	}
}

func (s *Server) baseOptions(c *fiber.Ctx, p page) render.RenderOptions {
	opts := render.RenderOptions{
		Locale:     localeOf(c),
		Translator: s.translator,
		Links:      p.links,
	}
	if token := csrfToken(c); token != "" {
		opts.Hidden = render.MergeHiddenFields(nil, render.CSRFToken(CSRFField, token))
		c.Set(HeaderCSRFToken, token)
	}
	return opts
}

func (s *Server) showForm(p page) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts := s.baseOptions(c, p)
		opts.Notices = flashNotices(c)
		status := fiber.StatusOK

		if p.formID == forms.IDChangePasswordHref {
			token := strings.TrimSpace(c.Query(tokenField))
			opts.Hidden = render.MergeHiddenFields(opts.Hidden, render.Hidden(tokenField, token))
			opts.Values = map[string]any{forms.FieldHref: safeRedirect(c.Query("next"), "")}
			if token == "" {
				opts.FormErrors = append(opts.FormErrors, identity.MsgInvalidToken)
				status = fiber.StatusBadRequest
			}
		}
		return s.renderForm(c, p, status, opts)
	}
}

func (s *Server) submitForm(p page) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		values, err := decodeBody(c)
		if err != nil {
			s.log.InfoContext(ctx, "malformed submission", "form", p.formID, "error", err)
			if wantsJSON(c) {
				return c.Status(fiber.StatusBadRequest).JSON(result{FormErrors: []string{msgMalformed}})
			}
			return fiber.NewError(fiber.StatusBadRequest, msgMalformed)
		}

		token, _ := values[tokenField].(string)
		if token == "" {
			token = c.Query(tokenField)
		}
		out, err := s.orch.Submit(ctx, orchestrator.SubmitRequest{
			FormID: p.formID,
			Values: values,
			Token:  strings.TrimSpace(token),
		})
		if err != nil {
			return fmt.Errorf("server: submit %s: %w", p.formID, err)
		}

		opts := s.baseOptions(c, p)
		if p.formID == forms.IDChangePasswordHref {
			opts.Hidden = render.MergeHiddenFields(opts.Hidden, render.Hidden(tokenField, token))
		}

		if !out.Accepted() {
			status := s.rejectionStatus(c, p, out)
			if wantsJSON(c) {
				return c.Status(status).JSON(newResult(out, opts, ""))
			}
			return s.renderForm(c, p, status, out.RenderOptions(opts))
		}

		target := p.next(c, out)
		if token := out.Account.SessionToken; token != "" {
			c.Cookie(&fiber.Cookie{
				Name:     s.cfg.SessionCookie,
				Value:    token,
				Path:     "/",
				HTTPOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		s.log.InfoContext(ctx, "submission accepted", "form", p.formID, "account", out.Account.ID)

		if wantsJSON(c) {
			return c.JSON(newResult(out, opts, target))
		}
		return flash.WithData(c, fiber.Map{
			flashNotice: p.notice,
			flashKind:   render.NoticeSuccess,
		}).Redirect(target, fiber.StatusSeeOther)
	}
}

// rejectionStatus logs the rejection and picks the response status: 422 for
// anything the user can fix, 503 when the backend failed.
func (s *Server) rejectionStatus(c *fiber.Ctx, p page, out orchestrator.Outcome) int {
	ctx := c.UserContext()
	switch {
	case out.BackendErr == nil:
		s.log.DebugContext(ctx, "submission invalid", "form", p.formID)
	case identity.IsUserError(out.BackendErr):
		s.log.InfoContext(ctx, "submission rejected", "form", p.formID, "code", identity.Code(out.BackendErr))
	default:
		s.log.ErrorContext(ctx, "identity backend failed", "form", p.formID, "error", out.BackendErr)
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusUnprocessableEntity
}

// verify confirms an address from a link. Links carry either a token or a
// flow id and code pair.
func (s *Server) verify(c *fiber.Ctx) error {
	ctx := c.UserContext()
	token := strings.TrimSpace(c.Query(tokenField))
	if token == "" {
		token = identity.FlowToken(c.Query("flow"), c.Query("code"))
	}
	account, err := s.cfg.Verifier.Verify(ctx, token)
	if err != nil {
		status := fiber.StatusBadRequest
		if !identity.IsUserError(err) {
			s.log.ErrorContext(ctx, "verification failed", "error", err)
			status = fiber.StatusServiceUnavailable
		}
		if wantsJSON(c) {
			return c.Status(status).JSON(result{FormErrors: []string{render.RenderOptions{
				Locale:     localeOf(c),
				Translator: s.translator,
			}.Translate(NoticeVerifyFailed)}})
		}
		return flash.WithData(c, fiber.Map{
			flashNotice: NoticeVerifyFailed,
			flashKind:   render.NoticeError,
		}).Redirect(s.loginURL(), fiber.StatusSeeOther)
	}

	s.log.InfoContext(ctx, "email verified", "account", account.ID)
	if wantsJSON(c) {
		return c.JSON(result{Valid: true, Redirect: s.loginURL()})
	}
	return flash.WithData(c, fiber.Map{
		flashNotice: NoticeVerified,
		flashKind:   render.NoticeSuccess,
	}).Redirect(s.loginURL(), fiber.StatusSeeOther)
}

func (s *Server) renderForm(c *fiber.Ctx, p page, status int, opts render.RenderOptions) error {
	out, err := s.orch.Generate(c.UserContext(), orchestrator.Request{
		FormID:        p.formID,
		ThemeName:     s.cfg.ThemeName,
		ThemeVariant:  s.cfg.ThemeVariant,
		RenderOptions: opts,
	})
	if err != nil {
		return fmt.Errorf("server: render %s: %w", p.formID, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(out)
}

// result is the JSON body returned to API clients.
type result struct {
	Valid        bool                `json:"valid"`
	Errors       map[string][]string `json:"errors,omitempty"`
	FormErrors   []string            `json:"form_errors,omitempty"`
	Redirect     string              `json:"redirect,omitempty"`
	Account      *identity.Account   `json:"account,omitempty"`
	SessionToken string              `json:"session_token,omitempty"`
}

func newResult(out orchestrator.Outcome, base render.RenderOptions, redirect string) result {
	opts := out.RenderOptions(base)
	res := result{
		Valid:        out.Accepted(),
		Errors:       render.LocalizeMessages(opts.Errors, opts),
		Redirect:     redirect,
		SessionToken: out.Account.SessionToken,
	}
	for _, msg := range opts.FormErrors {
		res.FormErrors = append(res.FormErrors, opts.Translate(msg))
	}
	if out.Account.ID != "" {
		account := out.Account
		res.Account = &account
	}
	return res
}

func decodeBody(c *fiber.Ctx) (map[string]any, error) {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		return forms.ValuesFromJSON(c.Body())
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		mf, err := c.MultipartForm()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", forms.ErrMalformedInput, err)
		}
		return forms.ValuesFromURL(url.Values(mf.Value)), nil
	default:
		return forms.ValuesFromQuery(string(c.Body()))
	}
}

// flashNotices reads the notice left by the previous redirect. Requests
// without cookies cannot carry one.
func flashNotices(c *fiber.Ctx) []render.Notice {
	if c.Get(fiber.HeaderCookie) == "" {
		return nil
	}
	data := flash.Get(c)
	message, _ := data[flashNotice].(string)
	if message == "" {
		return nil
	}
	kind, _ := data[flashKind].(string)
	return []render.Notice{{Kind: kind, Message: message}}
}

// safeRedirect accepts local absolute paths only.
func safeRedirect(target, fallback string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return fallback
	}
	return target
}
