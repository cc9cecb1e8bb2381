package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-authforms/internal/server"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/identity/memory"
	"github.com/goliatone/go-authforms/pkg/orchestrator"
)

type outbox struct {
	mu   sync.Mutex
	sent []memory.Notification
}

func (o *outbox) notify(_ context.Context, n memory.Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
}

func (o *outbox) last(kind string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i].Token
		}
	}
	return ""
}

type fixture struct {
	srv     *server.Server
	backend *memory.Backend
	outbox  *outbox
	csrf    string
}

func newFixture(t *testing.T, cfg server.Config) fixture {
	t.Helper()
	box := &outbox{}
	backend := memory.New(memory.WithNotifier(box.notify), memory.WithHashCost(bcrypt.MinCost))
	cfg.Orchestrator = orchestrator.New(orchestrator.WithBackend(backend))
	if cfg.Prefix == "" {
		cfg.Prefix = "/auth"
	}
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f := fixture{srv: srv, backend: backend, outbox: box}
	if !cfg.DisableCSRF {
		f.csrf = issueCSRF(t, f, cfg.Prefix+"/login")
	}
	return f
}

// issueCSRF loads a form page and returns the token set in the cookie.
func issueCSRF(t *testing.T, f fixture, page string) string {
	t.Helper()
	resp, _ := f.send(t, httptest.NewRequest(http.MethodGet, page, nil))
	for _, cookie := range resp.Cookies() {
		if cookie.Name == server.CSRFCookie && cookie.Value != "" {
			return cookie.Value
		}
	}
	t.Fatalf("GET %s issued no %s cookie", page, server.CSRFCookie)
	return ""
}

// do sends req as a browser that loaded the form first: submissions carry
// the token cookie and header.
func (f fixture) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	if req.Method != http.MethodGet && f.csrf != "" {
		req.AddCookie(&http.Cookie{Name: server.CSRFCookie, Value: f.csrf})
		req.Header.Set(server.HeaderCSRFToken, f.csrf)
	}
	return f.send(t, req)
}

func (f fixture) send(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := f.srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func formPost(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonPost(target, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

type jsonResult struct {
	Valid      bool                `json:"valid"`
	Errors     map[string][]string `json:"errors"`
	FormErrors []string            `json:"form_errors"`
	Redirect   string              `json:"redirect"`
}

func decodeResult(t *testing.T, body string) jsonResult {
	t.Helper()
	var res jsonResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return res
}

func register(t *testing.T, f fixture, email, password string) {
	t.Helper()
	resp, body := f.do(t, jsonPost("/auth/register", `{"email":"`+email+`","password":"`+password+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
}

func TestNew_RequiresOrchestrator(t *testing.T) {
	if _, err := server.New(server.Config{}); err == nil {
		t.Fatalf("expected missing orchestrator error")
	}
}

func TestHealthAndAssets(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/healthz", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("health: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get(server.HeaderRequestID) == "" {
		t.Fatalf("missing request id header")
	}

	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/auth/assets/authforms.css", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stylesheet status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/css") {
		t.Fatalf("stylesheet content type %q", got)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, server.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/healthz", nil)
	req.Header.Set(server.HeaderRequestID, "req-42")

	resp, _ := f.do(t, req)
	if got := resp.Header.Get(server.HeaderRequestID); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}
}

func TestGetForms(t *testing.T) {
	f := newFixture(t, server.Config{})

	cases := map[string][]string{
		"/auth/login":    {`name="login"`, `name="password"`, `href="/auth/register"`, `href="/auth/forgot"`},
		"/auth/register": {`name="email"`, `name="username"`, `href="/auth/login"`},
		"/auth/forgot":   {`name="email"`},
	}
	for target, wants := range cases {
		resp, body := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", target, resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
			t.Fatalf("%s content type %q", target, got)
		}
		for _, want := range wants {
			if !strings.Contains(body, want) {
				t.Fatalf("%s: missing %s in\n%s", target, want, body)
			}
		}
	}

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/verify/resend", nil))
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resend should be POST only, got %d", resp.StatusCode)
	}
}

func TestGetLogin_Localized(t *testing.T) {
	f := newFixture(t, server.Config{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.5")
	_, body := f.do(t, req)
	if !strings.Contains(body, "Iniciar sesión") {
		t.Fatalf("expected spanish title:\n%s", body)
	}

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/auth/login?lang=es", nil))
	if !strings.Contains(body, "Iniciar sesión") {
		t.Fatalf("expected ?lang to select spanish")
	}
}

func TestPostLogin_InvalidRerenders(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, formPost("/auth/login", url.Values{"login": {"ada"}}))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Password required.") {
		t.Fatalf("missing field message:\n%s", body)
	}
	if !strings.Contains(body, `value="ada"`) {
		t.Fatalf("submitted login not echoed:\n%s", body)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, jsonPost("/auth/register", `{"email":"ada@example.com","password":"s3cret"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	res := decodeResult(t, body)
	if !res.Valid || res.Redirect != "/auth/login" {
		t.Fatalf("unexpected register result %+v", res)
	}

	resp, body = f.do(t, jsonPost("/auth/register", `{"email":"ada@example.com","password":"other"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate status %d", resp.StatusCode)
	}
	want := map[string][]string{"email": {"An account with that email already exists."}}
	if diff := cmp.Diff(want, decodeResult(t, body).Errors); diff != "" {
		t.Fatalf("duplicate errors (-want +got):\n%s", diff)
	}

	resp, _ = f.do(t, formPost("/auth/login?next=/dashboard", url.Values{
		"login":    {"ada@example.com"},
		"password": {"s3cret"},
	}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/dashboard" {
		t.Fatalf("login redirect %q", got)
	}
	var session bool
	for _, cookie := range resp.Cookies() {
		if cookie.Name == server.DefaultSessionCookie && cookie.Value != "" && cookie.HttpOnly {
			session = true
		}
	}
	if !session {
		t.Fatalf("missing session cookie")
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, jsonPost("/auth/register", `{"email":"bob@example.com","username":"bob","password":"s3cret"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}

	want := map[string][]string{"username": {"That username is already taken."}}
	for _, username := range []string{"bob", "bob@example.com"} {
		payload := `{"email":"other@example.com","username":"` + username + `","password":"s3cret"}`
		resp, body = f.do(t, jsonPost("/auth/register", payload))
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("username %q: status %d", username, resp.StatusCode)
		}
		if diff := cmp.Diff(want, decodeResult(t, body).Errors); diff != "" {
			t.Fatalf("username %q errors (-want +got):\n%s", username, diff)
		}
	}
}

func TestLogin_RejectsForeignRedirect(t *testing.T) {
	f := newFixture(t, server.Config{HomeURL: "/home"})
	register(t, f, "ada@example.com", "s3cret")

	for _, next := range []string{"//evil.example", "https://evil.example/", "javascript:alert(1)"} {
		resp, _ := f.do(t, formPost("/auth/login?next="+url.QueryEscape(next), url.Values{
			"login":    {"ada@example.com"},
			"password": {"s3cret"},
		}))
		if got := resp.Header.Get("Location"); got != "/home" {
			t.Fatalf("next=%q redirected to %q", next, got)
		}
	}
}

func TestLogin_BadCredentialsJSON(t *testing.T) {
	f := newFixture(t, server.Config{})
	register(t, f, "ada@example.com", "s3cret")

	req := jsonPost("/auth/login", `{"login":"ada@example.com","password":"wrong"}`)
	req.Header.Set("Accept-Language", "es")
	resp, body := f.do(t, req)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", resp.StatusCode)
	}
	res := decodeResult(t, body)
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if diff := cmp.Diff([]string{"Usuario o contraseña incorrectos."}, res.FormErrors); diff != "" {
		t.Fatalf("form errors (-want +got):\n%s", diff)
	}
}

func TestRegistration_TermsVariant(t *testing.T) {
	f := newFixture(t, server.Config{Terms: true})

	resp, body := f.do(t, jsonPost("/auth/register", `{"email":"ada@example.com","password":"s3cret"}`))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if _, ok := decodeResult(t, body).Errors["accept"]; !ok {
		t.Fatalf("expected accept error: %s", body)
	}

	resp, body = f.do(t, formPost("/auth/register", url.Values{
		"email":    {"ada@example.com"},
		"password": {"s3cret"},
		"accept":   {"y"},
	}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("accepted status %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Location"); got != "/auth/login" {
		t.Fatalf("redirect %q", got)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t, server.Config{})
	register(t, f, "ada@example.com", "s3cret")

	resp, body := f.do(t, formPost("/auth/forgot", url.Values{"email": {"nobody@example.com"}}))
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(body, "No account matches that email address.") {
		t.Fatalf("unknown email: %d\n%s", resp.StatusCode, body)
	}

	resp, _ = f.do(t, formPost("/auth/forgot", url.Values{"email": {"ada@example.com"}}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("forgot status %d", resp.StatusCode)
	}
	token := f.outbox.last(memory.KindPasswordReset)
	if token == "" {
		t.Fatalf("no reset token sent")
	}

	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, "/auth/change?token="+url.QueryEscape(token)+"&next=/welcome", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change page status %d", resp.StatusCode)
	}
	for _, want := range []string{`name="token" value="` + token + `"`, `name="href" value="/welcome"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in\n%s", want, body)
		}
	}

	resp, body = f.do(t, formPost("/auth/change", url.Values{
		"password":       {"n3w"},
		"password_again": {"n3w-typo"},
		"href":           {"/welcome"},
		"token":          {token},
	}))
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(body, "Passwords do not match.") {
		t.Fatalf("mismatch: %d\n%s", resp.StatusCode, body)
	}

	resp, _ = f.do(t, formPost("/auth/change", url.Values{
		"password":       {"n3w"},
		"password_again": {"n3w"},
		"href":           {"/welcome"},
		"token":          {token},
	}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("change status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/welcome" {
		t.Fatalf("change redirect %q", got)
	}

	resp, body = f.do(t, formPost("/auth/change", url.Values{
		"password":       {"again"},
		"password_again": {"again"},
		"token":          {token},
	}))
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(body, "This password reset link is invalid or has expired.") {
		t.Fatalf("reused token: %d\n%s", resp.StatusCode, body)
	}

	resp, _ = f.do(t, jsonPost("/auth/login", `{"login":"ada@example.com","password":"n3w"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password status %d", resp.StatusCode)
	}
}

func TestForgotPassword_NoticeAfterRedirect(t *testing.T) {
	f := newFixture(t, server.Config{})
	register(t, f, "ada@example.com", "s3cret")

	resp, _ := f.do(t, formPost("/auth/forgot", url.Values{"email": {"ada@example.com"}}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("forgot status %d", resp.StatusCode)
	}
	next := httptest.NewRequest(http.MethodGet, resp.Header.Get("Location"), nil)
	for _, cookie := range resp.Cookies() {
		next.AddCookie(cookie)
	}
	_, body := f.do(t, next)
	if !strings.Contains(body, server.NoticeResetSent) {
		t.Fatalf("missing reset notice in\n%s", body)
	}
	if strings.Contains(body, "If that address is registered") {
		t.Fatalf("notice hides the account lookup that the form reports:\n%s", body)
	}
}

func TestChangePage_MissingToken(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/change", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "This password reset link is invalid or has expired.") {
		t.Fatalf("missing token message:\n%s", body)
	}
}

func TestResendAndVerify(t *testing.T) {
	box := &outbox{}
	backend := memory.New(memory.WithNotifier(box.notify), memory.WithHashCost(bcrypt.MinCost))
	srv, err := server.New(server.Config{
		Orchestrator: orchestrator.New(orchestrator.WithBackend(backend)),
		Verifier:     backend,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f := fixture{srv: srv, backend: backend, outbox: box}
	f.csrf = issueCSRF(t, f, "/login")

	resp, body := f.do(t, jsonPost("/register", `{"email":"ada@example.com","username":"ada","password":"s3cret"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	first := box.last(memory.KindVerification)

	resp, _ = f.do(t, formPost("/verify/resend", url.Values{"username": {"ada"}}))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("resend status %d", resp.StatusCode)
	}
	second := box.last(memory.KindVerification)
	if second == "" || second == first {
		t.Fatalf("expected a fresh verification token")
	}

	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/verify?token="+url.QueryEscape(second), nil))
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("verify: %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	if account, ok := backend.Account("ada"); !ok || !account.Verified {
		t.Fatalf("account not verified: %+v", account)
	}

	req := httptest.NewRequest(http.MethodGet, "/verify?token=bogus", nil)
	req.Header.Set("Accept", "application/json")
	resp, _ = f.do(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus token status %d", resp.StatusCode)
	}
}

type recordingVerifier struct {
	tokens []string
}

func (v *recordingVerifier) Verify(_ context.Context, token string) (identity.Account, error) {
	v.tokens = append(v.tokens, token)
	if token == "" {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidToken, "verify", nil)
	}
	return identity.Account{ID: "id-1", Verified: true}, nil
}

func TestVerify_FlowAndCodeLink(t *testing.T) {
	verifier := &recordingVerifier{}
	srv, err := server.New(server.Config{
		Orchestrator: orchestrator.New(orchestrator.WithBackend(memory.New())),
		Verifier:     verifier,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f := fixture{srv: srv}

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/verify?flow=vf-1&code=654321", nil))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("verify status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/verify?flow=vf-1", nil))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("incomplete link status %d", resp.StatusCode)
	}

	want := []string{identity.FlowToken("vf-1", "654321"), ""}
	if diff := cmp.Diff(want, verifier.tokens); diff != "" {
		t.Fatalf("tokens (-want +got):\n%s", diff)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t, server.Config{})

	resp, body := f.do(t, jsonPost("/auth/login", `{"login": {"nested": true}}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if decodeResult(t, body).Valid {
		t.Fatalf("malformed body reported valid")
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, server.Config{RateLimit: 2})

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := f.do(t, formPost("/auth/login", url.Values{}))
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}

func TestSubmit_RequiresCSRFToken(t *testing.T) {
	f := newFixture(t, server.Config{})
	register(t, f, "ada@example.com", "s3cret")
	credentials := url.Values{"login": {"ada@example.com"}, "password": {"s3cret"}}

	forged := formPost("/auth/login", credentials)
	forged.Header.Set("Origin", "https://evil.example")
	resp, _ := f.send(t, forged)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged login status %d", resp.StatusCode)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == server.DefaultSessionCookie {
			t.Fatalf("forged login issued a session")
		}
	}

	mismatched := formPost("/auth/login", credentials)
	mismatched.AddCookie(&http.Cookie{Name: server.CSRFCookie, Value: f.csrf})
	mismatched.Header.Set(server.HeaderCSRFToken, "not-the-token")
	if resp, _ := f.send(t, mismatched); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("mismatched token status %d", resp.StatusCode)
	}

	inForm := formPost("/auth/login", url.Values{
		"login":          {"ada@example.com"},
		"password":       {"s3cret"},
		server.CSRFField: {f.csrf},
	})
	inForm.AddCookie(&http.Cookie{Name: server.CSRFCookie, Value: f.csrf})
	if resp, body := f.send(t, inForm); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("form token status %d: %s", resp.StatusCode, body)
	}
}

func TestGetForm_EmbedsCSRFToken(t *testing.T) {
	f := newFixture(t, server.Config{})

	req := httptest.NewRequest(http.MethodGet, "/auth/forgot", nil)
	req.AddCookie(&http.Cookie{Name: server.CSRFCookie, Value: f.csrf})
	resp, body := f.send(t, req)
	want := `name="` + server.CSRFField + `" value="` + f.csrf + `"`
	if !strings.Contains(body, want) {
		t.Fatalf("missing %s in\n%s", want, body)
	}
	if got := resp.Header.Get(server.HeaderCSRFToken); got != f.csrf {
		t.Fatalf("token header = %q, want %q", got, f.csrf)
	}
}

func TestSubmit_CSRFDisabled(t *testing.T) {
	f := newFixture(t, server.Config{DisableCSRF: true})

	resp, _ := f.send(t, formPost("/auth/login", url.Values{"login": {"ada"}}))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
