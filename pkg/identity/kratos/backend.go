// Package kratos adapts Ory Kratos native self-service flows to the identity
// backend contract.
package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ory "github.com/ory/kratos-client-go"

	"github.com/goliatone/go-authforms/pkg/identity"
)

// Config points the adapter at a Kratos deployment.
//
// AdminURL is optional. It resolves usernames to addresses for verification
// and, together with Notifier, lets password resets go out as links to the
// change page: the recovery code is created through the admin API and the
// notifier receives it joined with its flow id. Without both, Kratos mails
// the recovery code through its own courier.
type Config struct {
	PublicURL  string
	AdminURL   string
	HTTPClient *http.Client
	Notifier   identity.Notifier
}

// Backend talks to the Kratos public API.
type Backend struct {
	public *ory.APIClient
	admin  *ory.APIClient
	notify identity.Notifier
}

const (
	methodCode   = "code"
	flowTypeAPI  = "api"
	flowQueryKey = "flow"

	statePassedChallenge = "passed_challenge"
)

var _ identity.Backend = (*Backend)(nil)

// New builds a backend from cfg.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.PublicURL) == "" {
		return nil, errors.New("kratos: public url is required")
	}
	b := &Backend{public: newClient(cfg.PublicURL, cfg.HTTPClient), notify: cfg.Notifier}
	if strings.TrimSpace(cfg.AdminURL) != "" {
		b.admin = newClient(cfg.AdminURL, cfg.HTTPClient)
	}
	return b, nil
}

func newClient(url string, httpClient *http.Client) *ory.APIClient {
	conf := ory.NewConfiguration()
	conf.Servers = []ory.ServerConfiguration{{URL: strings.TrimRight(url, "/")}}
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}
	return ory.NewAPIClient(conf)
}

// Register runs a native registration flow with the password method.
func (b *Backend) Register(ctx context.Context, reg identity.Registration) (identity.Account, error) {
	const op = "register"
	flow, resp, err := b.public.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return identity.Account{}, classify(op, resp, err)
	}

	body := ory.UpdateRegistrationFlowBody{
		UpdateRegistrationFlowWithPasswordMethod: &ory.UpdateRegistrationFlowWithPasswordMethod{
			Method:   "password",
			Password: reg.Password,
			Traits:   reg.Traits(),
		},
	}
	result, resp, err := b.public.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(body).
		Execute()
	if err != nil {
		return identity.Account{}, classify(op, resp, err)
	}

	account := identity.Account{
		Username:   reg.Username,
		Email:      reg.Email,
		GivenName:  reg.GivenName,
		MiddleName: reg.MiddleName,
		Surname:    reg.Surname,
	}
	if result.Session != nil && result.Session.Identity != nil {
		account.ID = result.Session.Identity.Id
	}
	if result.SessionToken != nil {
		account.SessionToken = *result.SessionToken
	}
	return account, nil
}

// Authenticate runs a native login flow with the password method.
func (b *Backend) Authenticate(ctx context.Context, login, password string) (identity.Account, error) {
	const op = "authenticate"
	flow, resp, err := b.public.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return identity.Account{}, classify(op, resp, err)
	}

	body := ory.UpdateLoginFlowBody{
		UpdateLoginFlowWithPasswordMethod: &ory.UpdateLoginFlowWithPasswordMethod{
			Method:     "password",
			Identifier: login,
			Password:   password,
		},
	}
	result, resp, err := b.public.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		return identity.Account{}, classify(op, resp, err)
	}

	account := identity.Account{}
	if result.Session.Identity != nil {
		account = accountFromIdentity(result.Session.Identity)
	}
	if result.SessionToken != nil {
		account.SessionToken = *result.SessionToken
	}
	return account, nil
}

// SendPasswordReset issues a one-time recovery code for email.
func (b *Backend) SendPasswordReset(ctx context.Context, email string) error {
	const op = "send_password_reset"
	if b.admin != nil && b.notify != nil {
		return b.sendRecoveryLink(ctx, op, email)
	}

	flow, resp, err := b.public.FrontendAPI.CreateNativeRecoveryFlow(ctx).Execute()
	if err != nil {
		return classify(op, resp, err)
	}

	body := ory.UpdateRecoveryFlowBody{
		UpdateRecoveryFlowWithCodeMethod: &ory.UpdateRecoveryFlowWithCodeMethod{
			Method: methodCode,
			Email:  &email,
		},
	}
	_, resp, err = b.public.FrontendAPI.UpdateRecoveryFlow(ctx).
		Flow(flow.Id).
		UpdateRecoveryFlowBody(body).
		Execute()
	if err != nil {
		return classify(op, resp, err)
	}
	return nil
}

func (b *Backend) sendRecoveryLink(ctx context.Context, op, email string) error {
	found, err := b.lookupIdentity(ctx, op, email)
	if err != nil {
		return err
	}

	body := ory.CreateRecoveryCodeForIdentityBody{
		IdentityId: found.Id,
		FlowType:   ory.PtrString(flowTypeAPI),
	}
	issued, resp, err := b.admin.IdentityAPI.CreateRecoveryCodeForIdentity(ctx).
		CreateRecoveryCodeForIdentityBody(body).
		Execute()
	if err != nil {
		return classify(op, resp, err)
	}
	flow, err := flowFromLink(issued.RecoveryLink)
	if err != nil {
		return identity.Wrap(identity.ErrBackendUnavailable, op, err)
	}

	to := accountFromIdentity(found).Email
	if to == "" {
		to = strings.TrimSpace(email)
	}
	b.notify(ctx, identity.Notification{
		Kind:  identity.KindPasswordReset,
		Email: to,
		Token: identity.FlowToken(flow, issued.RecoveryCode),
	})
	return nil
}

// ChangePassword updates the password through a settings flow. token is
// either a recovery link token, which is redeemed first, or a privileged
// session token.
func (b *Backend) ChangePassword(ctx context.Context, token, password string) error {
	const op = "change_password"
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.Wrap(identity.ErrInvalidToken, op, nil)
	}
	if flow, code, ok := identity.SplitFlowToken(token); ok {
		session, err := b.redeemRecoveryCode(ctx, op, flow, code)
		if err != nil {
			return err
		}
		token = session
	}

	flow, resp, err := b.public.FrontendAPI.CreateNativeSettingsFlow(ctx).
		XSessionToken(token).
		Execute()
	if err != nil {
		return classify(op, resp, err)
	}

	body := ory.UpdateSettingsFlowBody{
		UpdateSettingsFlowWithPasswordMethod: &ory.UpdateSettingsFlowWithPasswordMethod{
			Method:   "password",
			Password: password,
		},
	}
	_, resp, err = b.public.FrontendAPI.UpdateSettingsFlow(ctx).
		Flow(flow.Id).
		XSessionToken(token).
		UpdateSettingsFlowBody(body).
		Execute()
	if err != nil {
		return classify(op, resp, err)
	}
	return nil
}

// redeemRecoveryCode submits code to the recovery flow and returns the
// session token Kratos hands out for the settings step.
func (b *Backend) redeemRecoveryCode(ctx context.Context, op, flow, code string) (string, error) {
	body := ory.UpdateRecoveryFlowBody{
		UpdateRecoveryFlowWithCodeMethod: &ory.UpdateRecoveryFlowWithCodeMethod{
			Method: methodCode,
			Code:   &code,
		},
	}
	result, resp, err := b.public.FrontendAPI.UpdateRecoveryFlow(ctx).
		Flow(flow).
		UpdateRecoveryFlowBody(body).
		Execute()
	if err != nil {
		return "", classifyCode(op, resp, err)
	}
	for _, next := range result.ContinueWith {
		if set := next.ContinueWithSetOrySessionToken; set != nil && set.OrySessionToken != "" {
			return set.OrySessionToken, nil
		}
	}
	return "", identity.Wrap(rejection(result), op, nil)
}

// Verify submits the code carried by a verification link. token is the flow
// id and code joined with identity.FlowToken.
func (b *Backend) Verify(ctx context.Context, token string) (identity.Account, error) {
	const op = "verify"
	flow, code, ok := identity.SplitFlowToken(token)
	if !ok {
		return identity.Account{}, identity.Wrap(identity.ErrInvalidToken, op, nil)
	}

	body := ory.UpdateVerificationFlowBody{
		UpdateVerificationFlowWithCodeMethod: &ory.UpdateVerificationFlowWithCodeMethod{
			Method: methodCode,
			Code:   &code,
		},
	}
	result, resp, err := b.public.FrontendAPI.UpdateVerificationFlow(ctx).
		Flow(flow).
		UpdateVerificationFlowBody(body).
		Execute()
	if err != nil {
		return identity.Account{}, classifyCode(op, resp, err)
	}
	if stateOf(result) != statePassedChallenge {
		return identity.Account{}, identity.Wrap(rejection(result), op, nil)
	}
	return identity.Account{Verified: true}, nil
}

// ResendVerification sends a new verification code. Logins that are not
// addresses are resolved through the admin API when one is configured.
func (b *Backend) ResendVerification(ctx context.Context, login string) error {
	const op = "resend_verification"
	email, err := b.resolveEmail(ctx, op, login)
	if err != nil {
		return err
	}

	flow, resp, err := b.public.FrontendAPI.CreateNativeVerificationFlow(ctx).Execute()
	if err != nil {
		return classify(op, resp, err)
	}

	body := ory.UpdateVerificationFlowBody{
		UpdateVerificationFlowWithCodeMethod: &ory.UpdateVerificationFlowWithCodeMethod{
			Method: methodCode,
			Email:  &email,
		},
	}
	_, resp, err = b.public.FrontendAPI.UpdateVerificationFlow(ctx).
		Flow(flow.Id).
		UpdateVerificationFlowBody(body).
		Execute()
	if err != nil {
		return classify(op, resp, err)
	}
	return nil
}

func (b *Backend) resolveEmail(ctx context.Context, op, login string) (string, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return login, nil
	}
	if b.admin == nil || login == "" {
		return "", identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}

	found, err := b.lookupIdentity(ctx, op, login)
	if err != nil {
		return "", err
	}
	account := accountFromIdentity(found)
	if account.Email == "" {
		return "", identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}
	return account.Email, nil
}

// lookupIdentity finds the identity owning a login through the admin API.
func (b *Backend) lookupIdentity(ctx context.Context, op, login string) (*ory.Identity, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}
	identities, resp, err := b.admin.IdentityAPI.ListIdentities(ctx).
		CredentialsIdentifier(login).
		Execute()
	if err != nil {
		return nil, classify(op, resp, err)
	}
	if len(identities) == 0 {
		return nil, identity.Wrap(identity.ErrAccountNotFound, op, nil)
	}
	return &identities[0], nil
}

func flowFromLink(link string) (string, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("kratos: parse recovery link: %w", err)
	}
	flow := parsed.Query().Get(flowQueryKey)
	if flow == "" {
		return "", fmt.Errorf("kratos: recovery link %q has no flow id", link)
	}
	return flow, nil
}

func accountFromIdentity(id *ory.Identity) identity.Account {
	account := identity.Account{ID: id.Id}
	traits, ok := id.Traits.(map[string]interface{})
	if !ok {
		return account
	}
	str := func(key string) string {
		s, _ := traits[key].(string)
		return s
	}
	account.Email = str("email")
	account.Username = str("username")
	account.GivenName = str("given_name")
	account.MiddleName = str("middle_name")
	account.Surname = str("surname")
	return account
}

// Traits node that carries the username on registration flows.
const usernameNode = "traits.username"

// Kratos message ids that map onto the identity taxonomy.
const (
	msgInvalidCredentials      = 4000006
	msgDuplicateCredentials    = 4000007
	msgAccountNotFound         = 4000037
	msgRecoveryTokenInvalid    = 4060004
	msgRecoveryFlowExpired     = 4060005
	msgRecoveryCodeInvalid     = 4060006
	msgVerificationFlowExpired = 4070005
	msgVerificationCodeInvalid = 4070006
)

type uiMessage struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type flowBody struct {
	State string `json:"state"`
	UI    struct {
		Messages []uiMessage `json:"messages"`
		Nodes    []struct {
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
			Messages []uiMessage `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
}

// flowMessage is a message id and the node it was attached to, "" for
// flow-level messages.
type flowMessage struct {
	id   int64
	node string
}

// classify turns a client error into an identity error. Responses are
// matched first by the Kratos message ids in the returned flow, then by
// status.
func classify(op string, resp *http.Response, err error) error {
	var body []byte
	var apiErr *ory.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		body = apiErr.Body()
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return identity.Wrap(sentinelFor(status, body), op, err)
}

// classifyCode is classify for code submissions, where a missing or expired
// flow means the link no longer works.
func classifyCode(op string, resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone) {
		return identity.Wrap(identity.ErrInvalidToken, op, err)
	}
	return classify(op, resp, err)
}

// rejection maps a flow that came back without the expected outcome. Code
// submissions that Kratos rejects without a known message are treated as bad
// tokens.
func rejection(flow any) error {
	body, err := json.Marshal(flow)
	if err != nil {
		return identity.ErrInvalidToken
	}
	if sentinel := sentinelFor(0, body); sentinel != identity.ErrBackendUnavailable {
		return sentinel
	}
	return identity.ErrInvalidToken
}

func stateOf(flow any) string {
	body, err := json.Marshal(flow)
	if err != nil {
		return ""
	}
	var parsed flowBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.State
}

func sentinelFor(status int, body []byte) error {
	for _, msg := range flowMessages(body) {
		switch msg.id {
		case msgInvalidCredentials:
			return identity.ErrInvalidCredentials
		case msgDuplicateCredentials:
			if msg.node == usernameNode {
				return identity.ErrUsernameTaken
			}
			return identity.ErrAccountExists
		case msgAccountNotFound:
			return identity.ErrAccountNotFound
		case msgRecoveryTokenInvalid, msgRecoveryFlowExpired, msgRecoveryCodeInvalid,
			msgVerificationFlowExpired, msgVerificationCodeInvalid:
			return identity.ErrInvalidToken
		}
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return identity.ErrInvalidToken
	case http.StatusNotFound:
		return identity.ErrAccountNotFound
	case http.StatusConflict:
		return identity.ErrAccountExists
	default:
		return identity.ErrBackendUnavailable
	}
}

func flowMessages(body []byte) []flowMessage {
	if len(body) == 0 {
		return nil
	}
	var flow flowBody
	if err := json.Unmarshal(body, &flow); err != nil {
		return nil
	}
	var out []flowMessage
	for _, msg := range flow.UI.Messages {
		out = append(out, flowMessage{id: msg.ID})
	}
	for _, node := range flow.UI.Nodes {
		for _, msg := range node.Messages {
			out = append(out, flowMessage{id: msg.ID, node: node.Attributes.Name})
		}
	}
	return out
}
