package identity

import (
	"context"
	"strings"
)

// Notification kinds.
const (
	KindPasswordReset = "password_reset"
	KindVerification  = "verification"
)

// Notification is a token that has to reach the account owner, usually by
// email as part of a link to the change or verify page.
type Notification struct {
	Kind  string
	Email string
	Token string
}

// Notifier delivers notifications.
type Notifier func(ctx context.Context, n Notification)

const flowTokenSep = "."

// FlowToken joins a self-service flow id and the code issued for it into a
// single link token.
func FlowToken(flow, code string) string {
	flow, code = strings.TrimSpace(flow), strings.TrimSpace(code)
	if flow == "" || code == "" {
		return ""
	}
	return flow + flowTokenSep + code
}

// SplitFlowToken reverses FlowToken.
func SplitFlowToken(token string) (flow, code string, ok bool) {
	flow, code, ok = strings.Cut(strings.TrimSpace(token), flowTokenSep)
	if !ok || flow == "" || code == "" {
		return "", "", false
	}
	return flow, code, true
}
