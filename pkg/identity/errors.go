package identity

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Adapters wrap them with an oops code so both errors.Is and
// code lookups work.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrBackendUnavailable = errors.New("identity backend unavailable")
)

// Error codes attached to backend errors.
const (
	CodeInvalidCredentials = "IDENTITY_INVALID_CREDENTIALS"
	CodeAccountExists      = "IDENTITY_ACCOUNT_EXISTS"
	CodeUsernameTaken      = "IDENTITY_USERNAME_TAKEN"
	CodeAccountNotFound    = "IDENTITY_ACCOUNT_NOT_FOUND"
	CodeInvalidToken       = "IDENTITY_INVALID_TOKEN"
	CodeBackendUnavailable = "IDENTITY_BACKEND_UNAVAILABLE"
)

// User-facing messages. They double as translation keys.
const (
	MsgInvalidCredentials = "Invalid username or password."
	MsgAccountExists      = "An account with that email already exists."
	MsgUsernameTaken      = "That username is already taken."
	MsgAccountNotFound    = "No account matches that email address."
	MsgInvalidToken       = "This password reset link is invalid or has expired."
	MsgBackendUnavailable = "The identity service is unavailable. Please try again."
)

type mapping struct {
	sentinel error
	code     string
	field    string
	message  string
}

var mappings = []mapping{
	{ErrInvalidCredentials, CodeInvalidCredentials, "", MsgInvalidCredentials},
	{ErrAccountExists, CodeAccountExists, "email", MsgAccountExists},
	{ErrUsernameTaken, CodeUsernameTaken, "username", MsgUsernameTaken},
	{ErrAccountNotFound, CodeAccountNotFound, "email", MsgAccountNotFound},
	{ErrInvalidToken, CodeInvalidToken, "", MsgInvalidToken},
	{ErrBackendUnavailable, CodeBackendUnavailable, "", MsgBackendUnavailable},
}

// Wrap attaches the code matching sentinel and the operation name to err.
// When err is nil the sentinel itself is wrapped.
func Wrap(sentinel error, operation string, err error) error {
	if err == nil {
		err = sentinel
	} else if !errors.Is(err, sentinel) {
		err = errors.Join(sentinel, err)
	}
	builder := oops.With("operation", operation)
	for _, m := range mappings {
		if m.sentinel == sentinel {
			builder = builder.Code(m.code)
			break
		}
	}
	return builder.Wrap(err)
}

// Code returns the identity code carried by err, or "" when none matches.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		for _, m := range mappings {
			if oopsErr.Code() == m.code {
				return m.code
			}
		}
	}
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return ""
}

// FieldErrors maps a backend error onto form messages. Errors that are not
// part of the taxonomy are reported as the backend being unavailable so
// internal details never reach the page.
func FieldErrors(err error) (fields map[string][]string, form []string) {
	if err == nil {
		return nil, nil
	}
	code := Code(err)
	for _, m := range mappings {
		if m.code != code {
			continue
		}
		if m.field == "" {
			return nil, []string{m.message}
		}
		return map[string][]string{m.field: {m.message}}, nil
	}
	return nil, []string{MsgBackendUnavailable}
}

// IsUserError reports whether err belongs to the taxonomy and was caused by
// the submitted data rather than by the backend itself.
func IsUserError(err error) bool {
	switch Code(err) {
	case CodeInvalidCredentials, CodeAccountExists, CodeUsernameTaken, CodeAccountNotFound, CodeInvalidToken:
		return true
	default:
		return false
	}
}
