package identity

import (
	"context"
	"strings"
	"time"
)

// Backend performs the account operations behind each form.
type Backend interface {
	Register(ctx context.Context, reg Registration) (Account, error)
	Authenticate(ctx context.Context, login, password string) (Account, error)
	SendPasswordReset(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, token, password string) error
	ResendVerification(ctx context.Context, login string) error
}

// Registration carries validated registration data.
type Registration struct {
	Username      string
	GivenName     string
	MiddleName    string
	Surname       string
	Email         string
	Password      string
	AcceptedTerms bool
}

// RegistrationFromData builds a Registration from coerced form data.
func RegistrationFromData(data map[string]any) Registration {
	str := func(key string) string {
		s, _ := data[key].(string)
		return strings.TrimSpace(s)
	}
	accepted, _ := data["accept"].(bool)
	password, _ := data["password"].(string)
	return Registration{
		Username:      str("username"),
		GivenName:     str("given_name"),
		MiddleName:    str("middle_name"),
		Surname:       str("surname"),
		Email:         str("email"),
		Password:      password,
		AcceptedTerms: accepted,
	}
}

// Traits returns the non-empty profile fields keyed by form field name.
func (r Registration) Traits() map[string]any {
	traits := map[string]any{"email": r.Email}
	for key, value := range map[string]string{
		"username":    r.Username,
		"given_name":  r.GivenName,
		"middle_name": r.MiddleName,
		"surname":     r.Surname,
	} {
		if value != "" {
			traits[key] = value
		}
	}
	return traits
}

// Account is the public view of a stored identity.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	Email        string    `json:"email"`
	GivenName    string    `json:"given_name,omitempty"`
	MiddleName   string    `json:"middle_name,omitempty"`
	Surname      string    `json:"surname,omitempty"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	SessionToken string    `json:"-"`
}
