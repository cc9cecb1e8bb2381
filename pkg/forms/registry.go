package forms

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-authforms/pkg/features"
	"github.com/goliatone/go-authforms/pkg/model"
)

// ErrUnknownForm is returned when a form id is not registered.
var ErrUnknownForm = errors.New("forms: unknown form")

// BuildFunc produces a fresh schema. Builders that do not depend on feature
// toggles ignore cfg.
type BuildFunc func(cfg *features.Config) model.FormModel

// Definition describes a registered form.
type Definition struct {
	ID          string
	Title       string
	Description string
	Build       BuildFunc
}

// Registry stores form definitions by id.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// DefaultRegistry returns a registry holding every built-in form.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range builtins() {
		r.MustRegister(def)
	}
	return r
}

func builtins() []Definition {
	static := func(fn func() model.FormModel) BuildFunc {
		return func(*features.Config) model.FormModel { return fn() }
	}
	return []Definition{
		{ID: IDRegistration, Title: "Create an account", Description: "Account registration with configurable profile fields.", Build: Registration},
		{ID: IDRegistrationTerms, Title: "Create an account", Description: "Registration that also requires accepting the terms.", Build: RegistrationWithTerms},
		{ID: IDLogin, Title: "Log in", Description: "Email or username plus password.", Build: static(Login)},
		{ID: IDForgotPassword, Title: "Forgot your password?", Description: "Request a password reset email.", Build: static(ForgotPassword)},
		{ID: IDChangePassword, Title: "Change your password", Description: "New password with confirmation.", Build: static(ChangePassword)},
		{ID: IDChangePasswordHref, Title: "Change your password", Description: "Password change carrying the reset link target.", Build: static(ChangePasswordWithHref)},
		{ID: IDResendVerification, Title: "Resend verification email", Description: "Hidden username pass-through.", Build: static(ResendVerification)},
	}
}

// Register adds a definition. Duplicate ids return an error.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return errors.New("forms: definition id is required")
	}
	if def.Build == nil {
		return fmt.Errorf("forms: definition %q has no builder", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("forms: definition %q already registered", def.ID)
	}
	r.definitions[def.ID] = def
	return nil
}

// MustRegister panics on registration failure.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get retrieves a definition by id.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownForm, id)
	}
	return def, nil
}

// Build returns a fresh schema for id.
func (r *Registry) Build(id string, cfg *features.Config) (model.FormModel, error) {
	def, err := r.Get(id)
	if err != nil {
		return model.FormModel{}, err
	}
	return def.Build(cfg), nil
}

// List returns the registered ids sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definitions returns every definition sorted by id.
func (r *Registry) Definitions() []Definition {
	ids := r.List()
	out := make([]Definition, 0, len(ids))

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if def, ok := r.definitions[id]; ok {
			out = append(out, def)
		}
	}
	return out
}
