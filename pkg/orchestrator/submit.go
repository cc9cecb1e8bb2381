package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/identity"
	"github.com/goliatone/go-authforms/pkg/render"
)

// ErrNoHandler is returned when a valid form has nowhere to go.
var ErrNoHandler = errors.New("orchestrator: no submit handler")

// SubmitRequest carries a submission.
type SubmitRequest struct {
	FormID string
	Values map[string]any
	// Token is the reset token for the change password forms.
	Token string
}

// SubmitHandler acts on a validated form. Returned errors are mapped onto the
// form with identity.FieldErrors.
type SubmitHandler func(ctx context.Context, form *forms.Form, req SubmitRequest) (identity.Account, error)

// Outcome is the result of Submit.
type Outcome struct {
	Form    *forms.Form
	Account identity.Account
	// BackendErr is the raw handler failure. Its user-facing messages have
	// already been added to Form.
	BackendErr error
}

// Accepted reports whether the submission validated and the handler
// succeeded.
func (o Outcome) Accepted() bool {
	return o.Form != nil && o.Form.Valid() && o.BackendErr == nil
}

// RenderOptions copies the submitted values and messages into base so the
// form can be shown again.
func (o Outcome) RenderOptions(base render.RenderOptions) render.RenderOptions {
	return FormRenderOptions(o.Form, base)
}

// FormRenderOptions copies the values and messages of form into base.
func FormRenderOptions(form *forms.Form, base render.RenderOptions) render.RenderOptions {
	if form == nil {
		return base
	}
	base.Values = form.Values()
	mapped := render.MapErrorPayload(form.Schema(), form.Errors())
	base.Errors = mapped.Fields
	base.FormErrors = render.MergeFormErrors(base.FormErrors, mapped.Form...)
	base.FormErrors = render.MergeFormErrors(base.FormErrors, form.FormErrors()...)
	return base
}

// Submit validates the submission and, when valid, hands it to the handler
// registered for the form. Invalid submissions and backend rejections are
// reported through the Outcome, not the error, which is reserved for
// misconfiguration.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (Outcome, error) {
	form, err := o.Validate(ctx, req.FormID, req.Values)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Form: form}
	if !form.Valid() {
		return out, nil
	}

	handler, err := o.handlerFor(req.FormID)
	if err != nil {
		return out, err
	}
	account, err := handler(ctx, form, req)
	if err != nil {
		out.BackendErr = err
		fields, formLevel := identity.FieldErrors(err)
		for name, messages := range fields {
			for _, msg := range messages {
				form.AddError(name, msg)
			}
		}
		for _, msg := range formLevel {
			form.AddError("", msg)
		}
		return out, nil
	}
	out.Account = account
	return out, nil
}

func (o *Orchestrator) handlerFor(id string) (SubmitHandler, error) {
	if handler, ok := o.handlers[id]; ok {
		return handler, nil
	}
	if o.backend == nil {
		return nil, fmt.Errorf("%w: %q (identity backend not configured)", ErrNoHandler, id)
	}
	handler, ok := backendHandlers(o.backend)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, id)
	}
	return handler, nil
}

func backendHandlers(backend identity.Backend) map[string]SubmitHandler {
	register := func(ctx context.Context, form *forms.Form, _ SubmitRequest) (identity.Account, error) {
		return backend.Register(ctx, identity.RegistrationFromData(form.Data()))
	}
	changePassword := func(ctx context.Context, form *forms.Form, req SubmitRequest) (identity.Account, error) {
		return identity.Account{}, backend.ChangePassword(ctx, req.Token, form.String(forms.FieldPassword))
	}
	return map[string]SubmitHandler{
		forms.IDRegistration:      register,
		forms.IDRegistrationTerms: register,
		forms.IDLogin: func(ctx context.Context, form *forms.Form, _ SubmitRequest) (identity.Account, error) {
			return backend.Authenticate(ctx, form.String(forms.FieldLogin), form.String(forms.FieldPassword))
		},
		forms.IDForgotPassword: func(ctx context.Context, form *forms.Form, _ SubmitRequest) (identity.Account, error) {
			return identity.Account{}, backend.SendPasswordReset(ctx, form.String(forms.FieldEmail))
		},
		forms.IDChangePassword:     changePassword,
		forms.IDChangePasswordHref: changePassword,
		forms.IDResendVerification: func(ctx context.Context, form *forms.Form, _ SubmitRequest) (identity.Account, error) {
			return identity.Account{}, backend.ResendVerification(ctx, form.String(forms.FieldUsername))
		},
	}
}
