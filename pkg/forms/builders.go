package forms

import (
	"github.com/goliatone/go-authforms/pkg/features"
	"github.com/goliatone/go-authforms/pkg/model"
)

// Registration builds the account creation form. The profile fields are
// optional unless cfg marks them enabled and required; a nil cfg adds no
// conditional rules.
func Registration(cfg *features.Config) model.FormModel {
	return model.FormModel{
		ID:     IDRegistration,
		Title:  "Create an account",
		Fields: ApplyFeatures(registrationFields(), cfg),
	}
}

// RegistrationWithTerms extends Registration with a mandatory "accept"
// checkbox.
func RegistrationWithTerms(cfg *features.Config) model.FormModel {
	return Registration(cfg).Extend(IDRegistrationTerms,
		boolean(FieldAccept, "Accept terms", model.Required(MsgAcceptTerms)),
	)
}

func registrationFields() []model.Field {
	return []model.Field{
		text(FieldUsername, "Username"),
		text(FieldGivenName, "First Name"),
		text(FieldMiddleName, "Middle Name"),
		text(FieldSurname, "Last Name"),
		text(FieldEmail, "Email",
			model.Required(MsgEmailRequired),
			model.Email(MsgEmailInvalid),
		),
		secret(FieldPassword, "Password", model.Required(MsgPasswordSupply)),
	}
}

// ApplyFeatures returns a copy of fields where every toggled profile field
// that cfg marks enabled and required gains a Required rule. The input slice
// is left untouched.
func ApplyFeatures(fields []model.Field, cfg *features.Config) []model.Field {
	out := make([]model.Field, 0, len(fields))
	for _, field := range fields {
		msg, toggled := featureMessages[field.Name]
		if toggled && cfg.Requires(field.Name) {
			out = append(out, field.WithRules(model.Required(msg)))
			continue
		}
		out = append(out, field.Clone())
	}
	return out
}

// Login builds the sign-in form. The login field accepts an email or a
// username; no format check is applied locally.
func Login() model.FormModel {
	return model.FormModel{
		ID:    IDLogin,
		Title: "Log in",
		Fields: []model.Field{
			text(FieldLogin, "Login", model.Required(MsgLoginRequired)),
			secret(FieldPassword, "Password", model.Required(MsgPasswordRequired)),
		},
	}
}

// ForgotPassword builds the password reset request form.
func ForgotPassword() model.FormModel {
	return model.FormModel{
		ID:    IDForgotPassword,
		Title: "Forgot your password?",
		Fields: []model.Field{
			text(FieldEmail, "Email",
				model.Required(MsgForgotEmailRequired),
				model.Email(MsgEmailInvalid),
			),
		},
	}
}

// ChangePassword builds the new password form.
func ChangePassword() model.FormModel {
	return model.FormModel{
		ID:    IDChangePassword,
		Title: "Change your password",
		Fields: []model.Field{
			secret(FieldPassword, "Password", model.Required(MsgPasswordRequired)),
			secret(FieldPasswordAgain, "Password (again)",
				model.Required(MsgPasswordAgainRequired),
				model.EqualTo(FieldPassword, MsgPasswordsMismatch),
			),
		},
	}
}

// ChangePasswordWithHref extends ChangePassword with a hidden href that is
// echoed back untouched.
func ChangePasswordWithHref() model.FormModel {
	return ChangePassword().Extend(IDChangePasswordHref, hidden(FieldHref, "Href"))
}

// ResendVerification builds the single hidden field form used to request a
// new verification email. The username is passed through unvalidated.
func ResendVerification() model.FormModel {
	return model.FormModel{
		ID:     IDResendVerification,
		Title:  "Resend verification email",
		Fields: []model.Field{hidden(FieldUsername, "Username")},
	}
}
