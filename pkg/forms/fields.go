package forms

import "github.com/goliatone/go-authforms/pkg/model"

// Form identifiers.
const (
	IDRegistration       = "registration"
	IDRegistrationTerms  = "registration_terms"
	IDLogin              = "login"
	IDForgotPassword     = "forgot_password"
	IDChangePassword     = "change_password"
	IDChangePasswordHref = "change_password_href"
	IDResendVerification = "resend_verification"
)

// Field names shared across forms.
const (
	FieldUsername      = "username"
	FieldGivenName     = "given_name"
	FieldMiddleName    = "middle_name"
	FieldSurname       = "surname"
	FieldEmail         = "email"
	FieldPassword      = "password"
	FieldPasswordAgain = "password_again"
	FieldAccept        = "accept"
	FieldLogin         = "login"
	FieldHref          = "href"
)

// Validation messages. They double as translation keys.
const (
	MsgEmailRequired         = "You must provide an email address."
	MsgEmailInvalid          = "You must provide a valid email address."
	MsgPasswordSupply        = "You must supply a password."
	MsgUsernameRequired      = "Username is required."
	MsgGivenNameRequired     = "First name is required."
	MsgMiddleNameRequired    = "Middle name is required."
	MsgSurnameRequired       = "Surname is required."
	MsgAcceptTerms           = "You have to accept the terms and conditions in order to use the bulletin board."
	MsgLoginRequired         = "Login identifier required."
	MsgPasswordRequired      = "Password required."
	MsgForgotEmailRequired   = "Email address required."
	MsgPasswordAgainRequired = "Please verify the password."
	MsgPasswordsMismatch     = "Passwords do not match."
)

// featureMessages maps each toggled field to the message used when the
// toggle makes it mandatory.
var featureMessages = map[string]string{
	FieldUsername:   MsgUsernameRequired,
	FieldGivenName:  MsgGivenNameRequired,
	FieldMiddleName: MsgMiddleNameRequired,
	FieldSurname:    MsgSurnameRequired,
}

func text(name, label string, rules ...model.ValidationRule) model.Field {
	return model.Field{Name: name, Label: label, Kind: model.FieldKindText, Validations: rules}
}

func secret(name, label string, rules ...model.ValidationRule) model.Field {
	return model.Field{Name: name, Label: label, Kind: model.FieldKindSecret, Validations: rules}
}

func hidden(name, label string) model.Field {
	return model.Field{Name: name, Label: label, Kind: model.FieldKindHidden}
}

func boolean(name, label string, rules ...model.ValidationRule) model.Field {
	return model.Field{Name: name, Label: label, Kind: model.FieldKindBoolean, Validations: rules}
}
