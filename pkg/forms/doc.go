// Package forms declares the account forms (registration, login, password
// reset and change, verification resend) and binds submitted values to them.
//
// Builders are pure: every call returns a new schema with its own validator
// lists. Registration consults a features.Config snapshot to decide which
// optional profile fields become mandatory; nothing else reads it.
//
//	schema := forms.Registration(cfg)
//	form := forms.New(schema, forms.ValuesFromURL(r.PostForm))
//	ok, err := form.Validate(validation.New())
package forms
