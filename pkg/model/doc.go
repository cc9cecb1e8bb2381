// Package model defines the form schema consumed by the validation engine,
// the renderers and the HTTP layer. A FormModel is an ordered list of Fields;
// each Field carries a kind (text, secret, hidden, boolean) and an ordered
// list of ValidationRules. Rules are tagged values: the Kind selects the check
// (required, email, equalTo), Message holds the user-facing text and Params
// carries rule arguments such as the compared field for equalTo.
//
// Builders return fresh slices on every call. Callers that need to derive a
// schema from another one should use Clone or Extend so validator lists are
// never shared between instances.
package model
