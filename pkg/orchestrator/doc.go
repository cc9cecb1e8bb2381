// Package orchestrator wires the form pipeline: build the schema from the
// registry and feature toggles, bind submitted values, validate, then either
// render the form or hand the data to the identity backend.
package orchestrator
