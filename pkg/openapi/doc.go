// Package openapi describes the form schemas as an OpenAPI 3 document so
// API clients can discover the fields, formats and required inputs of every
// form. Documents are built with kin-openapi and validated before they are
// returned.
package openapi
