package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-authforms/pkg/features"
	"github.com/goliatone/go-authforms/pkg/forms"
	"github.com/goliatone/go-authforms/pkg/model"
)

// Extension keys added to exported schemas.
const (
	ExtensionEqualTo = "x-authforms-equal-to"
	ExtensionHidden  = "x-authforms-hidden"
	ExtensionFormID  = "x-authforms-form"
)

const schemaRefPrefix = "#/components/schemas/"

// Info describes the exported document.
type Info struct {
	Title       string
	Version     string
	Description string
	// Routes maps form ids to the path that accepts their submission. Forms
	// without a route only appear under components.
	Routes map[string]string
}

// DefaultRoutes returns the submission paths served by the HTTP server. The
// terms variant replaces plain registration when terms is true.
func DefaultRoutes(terms bool) map[string]string {
	registration := forms.IDRegistration
	if terms {
		registration = forms.IDRegistrationTerms
	}
	return map[string]string{
		registration:               "/register",
		forms.IDLogin:              "/login",
		forms.IDForgotPassword:     "/forgot",
		forms.IDChangePasswordHref: "/change",
		forms.IDResendVerification: "/verify/resend",
	}
}

// Export builds an OpenAPI document with one component schema per
// registered form, built with cfg, and one POST operation per routed form.
func Export(ctx context.Context, registry *forms.Registry, cfg *features.Config, info Info) (*openapi3.T, error) {
	if registry == nil {
		return nil, errors.New("openapi: registry is nil")
	}
	if strings.TrimSpace(info.Title) == "" {
		info.Title = "Authentication forms"
	}
	if strings.TrimSpace(info.Version) == "" {
		info.Version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas:   openapi3.Schemas{},
			Responses: openapi3.ResponseBodies{},
		},
	}
	doc.Components.Schemas["ValidationResult"] = openapi3.NewSchemaRef("", validationResultSchema())
	doc.Components.Responses["Invalid"] = &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("The submission failed validation.").
			WithJSONSchemaRef(&openapi3.SchemaRef{
				Ref:   schemaRefPrefix + "ValidationResult",
				Value: validationResultSchema(),
			}),
	}

	for _, def := range registry.Definitions() {
		form := def.Build(cfg)
		schema := SchemaFor(form)
		if schema.Description == "" {
			schema.Description = def.Description
		}
		doc.Components.Schemas[def.ID] = openapi3.NewSchemaRef("", schema)
	}

	for _, id := range sortedRouteIDs(info.Routes) {
		path := info.Routes[id]
		ref, ok := doc.Components.Schemas[id]
		if !ok {
			return nil, fmt.Errorf("openapi: route %q: %w: %q", path, forms.ErrUnknownForm, id)
		}
		if doc.Paths.Value(path) != nil {
			return nil, fmt.Errorf("openapi: path %q mapped twice", path)
		}
		doc.Paths.Set(path, &openapi3.PathItem{Post: submitOperation(id, ref.Value)})
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	return doc, nil
}

// SchemaFor converts a single form into an object schema.
func SchemaFor(form model.FormModel) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	schema.Title = form.Title
	schema.Properties = make(openapi3.Schemas, len(form.Fields))
	schema.Extensions = map[string]any{ExtensionFormID: form.ID}

	for _, field := range form.Fields {
		schema.Properties[field.Name] = openapi3.NewSchemaRef("", fieldSchema(field))
		if field.IsRequired() {
			schema.Required = append(schema.Required, field.Name)
		}
	}
	return schema
}

func fieldSchema(field model.Field) *openapi3.Schema {
	var schema *openapi3.Schema
	switch field.Kind {
	case model.FieldKindBoolean:
		schema = openapi3.NewBoolSchema()
	case model.FieldKindSecret:
		schema = openapi3.NewStringSchema().WithFormat("password")
		schema.WriteOnly = true
	default:
		schema = openapi3.NewStringSchema()
	}
	schema.Title = field.Label
	schema.Description = field.Description

	for _, rule := range field.Validations {
		switch rule.Kind {
		case model.ValidationRuleEmail:
			schema.Format = "email"
		case model.ValidationRuleEqualTo:
			setExtension(schema, ExtensionEqualTo, rule.Target())
		case model.ValidationRuleRequired:
			if field.Kind == model.FieldKindBoolean {
				schema.Enum = []any{true}
			} else {
				schema.MinLength = 1
			}
		}
	}
	if field.Kind == model.FieldKindHidden {
		setExtension(schema, ExtensionHidden, true)
	}
	return schema
}

func submitOperation(id string, schema *openapi3.Schema) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = "submit_" + id
	op.Summary = schema.Title
	op.Tags = []string{"forms"}

	ref := &openapi3.SchemaRef{Ref: schemaRefPrefix + id, Value: schema}
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithSchemaRef(ref, []string{
				"application/x-www-form-urlencoded",
				"application/json",
			})),
	}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("The submission was accepted.").
				WithJSONSchemaRef(&openapi3.SchemaRef{
					Ref:   schemaRefPrefix + "ValidationResult",
					Value: validationResultSchema(),
				}),
		}),
		openapi3.WithStatus(http.StatusUnprocessableEntity, &openapi3.ResponseRef{
			Ref:   "#/components/responses/Invalid",
			Value: openapi3.NewResponse().WithDescription("The submission failed validation."),
		}),
	)
	return op
}

func validationResultSchema() *openapi3.Schema {
	messages := openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())
	schema := openapi3.NewObjectSchema()
	schema.Properties = openapi3.Schemas{
		"valid":       openapi3.NewSchemaRef("", openapi3.NewBoolSchema()),
		"errors":      openapi3.NewSchemaRef("", openapi3.NewObjectSchema().WithAdditionalProperties(messages)),
		"form_errors": openapi3.NewSchemaRef("", messages),
		"redirect":    openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}
	schema.Required = []string{"valid"}
	return schema
}

func setExtension(schema *openapi3.Schema, key string, value any) {
	if schema.Extensions == nil {
		schema.Extensions = make(map[string]any)
	}
	schema.Extensions[key] = value
}

func sortedRouteIDs(routes map[string]string) []string {
	ids := make([]string, 0, len(routes))
	for id, path := range routes {
		if strings.TrimSpace(path) != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
