package http

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/layer-3/agent/rpc"
)

const bearerScheme = "Bearer"

var fileHeaderType = reflect.TypeOf(multipart.FileHeader{})

// DocsInfo is the document metadata
type DocsInfo struct {
	Title   string
	Version string
}

// BuildDocs describes the routes as an OpenAPI 3.0 document
func BuildDocs(routes []*rpc.Route, info DocsInfo) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:   info.Title,
			Version: info.Version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerScheme: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
	}

	for _, route := range routes {
		op, err := buildOperation(route.Spec, doc.Components.Schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to describe %s: %w", route.Spec.Name, err)
		}
		item := &openapi3.PathItem{}
		item.SetOperation(route.Spec.Verb, op)
		doc.Paths.Set(route.Spec.Name, item)
	}

	return doc, nil
}

func buildOperation(spec rpc.RouteSpec, schemas openapi3.Schemas) (*openapi3.Operation, error) {
	op := openapi3.NewOperation()
	op.OperationID = strings.TrimPrefix(spec.Name, "/")
	op.Summary = spec.Summary

	input, err := schemaFor(spec.Input, schemas)
	if err != nil {
		return nil, err
	}

	switch {
	case spec.Verb == http.MethodGet:
		if input.Value == nil {
			break
		}
		for _, name := range sortedKeys(input.Value.Properties) {
			param := openapi3.NewQueryParameter(name).WithSchema(input.Value.Properties[name].Value)
			param.Required = contains(input.Value.Required, name)
			op.AddParameter(param)
		}
	case spec.Encoding == rpc.EncodingMultipart:
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithSchemaRef(input, []string{"multipart/form-data"}))}
	default:
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithJSONSchemaRef(input))}
	}

	okSchema, err := schemaFor(spec.OutputOk, schemas)
	if err != nil {
		return nil, err
	}
	errSchema, err := schemaFor(spec.OutputErr, schemas)
	if err != nil {
		return nil, err
	}

	responses := openapi3.NewResponsesWithCapacity(3)
	responses.Set("200", jsonResponse(orDefault(spec.OkDescription, "Success"), okSchema))
	responses.Set("400", jsonResponse(orDefault(spec.ErrDescription, "Error"), errSchema))

	if spec.AuthRequired {
		unauthorized, err := schemaFor(reflect.TypeOf(rpc.Message{}), schemas)
		if err != nil {
			return nil, err
		}
		responses.Set("401", jsonResponse("Unauthorized", unauthorized))
		op.Security = openapi3.NewSecurityRequirements().
			With(openapi3.NewSecurityRequirement().Authenticate(bearerScheme))
	}
	op.Responses = responses

	return op, nil
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription(description).
		WithContent(openapi3.NewContentWithJSONSchemaRef(schema))}
}

func schemaFor(t reflect.Type, schemas openapi3.Schemas) (*openapi3.SchemaRef, error) {
	ref, err := openapi3gen.NewSchemaRefForValue(reflect.New(t).Elem().Interface(), schemas,
		openapi3gen.SchemaCustomizer(customizeSchema))
	if err != nil {
		return nil, err
	}
	if ref.Value != nil {
		markRequired(ref.Value, t)
	}
	return ref, nil
}

// customizeSchema describes uploaded files as binary strings
func customizeSchema(name string, t reflect.Type, tag reflect.StructTag, schema *openapi3.Schema) error {
	if t == fileHeaderType {
		*schema = *openapi3.NewStringSchema().WithFormat("binary")
	}
	return nil
}

// markRequired lists fields with a binding:"required" tag as required
func markRequired(schema *openapi3.Schema, t reflect.Type) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == fileHeaderType {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		prop, ok := schema.Properties[name]
		if !ok || prop.Value == nil {
			continue
		}
		if hasRule(f.Tag.Get("binding"), "required") && !contains(schema.Required, name) {
			schema.Required = append(schema.Required, name)
		}
		markRequired(prop.Value, f.Type)
	}
}

func fieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

func hasRule(tag, rule string) bool {
	for _, r := range strings.Split(tag, ",") {
		if strings.TrimSpace(r) == rule {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(props openapi3.Schemas) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
