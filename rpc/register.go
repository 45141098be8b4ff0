package rpc

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// Options configures a method at registration
type Options struct {
	Method       string // GET or POST, POST when empty
	AuthRequired bool
	Multipart    bool // input arrives as multipart/form-data

	Summary        string
	OkDescription  string
	ErrDescription string
}

// Handler serves a method. Expected business failures are returned as a Fail
// result; a non-nil error means something exceptional happened.
type Handler[I, O, E any] func(ctx context.Context, input I, call *Call) (Result[O, E], error)

// Register adds a typed method to the table. Wiring mistakes are reported
// here, before the server accepts requests.
func Register[I, O, E any](t *Table, name string, opts Options, handler Handler[I, O, E]) error {
	if handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidRoute, name)
	}

	verb, err := normalizeVerb(opts.Method)
	if err != nil {
		return err
	}

	inputType := reflect.TypeOf((*I)(nil)).Elem()
	if inputType.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s input must be a struct, got %s", ErrInvalidRoute, name, inputType)
	}

	encoding := EncodingJSON
	if opts.Multipart {
		if verb == http.MethodGet {
			return fmt.Errorf("%w: %s is a GET route and cannot take a multipart body", ErrInvalidRoute, name)
		}
		encoding = EncodingMultipart
	}

	if verb == http.MethodGet || encoding == EncodingMultipart {
		// Query and form values bind by form name while docs and errors use the json name
		if err := checkFormNames(inputType); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidRoute, name, err)
		}
	}

	route := &Route{
		Spec: RouteSpec{
			Name:           name,
			Verb:           verb,
			AuthRequired:   opts.AuthRequired,
			Encoding:       encoding,
			Input:          inputType,
			OutputOk:       reflect.TypeOf((*O)(nil)).Elem(),
			OutputErr:      reflect.TypeOf((*E)(nil)).Elem(),
			Summary:        opts.Summary,
			OkDescription:  opts.OkDescription,
			ErrDescription: opts.ErrDescription,
		},
		NewInput: func() any { return new(I) },
		Invoke: func(ctx context.Context, input any, call *Call) (Outcome, error) {
			typed, ok := input.(*I)
			if !ok {
				return Outcome{}, fmt.Errorf("unexpected input type %T", input)
			}
			result, err := handler(ctx, *typed, call)
			if err != nil {
				return Outcome{}, err
			}
			return result.outcome(), nil
		},
	}

	return t.Add(route)
}

func checkFormNames(t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" && f.Tag.Get("form") == "" {
			if err := checkFormNames(f.Type); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		jsonName, formName := tagName(f, "json"), tagName(f, "form")
		if jsonName != formName {
			return fmt.Errorf("field %s is named %q in json but %q in form, tag it form:%q",
				f.Name, jsonName, formName, jsonName)
		}
	}
	return nil
}

func tagName(f reflect.StructField, key string) string {
	name, _, _ := strings.Cut(f.Tag.Get(key), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// MustRegister is Register for start-up code where a broken table is fatal
func MustRegister[I, O, E any](t *Table, name string, opts Options, handler Handler[I, O, E]) {
	if err := Register(t, name, opts, handler); err != nil {
		panic(fmt.Sprintf("rpc: %v", err))
	}
}

// Message is the conventional error payload
type Message struct {
	Message string `json:"message" binding:"required"`
}

// Empty is the input of methods that take no parameters
type Empty struct{}
