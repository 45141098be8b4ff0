package rpc

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"reflect"
	"strings"
)

// Encoding is how a route's input travels in the request body
type Encoding string

const (
	EncodingJSON      Encoding = "json"
	EncodingMultipart Encoding = "multipart"
)

// RouteSpec describes a route's contract. It never changes after registration.
type RouteSpec struct {
	Name         string
	Verb         string
	AuthRequired bool
	Encoding     Encoding

	Input     reflect.Type
	OutputOk  reflect.Type
	OutputErr reflect.Type

	Summary        string
	OkDescription  string
	ErrDescription string
}

// Route pairs a spec with the type-erased functions that serve it
type Route struct {
	Spec RouteSpec

	// NewInput returns a pointer to a fresh zero input value to decode into
	NewInput func() any

	// Invoke runs the handler on a value produced by NewInput
	Invoke func(ctx context.Context, input any, call *Call) (Outcome, error)
}

// Table maps canonical method names to routes.
// It is filled during start-up and read-only once frozen.
type Table struct {
	routes map[string]*Route
	order  []*Route
	frozen bool
}

// NewTable creates an empty route table
func NewTable() *Table {
	return &Table{routes: make(map[string]*Route)}
}

// Add registers a route under its canonical name
func (t *Table) Add(route *Route) error {
	if t.frozen {
		return ErrTableFrozen
	}
	if route == nil || route.NewInput == nil || route.Invoke == nil {
		return fmt.Errorf("%w: route has no handler", ErrInvalidRoute)
	}

	name, err := NormalizeName(route.Spec.Name)
	if err != nil {
		return err
	}
	if _, exists := t.routes[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, name)
	}

	route.Spec.Name = name
	t.routes[name] = route
	t.order = append(t.order, route)
	return nil
}

// Resolve finds the route serving verb and path
func (t *Table) Resolve(verb, p string) (*Route, error) {
	name, err := NormalizeName(p)
	if err != nil {
		return nil, ErrRouteNotFound
	}
	route, ok := t.routes[name]
	if !ok || route.Spec.Verb != strings.ToUpper(verb) {
		return nil, ErrRouteNotFound
	}
	return route, nil
}

// Has reports whether a name is taken
func (t *Table) Has(name string) bool {
	name, err := NormalizeName(name)
	if err != nil {
		return false
	}
	_, ok := t.routes[name]
	return ok
}

// Routes returns the routes in registration order
func (t *Table) Routes() []*Route {
	out := make([]*Route, len(t.order))
	copy(out, t.order)
	return out
}

// Freeze ends registration
func (t *Table) Freeze() {
	t.frozen = true
}

// NormalizeName canonicalizes a method name into a path: a leading slash is
// added, the path is cleaned and any trailing slash dropped.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidRoute)
	}
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: name %q has no path segment", ErrInvalidRoute, name)
	}
	return cleaned, nil
}

func normalizeVerb(method string) (string, error) {
	switch strings.ToUpper(method) {
	case "", http.MethodPost:
		return http.MethodPost, nil
	case http.MethodGet:
		return http.MethodGet, nil
	default:
		return "", fmt.Errorf("%w: unsupported method %q", ErrInvalidRoute, method)
	}
}
