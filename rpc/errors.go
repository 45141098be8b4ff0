package rpc

import "errors"

var (
	// ErrDuplicateRoute is returned when a route name is registered twice
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrInvalidRoute is returned when a route cannot be wired as declared
	ErrInvalidRoute = errors.New("invalid route")

	// ErrRouteNotFound is returned when no route matches a request
	ErrRouteNotFound = errors.New("route not found")

	// ErrTableFrozen is returned when registering after the server started
	ErrTableFrozen = errors.New("route table is frozen")
)
