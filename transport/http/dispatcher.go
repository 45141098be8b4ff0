package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/rpc"
	"go.uber.org/zap"
)

// Messages sent to clients. Details stay in the server log.
const (
	MessageMissingToken   = "Missing authentication token"
	MessageInvalidToken   = "Invalid authentication token"
	MessageInvalidRequest = "Invalid request"
	MessageNotFound       = "Not found"
	MessageInternalError  = "Internal server error"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validation errors name fields the way clients spell them
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(key), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// Dispatch serves every request that is not the docs endpoint
func (s *Server) Dispatch(c *gin.Context) {
	// Spellings like /docs/ reach here because gin matches the docs path exactly
	if s.docs != nil && c.Request.Method == http.MethodGet {
		if name, err := rpc.NormalizeName(c.Request.URL.Path); err == nil && name == s.docsPath {
			s.serveDocs(c)
			return
		}
	}

	route, err := s.table.Resolve(c.Request.Method, c.Request.URL.Path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": MessageNotFound})
		return
	}

	logger := s.logger.With(
		zap.String("route", route.Spec.Name),
		zap.String("request_id", c.GetString(requestIDKey)))

	call := &rpc.Call{
		Agent:        s.agent,
		Header:       c.Request.Header,
		Logger:       logger,
		Transactions: s.transactions,
	}

	if route.Spec.AuthRequired {
		user, err := bearerUser(c, s.headerName, s.auth)
		if err != nil {
			logger.Info("request unauthorized", zap.Error(err))
			message := MessageInvalidToken
			if errors.Is(err, core.ErrMissingToken) {
				message = MessageMissingToken
			}
			c.JSON(http.StatusUnauthorized, gin.H{"message": message})
			return
		}
		call.User = user
	}

	input := route.NewInput()
	if err := bindInput(c, route.Spec, input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": describeBindError(err)})
		return
	}

	outcome, err := route.Invoke(c.Request.Context(), input, call)
	if err != nil {
		logger.Error("handler failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": MessageInternalError})
		return
	}

	// A payload violating its own declared schema is a handler bug
	if err := binding.Validator.ValidateStruct(outcome.Payload); err != nil {
		logger.Error("handler returned an invalid payload",
			zap.Bool("failed", outcome.Failed),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": MessageInternalError})
		return
	}

	status := http.StatusOK
	if outcome.Failed {
		status = http.StatusBadRequest
	}
	c.JSON(status, outcome.Payload)
}

func bindInput(c *gin.Context, spec rpc.RouteSpec, input any) error {
	if spec.Verb == http.MethodGet {
		return c.ShouldBindQuery(input)
	}

	if spec.Encoding == rpc.EncodingMultipart {
		return c.ShouldBindWith(input, binding.FormMultipart)
	}

	err := c.ShouldBindJSON(input)
	if errors.Is(err, io.EOF) {
		// No body, the zero value still has to satisfy the schema
		return binding.Validator.ValidateStruct(input)
	}
	return err
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, describeFieldError(fe))
		}
		return strings.Join(parts, "; ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return "Malformed JSON body"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return "Expected a multipart/form-data body"
	}
	return MessageInvalidRequest
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
