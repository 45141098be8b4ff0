package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/service"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "requestID"
)

// RequestLogger writes one log line per request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", id))
	}
}

// Recovery turns handler panics into 500 responses
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": MessageInternalError})
	})
}

// bearerUser validates the bearer token in the named header
func bearerUser(c *gin.Context, headerName string, authService *service.AuthService) (*core.User, error) {
	auth := strings.TrimSpace(c.GetHeader(headerName))
	if auth == "" {
		return nil, core.ErrMissingToken
	}

	scheme, token, _ := strings.Cut(auth, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return nil, core.ErrInvalidToken
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, core.ErrMissingToken
	}
	return authService.Authorize(token)
}
