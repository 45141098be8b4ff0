package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/agent/core"
)

// SessionClaims combines standard claims with the session binding
type SessionClaims struct {
	jwt.RegisteredClaims
	UserKey string `json:"userKey"` // wallet address of the user
	URI     string `json:"uri"`     // origin the challenge was signed for
}

func (c *SessionClaims) session() *core.Session {
	s := &core.Session{
		ID:      c.ID,
		Address: c.UserKey,
		URI:     c.URI,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
