package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/agent/core"
)

const AudienceSession = "agent:session"

// DefaultSessionTTL is how long a session token is accepted after issuance
const DefaultSessionTTL = 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs.
// Rotating the secret invalidates every outstanding session.
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret string) (*JWTTokenizer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &JWTTokenizer{secret: []byte(secret), ttl: DefaultSessionTTL}, nil
}

// Issue converts a verified identity into a signed session token
func (j *JWTTokenizer) Issue(address, uri string, now time.Time) (string, *core.Session, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiryAt(now, j.ttl)),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		UserKey: address,
		URI:     uri,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, claims.session(), nil
}

// Validate parses a session token and returns the session it carries
func (j *JWTTokenizer) Validate(tokenStr string, now time.Time) (*core.Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
		// exp is whole seconds and the library rejects now == exp, the exact check runs below
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("failed to verify session token: %w", core.ErrInvalidSignature)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, core.ErrTokenExpired
		default:
			return nil, fmt.Errorf("failed to parse session token: %w", core.ErrMalformedToken)
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, core.ErrMalformedToken
	}
	if claims.UserKey == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("missing session claims: %w", core.ErrMalformedToken)
	}
	if now.After(claims.ExpiresAt.Time) {
		return nil, core.ErrTokenExpired
	}

	return claims.session(), nil
}

// expiryAt rounds up to the next whole second so exp never falls before now+ttl
func expiryAt(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); !whole.Equal(exp) {
		return whole.Add(time.Second)
	}
	return exp
}
