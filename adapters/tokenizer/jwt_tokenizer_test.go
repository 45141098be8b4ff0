package tokenizer

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/agent/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newTestTokenizer(t *testing.T, secret string) *JWTTokenizer {
	t.Helper()
	tk, err := NewJWTTokenizer(secret)
	require.NoError(t, err)
	return tk
}

func TestJWTTokenizer_RoundTrip(t *testing.T) {
	tk := newTestTokenizer(t, "secret")
	issuedAt := time.Now().Truncate(time.Second)

	token, issued, err := tk.Issue(testAddress, "http://x", issuedAt)
	require.NoError(t, err)
	assert.Equal(t, testAddress, issued.Address)
	assert.True(t, issued.ExpiresAt.Equal(issuedAt.Add(DefaultSessionTTL)))

	for _, offset := range []time.Duration{0, time.Minute, 12 * time.Hour, 24*time.Hour - time.Second} {
		session, err := tk.Validate(token, issuedAt.Add(offset))
		require.NoError(t, err, offset)
		assert.Equal(t, testAddress, session.Address)
		assert.Equal(t, "http://x", session.URI)
		assert.True(t, session.IssuedAt.Equal(issuedAt))
		assert.True(t, session.ExpiresAt.Equal(issuedAt.Add(24*time.Hour)))
		assert.Equal(t, issued.ID, session.ID)
	}
}

func TestJWTTokenizer_Expired(t *testing.T) {
	tk := newTestTokenizer(t, "secret")
	issuedAt := time.Now().Truncate(time.Second)

	token, _, err := tk.Issue(testAddress, "http://x", issuedAt)
	require.NoError(t, err)

	for _, offset := range []time.Duration{24*time.Hour + time.Second, 48 * time.Hour} {
		_, err = tk.Validate(token, issuedAt.Add(offset))
		assert.ErrorIs(t, err, core.ErrTokenExpired, offset)
	}
}

func TestJWTTokenizer_SubSecondIssuance(t *testing.T) {
	tk := newTestTokenizer(t, "secret")
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 900_000_000, time.UTC)

	token, issued, err := tk.Issue(testAddress, "http://x", issuedAt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC), issued.ExpiresAt.UTC())
	assert.False(t, issued.ExpiresAt.Before(issuedAt.Add(DefaultSessionTTL)))

	for _, now := range []time.Time{
		issuedAt.Add(24*time.Hour - 500*time.Millisecond),
		issuedAt.Add(24 * time.Hour),
		issued.ExpiresAt,
	} {
		_, err := tk.Validate(token, now)
		assert.NoError(t, err, now)
	}

	for _, now := range []time.Time{
		issued.ExpiresAt.Add(time.Nanosecond),
		issued.ExpiresAt.Add(500 * time.Millisecond),
		issued.ExpiresAt.Add(time.Second),
	} {
		_, err := tk.Validate(token, now)
		assert.ErrorIs(t, err, core.ErrTokenExpired, now)
	}
}

func TestJWTTokenizer_WrongSecret(t *testing.T) {
	now := time.Now()
	token, _, err := newTestTokenizer(t, "secret").Issue(testAddress, "http://x", now)
	require.NoError(t, err)

	_, err = newTestTokenizer(t, "other-secret").Validate(token, now)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	// A forged token stays a signature failure even once it is expired
	_, err = newTestTokenizer(t, "other-secret").Validate(token, now.Add(72*time.Hour))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestJWTTokenizer_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		UserKey: testAddress,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestTokenizer(t, "secret").Validate(token, now)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestJWTTokenizer_Malformed(t *testing.T) {
	tk := newTestTokenizer(t, "secret")

	for _, token := range []string{"", "abc", "a.b.c", strings.Repeat("x", 40)} {
		_, err := tk.Validate(token, time.Now())
		assert.ErrorIs(t, err, core.ErrMalformedToken, token)
	}
}

func TestJWTTokenizer_MissingUserKey(t *testing.T) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestTokenizer(t, "secret").Validate(token, now)
	assert.ErrorIs(t, err, core.ErrMalformedToken)
}

func TestNewJWTTokenizer_RequiresSecret(t *testing.T) {
	_, err := NewJWTTokenizer("")
	assert.Error(t, err)
}
