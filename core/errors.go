package core

import "errors"

// Challenge validation failures. They are reported to clients as one generic
// message so the response never tells an attacker which check failed.
var (
	ErrMalformedPayload      = errors.New("malformed payload")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrOriginMismatch        = errors.New("origin mismatch")
	ErrStaleChallenge        = errors.New("challenge is too old")
	ErrNonceReused           = errors.New("nonce has been used before")
	ErrInvalidIdentityFormat = errors.New("invalid identity format")
)

// Session token failures
var (
	ErrMissingToken   = errors.New("missing authentication token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrMalformedToken = errors.New("malformed token")
)

// IsChallengeError reports whether err is one of the challenge validation failures.
func IsChallengeError(err error) bool {
	for _, target := range []error{
		ErrMalformedPayload,
		ErrInvalidSignature,
		ErrInvalidPayload,
		ErrOriginMismatch,
		ErrStaleChallenge,
		ErrNonceReused,
		ErrInvalidIdentityFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
