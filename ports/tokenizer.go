package ports

import (
	"time"

	"github.com/layer-3/agent/core"
)

// Tokenizer mints and verifies bearer session tokens
type Tokenizer interface {
	// Issue creates a token binding the identity to the origin it signed in to
	Issue(address, uri string, now time.Time) (string, *core.Session, error)
	// Validate returns the session carried by a token produced by Issue
	Validate(token string, now time.Time) (*core.Session, error)
}

// SignatureVerifier checks that address signed payload and returns the decoded document
type SignatureVerifier interface {
	Verify(address, signature, payload string) ([]byte, error)
	// Canonical returns the identity in the scheme's checksummed form
	Canonical(address string) (string, error)
}
