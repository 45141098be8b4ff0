package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/ports"
)

const (
	// DefaultChallengeWindow is how old a signed challenge may be
	DefaultChallengeWindow = 10 * time.Minute
	// DefaultClockSkew is how far in the future a challenge may claim to be created
	DefaultClockSkew = time.Minute
)

// challengeWire is the JSON form of a challenge document. Pointers tell an
// absent field apart from an empty one.
type challengeWire struct {
	Statement *string `json:"statement"`
	URI       *string `json:"uri"`
	Nonce     *string `json:"nonce"`
	Created   *string `json:"created"`
	CreatedAt *string `json:"createdAt"`
}

// ChallengeValidator turns a signed challenge into a verified identity
type ChallengeValidator struct {
	verifier ports.SignatureVerifier
	guard    ports.ReplayGuard
	window   time.Duration
	skew     time.Duration
}

// NewChallengeValidator creates a validator using the default freshness window
func NewChallengeValidator(verifier ports.SignatureVerifier, guard ports.ReplayGuard) *ChallengeValidator {
	return &ChallengeValidator{
		verifier: verifier,
		guard:    guard,
		window:   DefaultChallengeWindow,
		skew:     DefaultClockSkew,
	}
}

// Validate checks the signature, the document, its origin and freshness, and
// finally claims the nonce. It returns the checksummed signer address.
func (v *ChallengeValidator) Validate(ctx context.Context, signed core.SignedChallenge, expectedOrigin string, now time.Time) (string, error) {
	raw, err := v.verifier.Verify(signed.Address, signed.Signature, signed.Payload)
	if err != nil {
		return "", err
	}

	doc, err := parseChallenge(raw)
	if err != nil {
		return "", err
	}

	if doc.URI != expectedOrigin {
		return "", fmt.Errorf("challenge signed for %q: %w", doc.URI, core.ErrOriginMismatch)
	}

	age := now.Sub(doc.CreatedAt)
	if age > v.window || -age > v.skew {
		return "", fmt.Errorf("challenge created %s: %w", doc.CreatedAt.Format(time.RFC3339), core.ErrStaleChallenge)
	}

	if err := v.guard.Claim(ctx, doc.Nonce, now); err != nil {
		return "", err
	}

	return v.verifier.Canonical(signed.Address)
}

func parseChallenge(raw []byte) (*core.ChallengeDocument, error) {
	var wire challengeWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", core.ErrInvalidPayload)
	}

	created := wire.Created
	if created == nil {
		created = wire.CreatedAt
	}
	if wire.Statement == nil || wire.URI == nil || wire.Nonce == nil || created == nil {
		return nil, fmt.Errorf("challenge is missing fields: %w", core.ErrInvalidPayload)
	}
	if *wire.Nonce == "" {
		return nil, fmt.Errorf("challenge nonce is empty: %w", core.ErrInvalidPayload)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, *created)
	if err != nil {
		return nil, fmt.Errorf("challenge creation time: %w", core.ErrInvalidPayload)
	}

	return &core.ChallengeDocument{
		Statement: *wire.Statement,
		URI:       *wire.URI,
		Nonce:     *wire.Nonce,
		CreatedAt: createdAt,
	}, nil
}
