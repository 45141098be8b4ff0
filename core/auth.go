package core

import "time"

// SignedChallenge is the body a wallet posts to the auth endpoint
type SignedChallenge struct {
	Payload   string `json:"payload" binding:"required"`   // hex encoded challenge document
	Signature string `json:"signature" binding:"required"` // hex encoded 65 byte signature
	Address   string `json:"address" binding:"required"`   // claimed signer
}

// ChallengeDocument is the statement a wallet signs to prove key ownership
type ChallengeDocument struct {
	Statement string    // Human readable sign-in statement
	URI       string    // Origin the wallet was asked to sign in to
	Nonce     string    // Single-use random value
	CreatedAt time.Time // When the wallet created the challenge
}

// Session is the identity carried by a validated bearer token
type Session struct {
	ID        string    // Token identifier (jti)
	Address   string    // Checksummed wallet address of the user
	URI       string    // Origin the session was issued for
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session stops being accepted
}

// User is the authenticated caller of a method
type User struct {
	WalletAddress string `json:"walletAddress"`
}
