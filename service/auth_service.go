package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/ports"
	"go.uber.org/zap"
)

// ErrAfterAuthFailed wraps errors returned by the after-auth hook
var ErrAfterAuthFailed = errors.New("after auth hook failed")

// AfterAuthFunc runs once a session has been minted for user
type AfterAuthFunc func(ctx context.Context, user core.User) error

// AuthConfig holds the optional parts of an AuthService
type AuthConfig struct {
	// Origin challenges must be signed for. When empty the request Origin
	// header is used.
	Origin      string
	OnAfterAuth AfterAuthFunc
	Now         func() time.Time
	Logger      *zap.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	validator *ChallengeValidator
	eventPub  ports.EventPublisher

	origin      string
	onAfterAuth AfterAuthFunc
	now         func() time.Time
	logger      *zap.Logger
}

// NewAuthService creates a new authentication service. eventPub may be nil.
func NewAuthService(
	tokenizer ports.Tokenizer,
	validator *ChallengeValidator,
	eventPub ports.EventPublisher,
	cfg AuthConfig,
) *AuthService {
	s := &AuthService{
		tokenizer:   tokenizer,
		validator:   validator,
		eventPub:    eventPub,
		origin:      cfg.Origin,
		onAfterAuth: cfg.OnAfterAuth,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Authenticate exchanges a signed challenge for a session token
func (s *AuthService) Authenticate(ctx context.Context, signed core.SignedChallenge, requestOrigin string) (string, error) {
	origin := s.origin
	if origin == "" {
		origin = requestOrigin
	}
	if origin == "" {
		return "", fmt.Errorf("no origin to verify against: %w", core.ErrOriginMismatch)
	}

	now := s.now()
	address, err := s.validator.Validate(ctx, signed, origin, now)
	if err != nil {
		return "", err
	}

	token, session, err := s.tokenizer.Issue(address, origin, now)
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}

	if s.onAfterAuth != nil {
		if err := s.onAfterAuth(ctx, core.User{WalletAddress: address}); err != nil {
			return "", fmt.Errorf("%w: %w", ErrAfterAuthFailed, err)
		}
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishSessionIssued(ctx, session); err != nil {
			// The session is valid without the event
			s.logger.Warn("failed to publish session event",
				zap.String("address", address),
				zap.Error(err))
		}
	}

	return token, nil
}

// Authorize validates a bearer token and returns the user it belongs to
func (s *AuthService) Authorize(token string) (*core.User, error) {
	if token == "" {
		return nil, core.ErrMissingToken
	}
	session, err := s.tokenizer.Validate(token, s.now())
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}
	return &core.User{WalletAddress: session.Address}, nil
}
