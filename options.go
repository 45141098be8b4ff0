package agent

import (
	"time"

	"github.com/layer-3/agent/ports"
	"github.com/layer-3/agent/service"
	"go.uber.org/zap"
)

// Option customizes an Agent
type Option func(*Agent)

// WithLogger sets the logger used by the agent and its handlers
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithReplayGuard replaces the in-memory nonce guard, e.g. with one shared
// by every instance behind a load balancer
func WithReplayGuard(guard ports.ReplayGuard) Option {
	return func(a *Agent) {
		a.guard = guard
	}
}

// WithTransactionChecker gives handlers access to the chain
func WithTransactionChecker(checker ports.TransactionChecker) Option {
	return func(a *Agent) {
		a.transactions = checker
	}
}

// WithEventPublisher publishes an event for every session issued
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(a *Agent) {
		a.publisher = publisher
	}
}

// WithOnAfterAuth runs fn after each successful authentication
func WithOnAfterAuth(fn service.AfterAuthFunc) Option {
	return func(a *Agent) {
		a.onAfterAuth = fn
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}
