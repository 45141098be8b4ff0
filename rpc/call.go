package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/ports"
	"go.uber.org/zap"
)

// ErrNoTransactionChecker is returned by CheckTransaction when the agent has no chain access
var ErrNoTransactionChecker = errors.New("transaction checker is not configured")

// AgentInfo describes the agent serving the call
type AgentInfo struct {
	Address string // wallet address payments are sent to
}

// Call is everything a handler receives besides its input
type Call struct {
	User   *core.User  // set only on routes that require authentication
	Agent  AgentInfo
	Header http.Header // request headers
	Logger *zap.Logger

	Transactions ports.TransactionChecker
}

// CheckTransaction asks the chain whether a payment transaction succeeded
func (c *Call) CheckTransaction(ctx context.Context, reference string) (ports.TransactionStatus, error) {
	if c.Transactions == nil {
		return ports.TransactionStatus{}, ErrNoTransactionChecker
	}
	return c.Transactions.CheckTransaction(ctx, reference)
}

// Log returns the call logger, never nil
func (c *Call) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
