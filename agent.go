// Package agent serves typed RPC methods behind wallet sign-in.
//
// Methods are registered with Method, then Run (or Handler) freezes the
// method table and starts serving. Wallets sign a challenge document and
// post it to the auth path; the returned bearer token opens methods that
// require authentication for 24 hours.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/agent/adapters/signature"
	"github.com/layer-3/agent/adapters/store"
	"github.com/layer-3/agent/adapters/tokenizer"
	"github.com/layer-3/agent/config"
	"github.com/layer-3/agent/ports"
	"github.com/layer-3/agent/rpc"
	"github.com/layer-3/agent/service"
	transport "github.com/layer-3/agent/transport/http"
	"go.uber.org/zap"
)

// Agent holds the method table and the authentication stack
type Agent struct {
	cfg    config.Config
	table  *rpc.Table
	auth   *service.AuthService
	server *transport.Server

	logger       *zap.Logger
	guard        ports.ReplayGuard
	transactions ports.TransactionChecker
	publisher    ports.EventPublisher
	onAfterAuth  service.AfterAuthFunc
	now          func() time.Time
}

// New creates an agent with the auth endpoint registered
func New(cfg config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, table: rpc.NewTable()}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.guard == nil {
		a.guard = store.NewMemoryStore(config.NonceWindow+service.DefaultClockSkew, config.NonceGCInterval)
	}
	if a.now == nil {
		a.now = time.Now
	}

	tk, err := tokenizer.NewJWTTokenizer(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}
	validator := service.NewChallengeValidator(signature.NewEthVerifier(), a.guard)

	a.auth = service.NewAuthService(tk, validator, a.publisher, service.AuthConfig{
		Origin:      cfg.Origin,
		OnAfterAuth: a.onAfterAuth,
		Now:         a.now,
		Logger:      a.logger.Named("auth"),
	})

	if err := transport.RegisterAuth(a.table, cfg.AuthPath, a.auth); err != nil {
		return nil, fmt.Errorf("failed to register auth endpoint: %w", err)
	}
	return a, nil
}

// Method registers a typed method on the agent
func Method[I, O, E any](a *Agent, name string, opts rpc.Options, handler rpc.Handler[I, O, E]) error {
	return rpc.Register(a.table, name, opts, handler)
}

// Handler freezes the method table and returns the HTTP handler serving it
func (a *Agent) Handler() (http.Handler, error) {
	if a.server == nil {
		server, err := transport.NewServer(a.table, a.auth, transport.ServerConfig{
			HeaderName:  a.cfg.HeaderName,
			DocsEnabled: a.cfg.DocsEnabled,
			DocsPath:    a.cfg.DocsPath,
			Docs: transport.DocsInfo{
				Title:   a.cfg.Title,
				Version: a.cfg.Version,
			},
			CORSOrigins:  a.cfg.CORSOrigins,
			Agent:        rpc.AgentInfo{Address: a.cfg.AgentAddress},
			Transactions: a.transactions,
			Logger:       a.logger,
		})
		if err != nil {
			return nil, err
		}
		a.server = server
	}
	return a.server.Handler(), nil
}

// Run serves on the configured listen address until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	if _, err := a.Handler(); err != nil {
		return err
	}
	return a.server.Run(ctx, a.cfg.Listen)
}
