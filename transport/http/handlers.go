package http

import (
	"context"
	"errors"

	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/rpc"
	"github.com/layer-3/agent/service"
	"go.uber.org/zap"
)

// TokenResponse is returned by the auth endpoint
type TokenResponse struct {
	Token              string `json:"token" binding:"required"`
	AuthenticationType string `json:"authenticationType" binding:"required"`
}

// RegisterAuth adds the challenge exchange endpoint to the table at path
func RegisterAuth(table *rpc.Table, path string, authService *service.AuthService) error {
	return rpc.Register(table, path, rpc.Options{
		Summary:        "Exchange a signed challenge for a session token",
		OkDescription:  "Session token",
		ErrDescription: "The challenge was rejected",
	}, func(ctx context.Context, in core.SignedChallenge, call *rpc.Call) (rpc.Result[TokenResponse, rpc.Message], error) {
		token, err := authService.Authenticate(ctx, in, call.Header.Get("Origin"))
		if err != nil {
			if core.IsChallengeError(err) || errors.Is(err, service.ErrAfterAuthFailed) {
				call.Log().Info("authentication rejected",
					zap.String("address", in.Address),
					zap.Error(err))
				return rpc.Fail[TokenResponse](rpc.Message{Message: MessageInvalidRequest}), nil
			}
			return rpc.Result[TokenResponse, rpc.Message]{}, err
		}

		return rpc.Ok[TokenResponse, rpc.Message](TokenResponse{
			Token:              token,
			AuthenticationType: "Bearer",
		}), nil
	})
}
