package agent

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/agent/adapters/signature"
	"github.com/layer-3/agent/config"
	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoOutput struct {
	Address string `json:"address"`
	Agent   string `json:"agent"`
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TokenSecret = "secret"
	cfg.Origin = "http://x"
	cfg.AgentAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	return cfg
}

func authenticate(t *testing.T, h http.Handler, now time.Time) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	doc, err := json.Marshal(map[string]string{
		"statement": "Sign in",
		"uri":       "http://x",
		"nonce":     "ab12",
		"created":   now.UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	sig, err := signature.Sign(key, doc)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	body, err := json.Marshal(core.SignedChallenge{Payload: hex.EncodeToString(doc), Signature: sig, Address: address})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token, address
}

func TestAgent_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()

	var signedIn []string
	a, err := New(testConfig(),
		WithClock(func() time.Time { return now }),
		WithOnAfterAuth(func(ctx context.Context, user core.User) error {
			signedIn = append(signedIn, user.WalletAddress)
			return nil
		}))
	require.NoError(t, err)

	require.NoError(t, Method(a, "whoami", rpc.Options{Method: http.MethodGet, AuthRequired: true},
		func(ctx context.Context, _ rpc.Empty, call *rpc.Call) (rpc.Result[echoOutput, rpc.Message], error) {
			return rpc.Ok[echoOutput, rpc.Message](echoOutput{Address: call.User.WalletAddress, Agent: call.Agent.Address}), nil
		}))

	h, err := a.Handler()
	require.NoError(t, err)

	token, address := authenticate(t, h, now)
	assert.Equal(t, []string{address}, signedIn)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out echoOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, address, out.Address)
	assert.Equal(t, testConfig().AgentAddress, out.Agent)
}

func TestAgent_RegistrationErrors(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)

	handler := func(ctx context.Context, _ rpc.Empty, call *rpc.Call) (rpc.Result[rpc.Empty, rpc.Message], error) {
		return rpc.Ok[rpc.Empty, rpc.Message](rpc.Empty{}), nil
	}

	// The auth path is taken
	assert.ErrorIs(t, Method(a, "auth/", rpc.Options{}, handler), rpc.ErrDuplicateRoute)

	require.NoError(t, Method(a, "a", rpc.Options{}, handler))
	assert.ErrorIs(t, Method(a, "/a", rpc.Options{}, handler), rpc.ErrDuplicateRoute)

	_, err = a.Handler()
	require.NoError(t, err)
	assert.ErrorIs(t, Method(a, "b", rpc.Options{}, handler), rpc.ErrTableFrozen)
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.TokenSecret = ""
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrMissingSecret)
}
