package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/agent"
	"github.com/layer-3/agent/adapters/signature"
	"github.com/layer-3/agent/config"
	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakePinner struct {
	pinned map[string][]byte
	err    error
}

func (p *fakePinner) Pin(ctx context.Context, name string, r io.Reader) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	p.pinned[name] = data
	return "bafy" + name, nil
}

type fakeChain struct {
	valid map[string]bool
}

func (c *fakeChain) CheckTransaction(ctx context.Context, reference string) (ports.TransactionStatus, error) {
	return ports.TransactionStatus{IsValid: c.valid[reference]}, nil
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
	address string
}

func newClient(t *testing.T, pinner Pinner, chain ports.TransactionChecker) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.TokenSecret = "secret"
	cfg.Origin = "http://x"
	cfg.AgentAddress = paymentAddress

	svc := NewService(NewMemoryStore(), pinner)
	a, err := agent.New(cfg, agent.WithOnAfterAuth(svc.OnAfterAuth), agent.WithTransactionChecker(chain))
	require.NoError(t, err)
	require.NoError(t, svc.Register(a))

	h, err := a.Handler()
	require.NoError(t, err)
	c := &client{t: t, handler: h}
	c.signIn()
	return c
}

func (c *client) signIn() {
	key, err := crypto.GenerateKey()
	require.NoError(c.t, err)
	doc, err := json.Marshal(map[string]string{
		"statement": "Sign in",
		"uri":       "http://x",
		"nonce":     "ab12",
		"created":   time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(c.t, err)
	sig, err := signature.Sign(key, doc)
	require.NoError(c.t, err)

	c.address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	var out struct {
		Token string `json:"token"`
	}
	status := c.call(http.MethodPost, "/auth", core.SignedChallenge{
		Payload:   hex.EncodeToString(doc),
		Signature: sig,
		Address:   c.address,
	}, &out)
	require.Equal(c.t, http.StatusOK, status)
	c.token = out.Token
}

func (c *client) call(method, path string, in, out any) int {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		require.NoError(c.t, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *client) send(req *http.Request, out any) int {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (c *client) upload(name string, content []byte, out any) int {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = part.Write(content)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/pin-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, out)
}

type message struct {
	Message string `json:"message"`
}

func TestBackend_QuotaPaymentAndPinning(t *testing.T) {
	pinner := &fakePinner{pinned: map[string][]byte{}}
	chain := &fakeChain{valid: map[string]bool{"0xpaid": true}}
	c := newClient(t, pinner, chain)

	var session SessionUser
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/check-session", nil, &session))
	assert.Equal(t, c.address, session.User.WalletAddress)
	assert.Equal(t, 0, session.User.FilesAvailable)

	var msg message
	require.Equal(t, http.StatusBadRequest, c.upload("a.txt", []byte("a"), &msg))
	assert.Equal(t, "No files available", msg.Message)

	var quote QuotaIncreaseQuote
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/request-quota-increase", QuotaIncreaseRequest{AdditionalFiles: 3}, &quote))
	assert.Equal(t, 6.0, quote.Price)
	assert.Equal(t, paymentAddress, quote.PaymentAddress)
	require.NotEmpty(t, quote.QuoteID)

	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/confirm-payment", PaymentConfirmation{QuoteID: quote.QuoteID, BlockHash: "0xunpaid"}, &msg))
	assert.Equal(t, "Payment failed", msg.Message)

	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/confirm-payment", PaymentConfirmation{QuoteID: "missing", BlockHash: "0xpaid"}, &msg))
	assert.Equal(t, "Quote not found", msg.Message)

	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/confirm-payment", PaymentConfirmation{QuoteID: quote.QuoteID, BlockHash: "0xpaid"}, &msg))
	assert.Equal(t, "Payment confirmed", msg.Message)

	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/confirm-payment", PaymentConfirmation{QuoteID: quote.QuoteID, BlockHash: "0xpaid"}, &msg))
	assert.Equal(t, "Quote already paid", msg.Message)

	var pinned PinnedFile
	require.Equal(t, http.StatusOK, c.upload("hello.txt", []byte("hello"), &pinned))
	assert.Equal(t, "hello.txt", pinned.File.Name)
	assert.Equal(t, "bafyhello.txt", pinned.File.CID)
	assert.Equal(t, int64(5), pinned.File.Size)
	assert.Equal(t, []byte("hello"), pinner.pinned["hello.txt"])

	var quota QuotaResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/get-quota", nil, &quota))
	assert.Equal(t, QuotaInfo{FilesTotal: 1, FilesTotalAvailable: 2}, quota.Quota)

	var files FileList
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/get-files", nil, &files))
	require.Len(t, files.Files, 1)
	assert.Equal(t, pinned.File.ID, files.Files[0].ID)
}

func TestBackend_PinFailureKeepsQuota(t *testing.T) {
	pinner := &fakePinner{err: errors.New("gateway timeout")}
	chain := &fakeChain{valid: map[string]bool{"0xpaid": true}}
	c := newClient(t, pinner, chain)

	var quote QuotaIncreaseQuote
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/request-quota-increase", QuotaIncreaseRequest{AdditionalFiles: 1}, &quote))
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/confirm-payment", PaymentConfirmation{QuoteID: quote.QuoteID, BlockHash: "0xpaid"}, nil))

	var msg message
	require.Equal(t, http.StatusBadRequest, c.upload("a.txt", []byte("a"), &msg))
	assert.Equal(t, "Failed to pin file", msg.Message)

	var quota QuotaResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/get-quota", nil, &quota))
	assert.Equal(t, QuotaInfo{FilesTotal: 0, FilesTotalAvailable: 1}, quota.Quota)
}

func TestBackend_QuotaIncreaseValidation(t *testing.T) {
	c := newClient(t, &fakePinner{pinned: map[string][]byte{}}, &fakeChain{})

	var msg message
	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/request-quota-increase", QuotaIncreaseRequest{AdditionalFiles: 0}, &msg))
	assert.Equal(t, "additionalFiles is required", msg.Message)

	require.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/request-quota-increase", QuotaIncreaseRequest{AdditionalFiles: -2}, &msg))
	assert.Equal(t, "additionalFiles must be at least 1", msg.Message)
}

func TestBackend_RequiresSession(t *testing.T) {
	c := newClient(t, &fakePinner{pinned: map[string][]byte{}}, &fakeChain{})
	c.token = ""

	for _, path := range []string{"/check-session", "/get-files", "/get-quota"} {
		var msg message
		assert.Equal(t, http.StatusUnauthorized, c.call(http.MethodGet, path, nil, &msg), path)
		assert.Equal(t, "Missing authentication token", msg.Message)
	}
}

func TestIPFSPinner_Pin(t *testing.T) {
	var gotName, gotContent, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("pin"))
		gotAuth = r.Header.Get("Authorization")

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotContent = header.Filename, string(data)

		w.Write([]byte(`{"Name":"hello.txt","Hash":"QmHash","Size":"13"}` + "\n"))
	}))
	defer srv.Close()

	pinner := NewIPFSPinner(IPFSConfig{APIURL: srv.URL + "/", BearerToken: "jwt"}, nil)
	cid, err := pinner.Pin(context.Background(), "hello.txt", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "QmHash", cid)
	assert.Equal(t, "hello.txt", gotName)
	assert.Equal(t, "hello", gotContent)
	assert.Equal(t, "Bearer jwt", gotAuth)
}

func TestIPFSPinner_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pinning disabled", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewIPFSPinner(IPFSConfig{APIURL: srv.URL}, nil).Pin(context.Background(), "x", bytes.NewReader(nil))
	assert.ErrorContains(t, err, "403")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	_, err = NewIPFSPinner(IPFSConfig{APIURL: empty.URL}, nil).Pin(context.Background(), "x", bytes.NewReader(nil))
	assert.ErrorContains(t, err, "missing CID")
}

func TestMemoryStore_EnsureUserIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.EnsureUser(ctx, paymentAddress)
	require.NoError(t, err)
	second, err := s.EnsureUser(ctx, paymentAddress)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = s.User(ctx, "0xother")
	assert.ErrorIs(t, err, ErrNotFound)
}
