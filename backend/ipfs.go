package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Pinner stores file content on a content-addressed network
type Pinner interface {
	Pin(ctx context.Context, name string, r io.Reader) (cid string, err error)
}

// IPFSConfig configures the IPFS HTTP API client
type IPFSConfig struct {
	// APIURL is the node RPC endpoint, e.g. http://localhost:5001
	APIURL string
	// BearerToken is sent on every request when set, for hosted pinning gateways
	BearerToken string
	Timeout     time.Duration
}

// IPFSPinner pins files through the IPFS HTTP API
type IPFSPinner struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// NewIPFSPinner creates a pinner for the node at cfg.APIURL
func NewIPFSPinner(cfg IPFSConfig, logger *zap.Logger) *IPFSPinner {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "http://localhost:5001"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPFSPinner{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      cfg.BearerToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Pin adds and pins the content, returning its CID
func (p *IPFSPinner) Pin(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to copy data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/api/v0/add?pin=true", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create add request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("add request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("add failed with status %d: %s", resp.StatusCode, string(body))
	}

	// The node streams one JSON object per added entry, the last one is the root
	dec := json.NewDecoder(resp.Body)
	var last addResponse
	for {
		var chunk addResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("failed to decode add response: %w", err)
		}
		last = chunk
	}
	if last.Hash == "" {
		return "", errors.New("add response missing CID")
	}

	p.logger.Debug("file pinned", zap.String("name", name), zap.String("cid", last.Hash))
	return last.Hash, nil
}
