// agent-login signs in to an agent with a wallet key and prints the session token.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/agent/adapters/signature"
	"github.com/layer-3/agent/core"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var server, origin, authPath, keyHex string

	flagSet := pflag.NewFlagSet("agent-login", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", "http://localhost:8080", "agent base URL")
	flagSet.StringVar(&origin, "origin", "", "origin to sign in to (default: the server URL)")
	flagSet.StringVar(&authPath, "auth-path", "/auth", "auth endpoint path")
	flagSet.StringVar(&keyHex, "key", os.Getenv("AGENT_LOGIN_KEY"), "hex private key (default: a fresh key)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	server = strings.TrimRight(server, "/")
	if origin == "" {
		origin = server
	}

	key, err := crypto.GenerateKey()
	if keyHex != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	}
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	doc, err := json.Marshal(map[string]string{
		"statement": "Sign in with Ethereum to authenticate your session at " + origin,
		"uri":       origin,
		"nonce":     hex.EncodeToString(nonce),
		"created":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	sig, err := signature.Sign(key, doc)
	if err != nil {
		return err
	}
	body, err := json.Marshal(core.SignedChallenge{
		Payload:   hexPrefix(doc),
		Signature: sig,
		Address:   address,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, server+authPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", origin)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var token struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &token); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}

	fmt.Fprintf(os.Stderr, "signed in as %s\n", address)
	fmt.Println(token.Token)
	return nil
}

func hexPrefix(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
