package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/agent/ports"
)

// ErrNotConfigured is returned when no chain RPC endpoint was configured
var ErrNotConfigured = errors.New("chain rpc is not configured")

// ReceiptReader is the part of ethclient.Client the checker needs
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthChecker reports whether a transaction was mined successfully
type EthChecker struct {
	client ReceiptReader
}

// NewEthChecker creates a checker over an existing receipt reader
func NewEthChecker(client ReceiptReader) *EthChecker {
	return &EthChecker{client: client}
}

// DialEthChecker connects to a JSON-RPC endpoint
func DialEthChecker(ctx context.Context, rpcURL string) (*EthChecker, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return NewEthChecker(client), nil
}

// CheckTransaction looks up the receipt for a transaction hash.
// A pending or unknown transaction is reported as not valid.
func (c *EthChecker) CheckTransaction(ctx context.Context, reference string) (ports.TransactionStatus, error) {
	if c == nil || c.client == nil {
		return ports.TransactionStatus{}, ErrNotConfigured
	}
	hash := common.HexToHash(reference)
	if len(common.FromHex(reference)) != common.HashLength {
		return ports.TransactionStatus{IsValid: false}, nil
	}

	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return ports.TransactionStatus{IsValid: false}, nil
	}
	if err != nil {
		return ports.TransactionStatus{}, fmt.Errorf("failed to fetch receipt: %w", err)
	}

	return ports.TransactionStatus{IsValid: receipt.Status == types.ReceiptStatusSuccessful}, nil
}
