package ports

import "context"

// TransactionStatus is the finality verdict for an on-chain payment
type TransactionStatus struct {
	IsValid bool `json:"isValid"`
}

// TransactionChecker reports whether a referenced transaction succeeded on chain
type TransactionChecker interface {
	CheckTransaction(ctx context.Context, reference string) (TransactionStatus, error)
}
