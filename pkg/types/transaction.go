package types

import "time"

// TxKind defines which flow produced a transaction
type TxKind string

const (
	TxDeposit  TxKind = "deposit"
	TxWithdraw TxKind = "withdraw"
	TxSwap     TxKind = "swap"
)

// TxStatus defines the lifecycle state of a broadcast transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"   // Broadcast, awaiting confirmation
	TxConfirmed TxStatus = "confirmed" // Confirmed on chain
	TxFailed    TxStatus = "failed"    // Rejected or reverted
)

// TransactionRecord is created immediately after broadcast with
// status=pending. The calculation pipelines never mutate it; status
// updates come from the external confirmation watcher.
type TransactionRecord struct {
	ID          string    `json:"id"`
	Hash        string    `json:"hash"`
	Kind        TxKind    `json:"kind"`
	Amount      string    `json:"amount"`
	TokenSymbol string    `json:"token_symbol"`
	Network     string    `json:"network"`
	FromToken   string    `json:"from_token,omitempty"`
	ToToken     string    `json:"to_token,omitempty"`
	Status      TxStatus  `json:"status"`
	Created     time.Time `json:"created"`
}

// Terminal reports whether the record has reached a final state.
func (r *TransactionRecord) Terminal() bool {
	return r.Status == TxConfirmed || r.Status == TxFailed
}
