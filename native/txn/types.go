package txn

import (
	"cardroom/core/types"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
)

// OpKind tags the monetary operation a step performs. The coordinator
// does not interpret kinds; they exist so the transaction log reads as
// an audit trail.
type OpKind string

const (
	OpLockChips     OpKind = "lock_chips"
	OpUnlockChips   OpKind = "unlock_chips"
	OpBuyIn         OpKind = "buy_in"
	OpCashOut       OpKind = "cash_out"
	OpCommitToPot   OpKind = "commit_to_pot"
	OpMoveToPot     OpKind = "move_to_pot"
	OpAwardPot      OpKind = "award_pot"
	OpCollectRake   OpKind = "collect_rake"
	OpBetAction     OpKind = "bet_action"
	OpLedgerEntry   OpKind = "ledger_entry"
	OpRecordSummary OpKind = "record_summary"
)

// OpRecord is the logged trace of one executed step.
type OpRecord struct {
	Kind   OpKind       `json:"kind"`
	Label  string       `json:"label,omitempty"`
	Street types.Street `json:"street,omitempty"`
}

// Transaction is the durable description of one atomic multi-op
// commit. Closures are not retained past Commit; only the trace is.
type Transaction struct {
	TransactionID  string     `json:"transactionId"`
	HandID         string     `json:"handId,omitempty"`
	TableID        string     `json:"tableId,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	Operations     []OpRecord `json:"operations"`
	Status         Status     `json:"status"`
	CreatedAt      int64      `json:"createdAt"`
	CommittedAt    int64      `json:"committedAt,omitempty"`
	RolledBackAt   int64      `json:"rolledBackAt,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Clone returns a deep copy of the transaction record.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Operations = append([]OpRecord(nil), t.Operations...)
	return &clone
}

// Result reports the outcome of a commit.
type Result struct {
	Success           bool
	AlreadyProcessed  bool
	RollbackPerformed bool
	Err               error
	Transaction       *Transaction
}
