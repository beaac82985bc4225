package ledger

import (
	"cardroom/core/types"
)

// EntryType names the monetary event an entry records.
type EntryType string

const (
	EntryTypeDeposit    EntryType = "deposit"
	EntryTypeWithdrawal EntryType = "withdrawal"
	EntryTypeBuyIn      EntryType = "buy_in"
	EntryTypeCashOut    EntryType = "cash_out"
	EntryTypeBlind      EntryType = "blind"
	EntryTypeBet        EntryType = "bet"
	EntryTypePotWin     EntryType = "pot_win"
	EntryTypeRake       EntryType = "rake"
	EntryTypeAdjustment EntryType = "adjustment"
)

// RakeAccountID is the synthetic account credited with collected rake.
const RakeAccountID = "rake_account"

// Entry is one immutable, hash-chained ledger record. Amount is signed
// from the owning account's perspective: chips entering the account are
// positive, chips leaving it negative. Hash covers every field except
// itself; PrevHash equals the previous entry's Hash.
type Entry struct {
	EntryID      string            `json:"entryId"`
	Sequence     uint64            `json:"sequence"`
	Type         EntryType         `json:"type"`
	PlayerID     string            `json:"playerId,omitempty"`
	Amount       types.Chips       `json:"amount"`
	Reason       string            `json:"reason"`
	HandID       string            `json:"handId,omitempty"`
	TableID      string            `json:"tableId,omitempty"`
	BalanceAfter types.Chips       `json:"balanceAfter"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	PrevHash     string            `json:"prevHash"`
	Hash         string            `json:"hash"`
	Timestamp    int64             `json:"timestamp"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// SettlementRecord is the ledger's durable summary of one settled hand.
// At most one record exists per (tableId, handId); the idempotency key
// is derived from that pair.
type SettlementRecord struct {
	SettlementID       string                 `json:"settlementId"`
	HandID             string                 `json:"handId"`
	TableID            string                 `json:"tableId"`
	Timestamp          int64                  `json:"timestamp"`
	TotalPot           types.Chips            `json:"totalPot"`
	RakeCollected      types.Chips            `json:"rakeCollected"`
	PlayerPayouts      map[string]types.Chips `json:"playerPayouts"`
	ReferencedEntryIDs []string               `json:"referencedEntryIds"`
	ChipsBefore        types.Chips            `json:"chipsBefore"`
	ChipsAfter         types.Chips            `json:"chipsAfter"`
	IdempotencyKey     string                 `json:"idempotencyKey"`
}

// Clone returns a deep copy of the record.
func (r *SettlementRecord) Clone() *SettlementRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.PlayerPayouts != nil {
		clone.PlayerPayouts = make(map[string]types.Chips, len(r.PlayerPayouts))
		for k, v := range r.PlayerPayouts {
			clone.PlayerPayouts[k] = v
		}
	}
	clone.ReferencedEntryIDs = append([]string(nil), r.ReferencedEntryIDs...)
	return &clone
}

// AppendParams carries the caller-supplied fields of a new entry. The
// ledger assigns sequence, chain hashes, entry ID and timestamp.
type AppendParams struct {
	Type         EntryType
	PlayerID     string
	Amount       types.Chips
	Reason       string
	HandID       string
	TableID      string
	BalanceAfter types.Chips
	Metadata     map[string]string
}
