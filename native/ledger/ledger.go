package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cardroom/core/types"
)

// Archive mirrors committed ledger data to a durable backend. Archive
// failures do not unwind the in-memory chain; the error surfaces so the
// caller can alarm on it.
type Archive interface {
	ArchiveEntry(*Entry) error
	ArchiveSettlement(*SettlementRecord) error
}

// Ledger is the append-only, hash-chained record of every monetary
// event. It is a single-writer actor: the hash chain is intrinsically
// sequential, so all appends serialize on one mutex.
type Ledger struct {
	mu          sync.Mutex
	entries     []*Entry
	byPlayer    map[string][]uint64
	byHand      map[string][]uint64
	byTable     map[string][]uint64
	settlements map[string]*SettlementRecord
	lastHash    string
	rakeTotal   types.Chips
	halted      bool

	archive Archive
	ids     types.IDSource
	nowFn   func() int64
}

// New creates an empty ledger with a UUID entry-ID source.
func New() *Ledger {
	return &Ledger{
		byPlayer:    make(map[string][]uint64),
		byHand:      make(map[string][]uint64),
		byTable:     make(map[string][]uint64),
		settlements: make(map[string]*SettlementRecord),
		lastHash:    GenesisHash(),
		ids:         types.UUIDSource{},
		nowFn:       func() int64 { return time.Now().UnixMilli() },
	}
}

// SetIDSource overrides the entry/settlement ID source. Passing nil
// restores the UUID source.
func (l *Ledger) SetIDSource(src types.IDSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if src == nil {
		l.ids = types.UUIDSource{}
		return
	}
	l.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		l.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	l.nowFn = now
}

// SetArchive configures the durable mirror for committed entries and
// settlement records.
func (l *Ledger) SetArchive(archive Archive) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archive = archive
}

// Append commits one entry to the chain. The returned entry is a copy;
// a non-nil error alongside a non-nil entry means the entry committed
// but the archive mirror failed.
func (l *Ledger) Append(params AppendParams) (*Entry, error) {
	if strings.TrimSpace(string(params.Type)) == "" {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "entry type must not be empty", nil)
	}
	if params.BalanceAfter < 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "balance-after must be non-negative", map[string]string{
			"balanceAfter": fmt.Sprintf("%d", params.BalanceAfter),
		})
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(params)
}

func (l *Ledger) appendLocked(params AppendParams) (*Entry, error) {
	if l.halted {
		return nil, l.haltedErr()
	}
	entry := &Entry{
		EntryID:      types.NewID(types.PrefixLedger, l.ids),
		Sequence:     uint64(len(l.entries)),
		Type:         params.Type,
		PlayerID:     strings.TrimSpace(params.PlayerID),
		Amount:       params.Amount,
		Reason:       params.Reason,
		HandID:       strings.TrimSpace(params.HandID),
		TableID:      strings.TrimSpace(params.TableID),
		BalanceAfter: params.BalanceAfter,
		PrevHash:     l.lastHash,
		Timestamp:    l.nowFn(),
	}
	if len(params.Metadata) > 0 {
		entry.Metadata = make(map[string]string, len(params.Metadata))
		for k, v := range params.Metadata {
			entry.Metadata[k] = v
		}
	}
	digest, err := entryDigest(entry)
	if err != nil {
		return nil, types.ErrFatal(types.CodeLedgerIntegrity, err.Error(), nil)
	}
	entry.Hash = digest
	l.entries = append(l.entries, entry)
	l.lastHash = digest
	if entry.PlayerID != "" {
		l.byPlayer[entry.PlayerID] = append(l.byPlayer[entry.PlayerID], entry.Sequence)
	}
	if entry.HandID != "" {
		l.byHand[entry.HandID] = append(l.byHand[entry.HandID], entry.Sequence)
	}
	if entry.TableID != "" {
		l.byTable[entry.TableID] = append(l.byTable[entry.TableID], entry.Sequence)
	}
	if l.archive != nil {
		if err := l.archive.ArchiveEntry(entry); err != nil {
			return entry.Clone(), fmt.Errorf("ledger: archive entry %s: %w", entry.EntryID, err)
		}
	}
	return entry.Clone(), nil
}

// RecordDeposit logs chips entering a player's available balance from
// outside the economy.
func (l *Ledger) RecordDeposit(playerID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeDeposit, PlayerID: playerID, Amount: amount,
		Reason: "deposit", BalanceAfter: balanceAfter,
	})
}

// RecordWithdrawal logs chips leaving a player's available balance.
func (l *Ledger) RecordWithdrawal(playerID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeWithdrawal, PlayerID: playerID, Amount: -amount,
		Reason: "withdrawal", BalanceAfter: balanceAfter,
	})
}

// RecordBuyIn logs available chips moving into a table escrow.
func (l *Ledger) RecordBuyIn(playerID, tableID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeBuyIn, PlayerID: playerID, Amount: -amount,
		Reason: "buy-in to " + tableID, TableID: tableID, BalanceAfter: balanceAfter,
	})
}

// RecordCashOut logs escrow chips returning to the available balance.
func (l *Ledger) RecordCashOut(playerID, tableID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeCashOut, PlayerID: playerID, Amount: amount,
		Reason: "cash-out from " + tableID, TableID: tableID, BalanceAfter: balanceAfter,
	})
}

// RecordBlind logs a forced bet entering the pot.
func (l *Ledger) RecordBlind(playerID, handID, tableID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeBlind, PlayerID: playerID, Amount: -amount,
		Reason: "blind posted", HandID: handID, TableID: tableID, BalanceAfter: balanceAfter,
	})
}

// RecordBet logs a voluntary bet entering the pot on the given street.
func (l *Ledger) RecordBet(playerID, handID, tableID string, amount, balanceAfter types.Chips, street types.Street) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypeBet, PlayerID: playerID, Amount: -amount,
		Reason: "bet on " + street.String(), HandID: handID, TableID: tableID,
		BalanceAfter: balanceAfter,
		Metadata:     map[string]string{"street": street.String()},
	})
}

// RecordPotWin logs a pot payout to a player.
func (l *Ledger) RecordPotWin(playerID, handID, tableID string, amount, balanceAfter types.Chips) (*Entry, error) {
	return l.Append(AppendParams{
		Type: EntryTypePotWin, PlayerID: playerID, Amount: amount,
		Reason: "pot win", HandID: handID, TableID: tableID, BalanceAfter: balanceAfter,
	})
}

// RecordRake logs rake leaving a hand's pot into the rake account. The
// running rake total doubles as the synthetic account's balance.
func (l *Ledger) RecordRake(handID, tableID string, amount types.Chips) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := types.AddChips(l.rakeTotal, amount)
	if err != nil {
		return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), nil)
	}
	entry, appendErr := l.appendLocked(AppendParams{
		Type: EntryTypeRake, PlayerID: RakeAccountID, Amount: amount,
		Reason: "rake collected", HandID: handID, TableID: tableID, BalanceAfter: next,
	})
	if entry != nil {
		l.rakeTotal = next
	}
	return entry, appendErr
}

// RakeTotal returns the lifetime rake collected.
func (l *Ledger) RakeTotal() types.Chips {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rakeTotal
}

// RecordSettlement stores the settlement summary for a hand, rejecting
// a second record for the same (table, hand).
func (l *Ledger) RecordSettlement(rec *SettlementRecord) (*SettlementRecord, error) {
	if rec == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "settlement record must not be nil", nil)
	}
	handID := strings.TrimSpace(rec.HandID)
	tableID := strings.TrimSpace(rec.TableID)
	if handID == "" || tableID == "" {
		return nil, types.ErrValidation(types.CodeInvalidID, "settlement ids must not be empty", nil)
	}
	if rec.TotalPot < 0 || rec.RakeCollected < 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "settlement amounts must be non-negative", map[string]string{
			"handId": handID,
		})
	}
	if rec.ChipsBefore != rec.ChipsAfter {
		return nil, types.ErrFatal(types.CodeConservation, "settlement drops chips", map[string]string{
			"handId":      handID,
			"chipsBefore": fmt.Sprintf("%d", rec.ChipsBefore),
			"chipsAfter":  fmt.Sprintf("%d", rec.ChipsAfter),
		})
	}
	var payoutSum types.Chips
	for player, v := range rec.PlayerPayouts {
		if v < 0 {
			return nil, types.ErrValidation(types.CodeInvalidAmount, "payout must be non-negative", map[string]string{
				"handId": handID, "playerId": player,
			})
		}
		sum, err := types.AddChips(payoutSum, v)
		if err != nil {
			return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
		}
		payoutSum = sum
	}
	if distributed, err := types.AddChips(payoutSum, rec.RakeCollected); err != nil || distributed != rec.TotalPot {
		return nil, types.ErrFatal(types.CodeConservation, "payouts plus rake differ from pot", map[string]string{
			"handId":   handID,
			"totalPot": fmt.Sprintf("%d", rec.TotalPot),
			"payouts":  fmt.Sprintf("%d", payoutSum),
			"rake":     fmt.Sprintf("%d", rec.RakeCollected),
		})
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted {
		return nil, l.haltedErr()
	}
	key := types.SettlementKey(tableID, handID)
	if _, ok := l.settlements[key]; ok {
		return nil, types.ErrIdempotency(types.CodeDuplicateSettlement, "settlement already recorded", map[string]string{
			"tableId": tableID, "handId": handID,
		})
	}
	stored := rec.Clone()
	stored.HandID = handID
	stored.TableID = tableID
	stored.IdempotencyKey = key
	if strings.TrimSpace(stored.SettlementID) == "" {
		stored.SettlementID = types.NewID(types.PrefixSettlement, l.ids)
	}
	if stored.Timestamp == 0 {
		stored.Timestamp = l.nowFn()
	}
	l.settlements[key] = stored
	if l.archive != nil {
		if err := l.archive.ArchiveSettlement(stored); err != nil {
			return stored.Clone(), fmt.Errorf("ledger: archive settlement %s: %w", stored.SettlementID, err)
		}
	}
	return stored.Clone(), nil
}

// SettlementFor returns the stored record for the pair, if any.
func (l *Ledger) SettlementFor(tableID, handID string) (*SettlementRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.settlements[types.SettlementKey(strings.TrimSpace(tableID), strings.TrimSpace(handID))]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// SettlementHistory returns copies of every settlement record sorted by
// (tableId, handId).
func (l *Ledger) SettlementHistory() []*SettlementRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*SettlementRecord, 0, len(l.settlements))
	for _, rec := range l.settlements {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableID != out[j].TableID {
			return out[i].TableID < out[j].TableID
		}
		return out[i].HandID < out[j].HandID
	})
	return out
}

// RestoreSettlements reloads settlement history from a snapshot so
// settlement idempotency survives restart. Existing records are
// replaced wholesale.
func (l *Ledger) RestoreSettlements(records []*SettlementRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settlements = make(map[string]*SettlementRecord, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		key := rec.IdempotencyKey
		if key == "" {
			key = types.SettlementKey(rec.TableID, rec.HandID)
		}
		l.settlements[key] = rec.Clone()
	}
}

// Entries returns copies of the whole chain in sequence order.
func (l *Ledger) Entries() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of committed entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LastHash returns the current chain head.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// EntriesByPlayer returns copies of the player's entries in sequence
// order.
func (l *Ledger) EntriesByPlayer(playerID string) []*Entry {
	return l.entriesByIndex(l.byPlayer, strings.TrimSpace(playerID))
}

// EntriesByHand returns copies of the hand's entries in sequence order.
func (l *Ledger) EntriesByHand(handID string) []*Entry {
	return l.entriesByIndex(l.byHand, strings.TrimSpace(handID))
}

// EntriesByTable returns copies of the table's entries in sequence
// order.
func (l *Ledger) EntriesByTable(tableID string) []*Entry {
	return l.entriesByIndex(l.byTable, strings.TrimSpace(tableID))
}

func (l *Ledger) entriesByIndex(index map[string][]uint64, key string) []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	seqs := index[key]
	out := make([]*Entry, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, l.entries[seq].Clone())
	}
	return out
}

// VerifyIntegrity walks the chain, recomputing hashes and checking
// linkage and sequence density. On failure it reports the first broken
// sequence and halts all further writes.
func (l *Ledger) VerifyIntegrity() (bool, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := GenesisHash()
	for i, e := range l.entries {
		if e.Sequence != uint64(i) || e.PrevHash != prev {
			l.halted = true
			return false, int64(i)
		}
		digest, err := entryDigest(e)
		if err != nil || digest != e.Hash {
			l.halted = true
			return false, int64(i)
		}
		prev = e.Hash
	}
	return true, -1
}

// VerifyHandConservation checks that the hand's player entries plus its
// recorded rake sum to zero. Rake entries are excluded from the player
// sum; the rake figure comes from the settlement record.
func (l *Ledger) VerifyHandConservation(handID string) (bool, types.Chips, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum types.Chips
	for _, seq := range l.byHand[strings.TrimSpace(handID)] {
		e := l.entries[seq]
		if e.Type == EntryTypeRake {
			continue
		}
		next, err := types.AddChips(sum, e.Amount)
		if err != nil {
			return false, 0, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
		}
		sum = next
	}
	var rake types.Chips
	for _, rec := range l.settlements {
		if rec.HandID == handID {
			rake = rec.RakeCollected
			break
		}
	}
	total, err := types.AddChips(sum, rake)
	if err != nil {
		return false, 0, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
	}
	return total == 0, total, nil
}

// Halted reports whether the ledger refuses writes after an integrity
// failure.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

func (l *Ledger) haltedErr() *types.EconomyError {
	return types.ErrFatal(types.CodeLedgerIntegrity, "ledger halted after integrity failure", nil)
}
