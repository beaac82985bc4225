package escrow

import (
	"strconv"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/types"
	"cardroom/native/balance"
)

// Store abstracts the escrow backend so tests and recovery tooling can
// substitute their own.
type Store interface {
	EscrowGet(tableID, playerID string) (*TableEscrow, bool)
	EscrowPut(*TableEscrow) error
	EscrowDelete(tableID, playerID string)
	EscrowList() []*TableEscrow
	EscrowClear()
}

// BalanceOps is the slice of the balance keeper the escrow keeper
// drives. Buy-ins lock chips, cash-outs unlock them, and pot traffic
// adjusts the locked bucket without touching available.
type BalanceOps interface {
	Lock(playerID string, amount types.Chips) (*balance.PlayerBalance, error)
	Unlock(playerID string, amount types.Chips) (*balance.PlayerBalance, error)
	AdjustLocked(playerID string, delta types.Chips) (*balance.PlayerBalance, error)
}

// Keeper owns every (table, player) escrow row and keeps the balance
// keeper's locked bucket in step with escrow totals.
type Keeper struct {
	mu       sync.Mutex
	store    Store
	balances BalanceOps
	emitter  events.Emitter
	nowFn    func() int64
}

// NewKeeper creates an escrow keeper over the given store and balance
// backend, defaulting to an in-memory store and a no-op emitter.
func NewKeeper(store Store, balances BalanceOps) *Keeper {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Keeper{
		store:    store,
		balances: balances,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (k *Keeper) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		k.emitter = events.NoopEmitter{}
		return
	}
	k.emitter = emitter
}

// SetNowFunc overrides the millisecond time source, primarily so tests
// get deterministic timestamps.
func (k *Keeper) SetNowFunc(now func() int64) {
	if now == nil {
		k.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	k.nowFn = now
}

func (k *Keeper) emit(evt *types.Event) {
	if k == nil || k.emitter == nil || evt == nil {
		return
	}
	k.emitter.Emit(events.Wrap(evt))
}

// BuyIn locks amount in the player's balance and adds it to the table
// stack, creating the escrow row when absent.
func (k *Keeper) BuyIn(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	if amount <= 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "buy-in must be positive", map[string]string{
			"tableId": tableID, "playerId": playerID, "amount": formatChips(amount),
		})
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, err := k.balances.Lock(playerID, amount); err != nil {
		return nil, err
	}
	now := k.nowFn()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		e = &TableEscrow{TableID: tableID, PlayerID: playerID, CreatedAt: now}
	}
	e.Stack += amount
	e.TotalBuyIn += amount
	e.UpdatedAt = now
	if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(EventTypeEscrowBuyIn, e, amount))
	return e.Clone(), nil
}

// CashOut unlocks amount from the player's balance and removes it from
// the stack. Any committed chips block the cash-out outright; the row
// is deleted once the stack reaches zero.
func (k *Keeper) CashOut(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	if amount < 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "cash-out must be non-negative", map[string]string{
			"tableId": tableID, "playerId": playerID, "amount": formatChips(amount),
		})
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cashOutLocked(tableID, playerID, amount)
}

// CashOutAll cashes out the entire free stack. A busted player with an
// empty stack still gets their row removed.
func (k *Keeper) CashOutAll(tableID, playerID string) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	return k.cashOutLocked(tableID, playerID, e.Stack)
}

func (k *Keeper) cashOutLocked(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	if e.Committed > 0 {
		return nil, types.ErrPrecondition(types.CodeEscrowCommitted, "cash-out blocked by committed chips", map[string]string{
			"tableId": tableID, "playerId": playerID, "committed": formatChips(e.Committed),
		})
	}
	if amount > e.Stack {
		return nil, types.ErrPrecondition(types.CodeEscrowInsufficient, "stack below cash-out", map[string]string{
			"tableId": tableID, "playerId": playerID,
			"stack": formatChips(e.Stack), "requested": formatChips(amount),
		})
	}
	if _, err := k.balances.Unlock(playerID, amount); err != nil {
		return nil, err
	}
	e.Stack -= amount
	e.TotalCashOut += amount
	e.UpdatedAt = k.nowFn()
	if e.Stack == 0 {
		k.store.EscrowDelete(tableID, playerID)
	} else if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(EventTypeEscrowCashOut, e, amount))
	return e.Clone(), nil
}

// CommitChips reserves chips from the stack for the hand in progress.
func (k *Keeper) CommitChips(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	return k.mutate(tableID, playerID, amount, EventTypeEscrowCommitted, func(e *TableEscrow) *types.EconomyError {
		if amount > e.Stack {
			return types.ErrPrecondition(types.CodeEscrowInsufficient, "stack below commit", map[string]string{
				"tableId": e.TableID, "playerId": e.PlayerID,
				"stack": formatChips(e.Stack), "requested": formatChips(amount),
			})
		}
		e.Stack -= amount
		e.Committed += amount
		return nil
	})
}

// ReleaseCommitted returns reserved chips to the stack, e.g. when a
// betting action is rolled back or a round ends without a pot move.
func (k *Keeper) ReleaseCommitted(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	return k.mutate(tableID, playerID, amount, EventTypeEscrowCommitReleased, func(e *TableEscrow) *types.EconomyError {
		return releaseCommitted(e, amount)
	})
}

// ReleaseAllCommitted returns every reserved chip to the stack.
func (k *Keeper) ReleaseAllCommitted(tableID, playerID string) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	amount := e.Committed
	if eerr := releaseCommitted(e, amount); eerr != nil {
		return nil, eerr
	}
	e.UpdatedAt = k.nowFn()
	if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(EventTypeEscrowCommitReleased, e, amount))
	return e.Clone(), nil
}

func releaseCommitted(e *TableEscrow, amount types.Chips) *types.EconomyError {
	if amount > e.Committed {
		return types.ErrPrecondition(types.CodeEscrowInsufficient, "committed below release", map[string]string{
			"tableId": e.TableID, "playerId": e.PlayerID,
			"committed": formatChips(e.Committed), "requested": formatChips(amount),
		})
	}
	e.Committed -= amount
	e.Stack += amount
	return nil
}

// MoveToPot transfers committed chips out of the escrow and into the
// pot's accounting frame. The player's locked bucket shrinks by the
// same amount.
func (k *Keeper) MoveToPot(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	if amount < 0 {
		return nil, negativeAmountErr(tableID, playerID, amount)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	if amount > e.Committed {
		return nil, types.ErrPrecondition(types.CodeEscrowInsufficient, "committed below pot move", map[string]string{
			"tableId": tableID, "playerId": playerID,
			"committed": formatChips(e.Committed), "requested": formatChips(amount),
		})
	}
	if _, err := k.balances.AdjustLocked(playerID, -amount); err != nil {
		return nil, err
	}
	e.Committed -= amount
	e.UpdatedAt = k.nowFn()
	if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(EventTypeEscrowMovedToPot, e, amount))
	return e.Clone(), nil
}

// AwardPot credits pot winnings to the stack, re-creating the escrow
// row when the player busted earlier in the hand. The player's locked
// bucket grows by the same amount.
func (k *Keeper) AwardPot(tableID, playerID string, amount types.Chips) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	if amount <= 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "award must be positive", map[string]string{
			"tableId": tableID, "playerId": playerID, "amount": formatChips(amount),
		})
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, err := k.balances.AdjustLocked(playerID, amount); err != nil {
		return nil, err
	}
	now := k.nowFn()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		e = &TableEscrow{TableID: tableID, PlayerID: playerID, CreatedAt: now}
	}
	e.Stack += amount
	e.UpdatedAt = now
	if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(EventTypeEscrowPotAwarded, e, amount))
	return e.Clone(), nil
}

// RestoreEscrow writes an escrow row directly without touching the
// balance keeper. Recovery uses it after balances have been rebuilt
// through the public operations.
func (k *Keeper) RestoreEscrow(e *TableEscrow) error {
	if eerr := validateEscrow(e); eerr != nil {
		return eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	restored := e.Clone()
	if restored.UpdatedAt == 0 {
		restored.UpdatedAt = k.nowFn()
	}
	if err := k.store.EscrowPut(restored); err != nil {
		return err
	}
	k.emit(newEscrowEvent(EventTypeEscrowRestored, restored, restored.Stack))
	return nil
}

// Get returns a copy of the escrow for the pair.
func (k *Keeper) Get(tableID, playerID string) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	return e, nil
}

// Escrows returns copies of every escrow sorted by (tableId, playerId).
func (k *Keeper) Escrows() []*TableEscrow {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.EscrowList()
}

// EscrowsByTable returns the table's escrows sorted by player ID.
func (k *Keeper) EscrowsByTable(tableID string) []*TableEscrow {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*TableEscrow, 0, 8)
	for _, e := range k.store.EscrowList() {
		if e.TableID == tableID {
			out = append(out, e)
		}
	}
	return out
}

// LockedTotalFor sums stack plus committed across every escrow of the
// player. Invariant checks compare it to the balance keeper's locked
// bucket.
func (k *Keeper) LockedTotalFor(playerID string) types.Chips {
	k.mu.Lock()
	defer k.mu.Unlock()
	var total types.Chips
	for _, e := range k.store.EscrowList() {
		if e.PlayerID == playerID {
			total += e.LockedTotal()
		}
	}
	return total
}

// Clear drops every escrow. Used only by snapshot recovery.
func (k *Keeper) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.store.EscrowClear()
}

func (k *Keeper) mutate(tableID, playerID string, amount types.Chips, eventType string, apply func(*TableEscrow) *types.EconomyError) (*TableEscrow, error) {
	tableID, playerID, eerr := normalizePair(tableID, playerID)
	if eerr != nil {
		return nil, eerr
	}
	if amount < 0 {
		return nil, negativeAmountErr(tableID, playerID, amount)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.store.EscrowGet(tableID, playerID)
	if !ok {
		return nil, notFoundErr(tableID, playerID)
	}
	if eerr := apply(e); eerr != nil {
		return nil, eerr
	}
	e.UpdatedAt = k.nowFn()
	if err := k.store.EscrowPut(e); err != nil {
		return nil, err
	}
	k.emit(newEscrowEvent(eventType, e, amount))
	return e.Clone(), nil
}

func normalizePair(tableID, playerID string) (string, string, *types.EconomyError) {
	t, eerr := normalizeID(tableID, "table id")
	if eerr != nil {
		return "", "", eerr
	}
	p, eerr := normalizeID(playerID, "player id")
	if eerr != nil {
		return "", "", eerr
	}
	return t, p, nil
}

func notFoundErr(tableID, playerID string) *types.EconomyError {
	return types.ErrPrecondition(types.CodeEscrowNotFound, "no escrow for pair", map[string]string{
		"tableId": tableID, "playerId": playerID,
	})
}

func negativeAmountErr(tableID, playerID string, amount types.Chips) *types.EconomyError {
	return types.ErrValidation(types.CodeInvalidAmount, "amount must be non-negative", map[string]string{
		"tableId": tableID, "playerId": playerID, "amount": formatChips(amount),
	})
}

func formatChips(v types.Chips) string {
	return strconv.FormatInt(v, 10)
}
