package balance

import (
	"strconv"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/types"
)

// Store abstracts the balance backend so tests and recovery tooling can
// substitute their own.
type Store interface {
	BalanceGet(playerID string) (*PlayerBalance, bool)
	BalancePut(*PlayerBalance) error
	BalanceList() []*PlayerBalance
	BalanceClear()
}

// Keeper owns every player balance. It is a single-writer actor: all
// mutations funnel through its mutex, and every returned record is a
// copy.
type Keeper struct {
	mu      sync.Mutex
	store   Store
	emitter events.Emitter
	nowFn   func() int64
}

// NewKeeper creates a balance keeper over the given store, defaulting
// to an in-memory backend and a no-op emitter.
func NewKeeper(store Store) *Keeper {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Keeper{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
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

// Initialize creates a balance with the given starting chips. It fails
// when the player already has one.
func (k *Keeper) Initialize(playerID string, initialAvailable types.Chips) (*PlayerBalance, error) {
	id, eerr := normalizePlayerID(playerID)
	if eerr != nil {
		return nil, eerr
	}
	if eerr := validateAmount(initialAvailable); eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.store.BalanceGet(id); ok {
		return nil, types.ErrPrecondition(types.CodeAccountExists, "balance already initialized", map[string]string{
			"playerId": id,
		})
	}
	now := k.nowFn()
	b := &PlayerBalance{
		PlayerID:  id,
		Available: initialAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := k.store.BalancePut(b); err != nil {
		return nil, err
	}
	k.emit(NewInitializedEvent(b))
	return b.Clone(), nil
}

// Credit adds chips to the available bucket.
func (k *Keeper) Credit(playerID string, amount types.Chips, reason string) (*PlayerBalance, error) {
	return k.mutate(playerID, reason, EventTypeBalanceCredited, func(b *PlayerBalance) *types.EconomyError {
		next, err := types.AddChips(b.Available, amount)
		if err != nil {
			return overflowErr(b.PlayerID, err)
		}
		b.Available = next
		return nil
	}, amount)
}

// Debit removes chips from the available bucket, failing when the
// bucket cannot cover the amount.
func (k *Keeper) Debit(playerID string, amount types.Chips, reason string) (*PlayerBalance, error) {
	return k.mutate(playerID, reason, EventTypeBalanceDebited, func(b *PlayerBalance) *types.EconomyError {
		if b.Available < amount {
			return types.ErrPrecondition(types.CodeInsufficientBalance, "available balance below debit", map[string]string{
				"playerId":  b.PlayerID,
				"available": formatChips(b.Available),
				"requested": formatChips(amount),
			})
		}
		b.Available -= amount
		return nil
	}, amount)
}

// Lock moves chips from available to locked.
func (k *Keeper) Lock(playerID string, amount types.Chips) (*PlayerBalance, error) {
	return k.mutate(playerID, "", EventTypeBalanceLocked, func(b *PlayerBalance) *types.EconomyError {
		if b.Available < amount {
			return types.ErrPrecondition(types.CodeInsufficientBalance, "available balance below lock", map[string]string{
				"playerId":  b.PlayerID,
				"available": formatChips(b.Available),
				"requested": formatChips(amount),
			})
		}
		next, err := types.AddChips(b.Locked, amount)
		if err != nil {
			return overflowErr(b.PlayerID, err)
		}
		b.Available -= amount
		b.Locked = next
		return nil
	}, amount)
}

// Unlock moves chips from locked back to available.
func (k *Keeper) Unlock(playerID string, amount types.Chips) (*PlayerBalance, error) {
	return k.mutate(playerID, "", EventTypeBalanceUnlocked, func(b *PlayerBalance) *types.EconomyError {
		if b.Locked < amount {
			return types.ErrValidation(types.CodeInvalidAmount, "locked balance below unlock", map[string]string{
				"playerId":  b.PlayerID,
				"locked":    formatChips(b.Locked),
				"requested": formatChips(amount),
			})
		}
		next, err := types.AddChips(b.Available, amount)
		if err != nil {
			return overflowErr(b.PlayerID, err)
		}
		b.Locked -= amount
		b.Available = next
		return nil
	}, amount)
}

// AdjustLocked applies a signed delta to the locked bucket without
// touching available. Escrow uses it when chips enter the pot (negative
// delta) or are awarded from it (positive delta).
func (k *Keeper) AdjustLocked(playerID string, delta types.Chips) (*PlayerBalance, error) {
	id, eerr := normalizePlayerID(playerID)
	if eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.store.BalanceGet(id)
	if !ok {
		return nil, notFoundErr(id)
	}
	next, err := types.AddChips(b.Locked, delta)
	if err != nil {
		return nil, overflowErr(id, err)
	}
	if next < 0 {
		return nil, types.ErrPrecondition(types.CodeInsufficientLocked, "locked balance below adjustment", map[string]string{
			"playerId": id,
			"locked":   formatChips(b.Locked),
			"delta":    formatChips(delta),
		})
	}
	b.Locked = next
	b.UpdatedAt = k.nowFn()
	if err := k.store.BalancePut(b); err != nil {
		return nil, err
	}
	k.emit(NewLockedAdjustedEvent(b, delta))
	return b.Clone(), nil
}

// MoveToPending earmarks available chips for a delayed settlement flow.
func (k *Keeper) MoveToPending(playerID string, amount types.Chips) (*PlayerBalance, error) {
	return k.mutate(playerID, "", EventTypeBalancePendingMoved, func(b *PlayerBalance) *types.EconomyError {
		if b.Available < amount {
			return types.ErrPrecondition(types.CodeInsufficientBalance, "available balance below pending move", map[string]string{
				"playerId":  b.PlayerID,
				"available": formatChips(b.Available),
				"requested": formatChips(amount),
			})
		}
		next, err := types.AddChips(b.Pending, amount)
		if err != nil {
			return overflowErr(b.PlayerID, err)
		}
		b.Available -= amount
		b.Pending = next
		return nil
	}, amount)
}

// ReleasePending cancels an earmark, returning chips to available.
func (k *Keeper) ReleasePending(playerID string, amount types.Chips) (*PlayerBalance, error) {
	return k.mutate(playerID, "", EventTypeBalancePendingReleased, func(b *PlayerBalance) *types.EconomyError {
		if b.Pending < amount {
			return types.ErrPrecondition(types.CodeInsufficientPending, "pending balance below release", map[string]string{
				"playerId":  b.PlayerID,
				"pending":   formatChips(b.Pending),
				"requested": formatChips(amount),
			})
		}
		next, err := types.AddChips(b.Available, amount)
		if err != nil {
			return overflowErr(b.PlayerID, err)
		}
		b.Pending -= amount
		b.Available = next
		return nil
	}, amount)
}

// ConsumePending completes an earmark: the chips leave the player's
// accounting entirely, e.g. a withdrawal that cleared.
func (k *Keeper) ConsumePending(playerID string, amount types.Chips) (*PlayerBalance, error) {
	return k.mutate(playerID, "", EventTypeBalancePendingConsumed, func(b *PlayerBalance) *types.EconomyError {
		if b.Pending < amount {
			return types.ErrPrecondition(types.CodeInsufficientPending, "pending balance below consume", map[string]string{
				"playerId":  b.PlayerID,
				"pending":   formatChips(b.Pending),
				"requested": formatChips(amount),
			})
		}
		b.Pending -= amount
		return nil
	}, amount)
}

// Get returns a copy of the player's balance.
func (k *Keeper) Get(playerID string) (*PlayerBalance, error) {
	id, eerr := normalizePlayerID(playerID)
	if eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.store.BalanceGet(id)
	if !ok {
		return nil, notFoundErr(id)
	}
	return b, nil
}

// Balances returns copies of every balance sorted by player ID.
func (k *Keeper) Balances() []*PlayerBalance {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.BalanceList()
}

// TotalChips sums every bucket of every balance. Conservation checks
// compare it across settlements.
func (k *Keeper) TotalChips() (types.Chips, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var total types.Chips
	for _, b := range k.store.BalanceList() {
		sum, err := b.Total()
		if err != nil {
			return 0, overflowErr(b.PlayerID, err)
		}
		total, err = types.AddChips(total, sum)
		if err != nil {
			return 0, overflowErr(b.PlayerID, err)
		}
	}
	return total, nil
}

// Clear drops every balance. Used only by snapshot recovery.
func (k *Keeper) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.store.BalanceClear()
}

func (k *Keeper) mutate(playerID, reason, eventType string, apply func(*PlayerBalance) *types.EconomyError, amount types.Chips) (*PlayerBalance, error) {
	id, eerr := normalizePlayerID(playerID)
	if eerr != nil {
		return nil, eerr
	}
	if eerr := validateAmount(amount); eerr != nil {
		return nil, eerr
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.store.BalanceGet(id)
	if !ok {
		return nil, notFoundErr(id)
	}
	if eerr := apply(b); eerr != nil {
		return nil, eerr
	}
	b.UpdatedAt = k.nowFn()
	if err := k.store.BalancePut(b); err != nil {
		return nil, err
	}
	k.emit(newBalanceEvent(eventType, b, amount, reason))
	return b.Clone(), nil
}

func notFoundErr(playerID string) *types.EconomyError {
	return types.ErrPrecondition(types.CodeAccountNotFound, "balance not initialized", map[string]string{
		"playerId": playerID,
	})
}

func overflowErr(playerID string, err error) *types.EconomyError {
	return types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{
		"playerId": playerID,
	})
}

func formatChips(v types.Chips) string {
	return strconv.FormatInt(v, 10)
}
