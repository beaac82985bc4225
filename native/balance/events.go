package balance

import (
	"strconv"

	"cardroom/core/types"
)

const (
	EventTypeBalanceInitialized     = "balance.initialized"
	EventTypeBalanceCredited        = "balance.credited"
	EventTypeBalanceDebited         = "balance.debited"
	EventTypeBalanceLocked          = "balance.locked"
	EventTypeBalanceUnlocked        = "balance.unlocked"
	EventTypeBalanceLockedAdjusted  = "balance.locked.adjusted"
	EventTypeBalancePendingMoved    = "balance.pending.moved"
	EventTypeBalancePendingReleased = "balance.pending.released"
	EventTypeBalancePendingConsumed = "balance.pending.consumed"
)

// NewInitializedEvent returns the canonical payload for a freshly
// created balance.
func NewInitializedEvent(b *PlayerBalance) *types.Event {
	return newBalanceEvent(EventTypeBalanceInitialized, b, b.Available, "")
}

// NewLockedAdjustedEvent returns the payload for a signed locked-bucket
// adjustment.
func NewLockedAdjustedEvent(b *PlayerBalance, delta types.Chips) *types.Event {
	evt := newBalanceEvent(EventTypeBalanceLockedAdjusted, b, 0, "")
	evt.Attributes["delta"] = strconv.FormatInt(delta, 10)
	delete(evt.Attributes, "amount")
	return evt
}

func newBalanceEvent(eventType string, b *PlayerBalance, amount types.Chips, reason string) *types.Event {
	attrs := make(map[string]string)
	if b != nil {
		attrs["playerId"] = b.PlayerID
		attrs["available"] = strconv.FormatInt(b.Available, 10)
		attrs["locked"] = strconv.FormatInt(b.Locked, 10)
		attrs["pending"] = strconv.FormatInt(b.Pending, 10)
	}
	attrs["amount"] = strconv.FormatInt(amount, 10)
	if reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
