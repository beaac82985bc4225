package balance

import (
	"strings"

	"cardroom/core/types"
)

// PlayerBalance tracks a player's chips across the three disjoint
// buckets. Available chips are spendable, locked chips back open table
// escrows, pending chips are earmarked for delayed settlement flows.
type PlayerBalance struct {
	PlayerID  string      `json:"playerId"`
	Available types.Chips `json:"available"`
	Locked    types.Chips `json:"locked"`
	Pending   types.Chips `json:"pending"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
}

// Clone returns a deep copy so callers can never mutate keeper state
// through a returned snapshot.
func (b *PlayerBalance) Clone() *PlayerBalance {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// Total returns the sum of all three buckets.
func (b *PlayerBalance) Total() (types.Chips, error) {
	if b == nil {
		return 0, nil
	}
	sum, err := types.AddChips(b.Available, b.Locked)
	if err != nil {
		return 0, err
	}
	return types.AddChips(sum, b.Pending)
}

func normalizePlayerID(id string) (string, *types.EconomyError) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", types.ErrValidation(types.CodeInvalidID, "player id must not be empty", nil)
	}
	return trimmed, nil
}

func validateAmount(amount types.Chips) *types.EconomyError {
	if amount < 0 {
		return types.ErrValidation(types.CodeInvalidAmount, "amount must be non-negative", map[string]string{
			"amount": formatChips(amount),
		})
	}
	return nil
}
