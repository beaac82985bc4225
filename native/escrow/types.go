package escrow

import (
	"strings"

	"cardroom/core/types"
)

// TableEscrow tracks the chips a player has deposited at one table.
// Stack holds the freely owned portion, Committed the chips reserved
// for the hand in progress but not yet moved into the pot. The two
// buckets are disjoint; their sum is the player's locked exposure at
// this table.
type TableEscrow struct {
	TableID      string      `json:"tableId"`
	PlayerID     string      `json:"playerId"`
	Stack        types.Chips `json:"stack"`
	Committed    types.Chips `json:"committed"`
	TotalBuyIn   types.Chips `json:"totalBuyIn"`
	TotalCashOut types.Chips `json:"totalCashOut"`
	CreatedAt    int64       `json:"createdAt"`
	UpdatedAt    int64       `json:"updatedAt"`
}

// Clone returns a deep copy of the escrow.
func (e *TableEscrow) Clone() *TableEscrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// LockedTotal is the player's locked exposure at this table.
func (e *TableEscrow) LockedTotal() types.Chips {
	if e == nil {
		return 0
	}
	return e.Stack + e.Committed
}

func normalizeID(id, field string) (string, *types.EconomyError) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", types.ErrValidation(types.CodeInvalidID, field+" must not be empty", nil)
	}
	return trimmed, nil
}

func validateEscrow(e *TableEscrow) *types.EconomyError {
	if e == nil {
		return types.ErrValidation(types.CodeInvalidConfig, "escrow must not be nil", nil)
	}
	if strings.TrimSpace(e.TableID) == "" || strings.TrimSpace(e.PlayerID) == "" {
		return types.ErrValidation(types.CodeInvalidID, "escrow ids must not be empty", nil)
	}
	if e.Stack < 0 || e.Committed < 0 || e.TotalBuyIn < 0 || e.TotalCashOut < 0 {
		return types.ErrValidation(types.CodeInvalidAmount, "escrow amounts must be non-negative", map[string]string{
			"tableId":  e.TableID,
			"playerId": e.PlayerID,
		})
	}
	return nil
}
