package escrow

import (
	"strconv"

	"cardroom/core/types"
)

const (
	EventTypeEscrowBuyIn          = "escrow.buy_in"
	EventTypeEscrowCashOut        = "escrow.cash_out"
	EventTypeEscrowCommitted      = "escrow.committed"
	EventTypeEscrowCommitReleased = "escrow.commit.released"
	EventTypeEscrowMovedToPot     = "escrow.moved_to_pot"
	EventTypeEscrowPotAwarded     = "escrow.pot_awarded"
	EventTypeEscrowRestored       = "escrow.restored"
)

func newEscrowEvent(eventType string, e *TableEscrow, amount types.Chips) *types.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["tableId"] = e.TableID
		attrs["playerId"] = e.PlayerID
		attrs["stack"] = strconv.FormatInt(e.Stack, 10)
		attrs["committed"] = strconv.FormatInt(e.Committed, 10)
		attrs["totalBuyIn"] = strconv.FormatInt(e.TotalBuyIn, 10)
		attrs["totalCashOut"] = strconv.FormatInt(e.TotalCashOut, 10)
	}
	attrs["amount"] = strconv.FormatInt(amount, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
