package settlement

import (
	"strconv"

	"cardroom/core/types"
)

const (
	EventTypeSettlementStarted   = "settlement_started"
	EventTypeSettlementCompleted = "settlement_completed"
)

func newSettlementEvent(eventType string, o *Outcome) *types.Event {
	attrs := map[string]string{
		"handId":  o.HandID,
		"tableId": o.TableID,
	}
	if eventType == EventTypeSettlementCompleted {
		attrs["settlementId"] = o.SettlementID
		attrs["totalPot"] = strconv.FormatInt(o.TotalPot, 10)
		attrs["rakeCollected"] = strconv.FormatInt(o.RakeCollected, 10)
		attrs["winners"] = strconv.Itoa(len(o.Payouts))
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
