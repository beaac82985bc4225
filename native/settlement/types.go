package settlement

import (
	"cardroom/core/types"
	"cardroom/native/rake"
	"cardroom/native/sidepot"
)

// Request carries everything the engine needs to settle one completed
// hand. The hand engine supplies final bet totals and the ranking map;
// the economy core never evaluates cards.
type Request struct {
	HandID            string                `json:"handId"`
	TableID           string                `json:"tableId"`
	PlayerStates      []sidepot.PlayerState `json:"playerStates"`
	WinnerRankings    map[string]int        `json:"winnerRankings"`
	FinalStreet       types.Street          `json:"finalStreet"`
	FlopSeen          bool                  `json:"flopSeen"`
	IsUncontested     bool                  `json:"isUncontested"`
	PlayersInHand     int                   `json:"playersInHand"`
	PlayersAtShowdown int                   `json:"playersAtShowdown"`
}

// Outcome is the settlement result. A replayed request returns the
// stored outcome verbatim with Replayed set; the numbers are identical
// whether the hand settles once or many times.
type Outcome struct {
	SettlementID  string                 `json:"settlementId"`
	HandID        string                 `json:"handId"`
	TableID       string                 `json:"tableId"`
	Timestamp     int64                  `json:"timestamp"`
	TotalPot      types.Chips            `json:"totalPot"`
	RakeCollected types.Chips            `json:"rakeCollected"`
	Payouts       map[string]types.Chips `json:"payouts"`
	Pots          []sidepot.Pot          `json:"pots,omitempty"`
	Rake          *rake.Result           `json:"rake,omitempty"`
	EntryIDs      []string               `json:"entryIds"`
	Replayed      bool                   `json:"replayed"`
}

// Clone returns a deep copy of the outcome.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Payouts != nil {
		clone.Payouts = make(map[string]types.Chips, len(o.Payouts))
		for k, v := range o.Payouts {
			clone.Payouts[k] = v
		}
	}
	clone.Pots = append([]sidepot.Pot(nil), o.Pots...)
	clone.EntryIDs = append([]string(nil), o.EntryIDs...)
	if o.Rake != nil {
		r := *o.Rake
		clone.Rake = &r
	}
	return &clone
}

// Preview is the pure settlement projection: the layout and the rake
// evaluation without any state change.
type Preview struct {
	HandID        string                 `json:"handId"`
	TableID       string                 `json:"tableId"`
	TotalPot      types.Chips            `json:"totalPot"`
	Pots          []sidepot.Pot          `json:"pots"`
	Rake          *rake.Result           `json:"rake"`
	Payouts       map[string]types.Chips `json:"payouts"`
	RakeCollected types.Chips            `json:"rakeCollected"`
}
