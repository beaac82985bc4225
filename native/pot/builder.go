package pot

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"cardroom/core/types"
)

// Pot is the read-only view of a hand's pot state.
type Pot struct {
	PotID                 string                                `json:"potId"`
	HandID                string                                `json:"handId"`
	TableID               string                                `json:"tableId"`
	ContributionsByStreet map[types.Street]map[string]types.Chips `json:"contributionsByStreet"`
	ContributionsByPlayer map[string]types.Chips                `json:"contributionsByPlayer"`
	EligiblePlayers       []string                              `json:"eligiblePlayers"`
	IsSettled             bool                                  `json:"isSettled"`
}

// Builder accumulates one hand's pot. Contributions are tracked twice,
// by street and by player; eligibility tracks who can still win. A fold
// drops eligibility but keeps the contribution totals so side-pot
// layering stays correct.
type Builder struct {
	mu       sync.Mutex
	potID    string
	handID   string
	tableID  string
	byStreet map[types.Street]map[string]types.Chips
	byPlayer map[string]types.Chips
	eligible map[string]struct{}
	settled  bool
}

// NewBuilder creates an empty pot for the hand.
func NewBuilder(potID, handID, tableID string) *Builder {
	return &Builder{
		potID:    strings.TrimSpace(potID),
		handID:   strings.TrimSpace(handID),
		tableID:  strings.TrimSpace(tableID),
		byStreet: make(map[types.Street]map[string]types.Chips),
		byPlayer: make(map[string]types.Chips),
		eligible: make(map[string]struct{}),
	}
}

// PotID returns the pot identifier.
func (b *Builder) PotID() string { return b.potID }

// HandID returns the owning hand identifier.
func (b *Builder) HandID() string { return b.handID }

// TableID returns the owning table identifier.
func (b *Builder) TableID() string { return b.tableID }

// AddContribution records chips entering the pot on the given street.
// The first contribution makes the player eligible to win.
func (b *Builder) AddContribution(playerID string, amount types.Chips, street types.Street) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return types.ErrValidation(types.CodeInvalidID, "player id must not be empty", nil)
	}
	if amount <= 0 {
		return types.ErrValidation(types.CodeInvalidAmount, "contribution must be positive", map[string]string{
			"playerId": playerID, "amount": strconv.FormatInt(amount, 10),
		})
	}
	if !street.Valid() {
		return types.ErrValidation(types.CodeInvalidConfig, "unknown street", map[string]string{
			"street": strconv.Itoa(int(street)),
		})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settled {
		return b.settledErr()
	}
	streetMap, ok := b.byStreet[street]
	if !ok {
		streetMap = make(map[string]types.Chips)
		b.byStreet[street] = streetMap
	}
	next, err := types.AddChips(streetMap[playerID], amount)
	if err != nil {
		return types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"playerId": playerID})
	}
	total, err := types.AddChips(b.byPlayer[playerID], amount)
	if err != nil {
		return types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"playerId": playerID})
	}
	streetMap[playerID] = next
	b.byPlayer[playerID] = total
	b.eligible[playerID] = struct{}{}
	return nil
}

// PlayerFolded removes the player from the eligible set. Their
// contributions remain in the pot.
func (b *Builder) PlayerFolded(playerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settled {
		return b.settledErr()
	}
	delete(b.eligible, strings.TrimSpace(playerID))
	return nil
}

// Total returns the chips in the pot.
func (b *Builder) Total() types.Chips {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total types.Chips
	for _, amt := range b.byPlayer {
		total += amt
	}
	return total
}

// PlayerContribution returns the player's total contribution.
func (b *Builder) PlayerContribution(playerID string) types.Chips {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byPlayer[playerID]
}

// StreetTotal returns the chips contributed on one street.
func (b *Builder) StreetTotal(street types.Street) types.Chips {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total types.Chips
	for _, amt := range b.byStreet[street] {
		total += amt
	}
	return total
}

// IsEligible reports whether the player can still win the pot.
func (b *Builder) IsEligible(playerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.eligible[playerID]
	return ok
}

// MarkSettled transitions the pot to read-only. The transition is
// one-way and a second call is an error.
func (b *Builder) MarkSettled() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settled {
		return b.settledErr()
	}
	b.settled = true
	return nil
}

// Settled reports whether the pot has been settled.
func (b *Builder) Settled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settled
}

// Snapshot returns a deep copy of the pot state.
func (b *Builder) Snapshot() *Pot {
	b.mu.Lock()
	defer b.mu.Unlock()
	byStreet := make(map[types.Street]map[string]types.Chips, len(b.byStreet))
	for street, m := range b.byStreet {
		clone := make(map[string]types.Chips, len(m))
		for player, amt := range m {
			clone[player] = amt
		}
		byStreet[street] = clone
	}
	byPlayer := make(map[string]types.Chips, len(b.byPlayer))
	for player, amt := range b.byPlayer {
		byPlayer[player] = amt
	}
	eligible := make([]string, 0, len(b.eligible))
	for player := range b.eligible {
		eligible = append(eligible, player)
	}
	sort.Strings(eligible)
	return &Pot{
		PotID:                 b.potID,
		HandID:                b.handID,
		TableID:               b.tableID,
		ContributionsByStreet: byStreet,
		ContributionsByPlayer: byPlayer,
		EligiblePlayers:       eligible,
		IsSettled:             b.settled,
	}
}

func (b *Builder) settledErr() *types.EconomyError {
	return types.ErrPrecondition(types.CodePotSettled, "pot already settled", map[string]string{
		"potId": b.potID, "handId": b.handID,
	})
}
