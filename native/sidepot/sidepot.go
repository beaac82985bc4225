// Package sidepot lays a hand's contributions out into layered pots and
// settles them. Everything here is pure: no clocks, no state, no
// emission. Given the same inputs the output is bit-identical.
package sidepot

import (
	"sort"
	"strconv"
	"strings"

	"cardroom/core/types"
)

// PlayerState is one player's final contribution to the hand.
type PlayerState struct {
	PlayerID          string      `json:"playerId"`
	TotalContribution types.Chips `json:"totalContribution"`
	IsAllIn           bool        `json:"isAllIn"`
	IsFolded          bool        `json:"isFolded"`
}

// Pot is one layer of the pot layout. Eligible preserves deterministic
// order: contribution ascending, then player ID.
type Pot struct {
	Amount   types.Chips `json:"amount"`
	Level    types.Chips `json:"level"`
	Eligible []string    `json:"eligible"`
}

// Result is the full layered layout for a hand.
type Result struct {
	HandID string      `json:"handId"`
	Pots   []Pot       `json:"pots"`
	Total  types.Chips `json:"total"`
}

// Compute lays out the side pots. Each unique contribution level forms
// one layer; a layer's amount is its thickness times the number of
// players who reached it, and its eligibility excludes folded players.
func Compute(handID string, players []PlayerState) (*Result, error) {
	active := make([]PlayerState, 0, len(players))
	var total types.Chips
	for _, p := range players {
		if p.TotalContribution < 0 {
			return nil, types.ErrValidation(types.CodeInvalidAmount, "contribution must be non-negative", map[string]string{
				"playerId": p.PlayerID, "amount": strconv.FormatInt(p.TotalContribution, 10),
			})
		}
		if strings.TrimSpace(p.PlayerID) == "" {
			return nil, types.ErrValidation(types.CodeInvalidID, "player id must not be empty", nil)
		}
		if p.TotalContribution == 0 {
			continue
		}
		next, err := types.AddChips(total, p.TotalContribution)
		if err != nil {
			return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
		}
		total = next
		active = append(active, p)
	}
	result := &Result{HandID: handID, Total: total}
	if len(active) == 0 {
		return result, nil
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].TotalContribution != active[j].TotalContribution {
			return active[i].TotalContribution < active[j].TotalContribution
		}
		return active[i].PlayerID < active[j].PlayerID
	})
	levels := make([]types.Chips, 0, len(active))
	for _, p := range active {
		if len(levels) == 0 || levels[len(levels)-1] != p.TotalContribution {
			levels = append(levels, p.TotalContribution)
		}
	}
	var prev types.Chips
	for _, level := range levels {
		layer := level - prev
		var reached int64
		eligible := make([]string, 0, len(active))
		for _, p := range active {
			if p.TotalContribution < level {
				continue
			}
			reached++
			if !p.IsFolded {
				eligible = append(eligible, p.PlayerID)
			}
		}
		amount, err := types.MulChips(layer, reached)
		if err != nil {
			return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
		}
		if amount > 0 {
			result.Pots = append(result.Pots, Pot{Amount: amount, Level: level, Eligible: eligible})
		}
		prev = level
	}
	var laid types.Chips
	for _, pot := range result.Pots {
		laid += pot.Amount
	}
	if laid != total {
		return nil, types.ErrFatal(types.CodeConservation, "pot layout drops chips", map[string]string{
			"handId": handID,
			"total":  strconv.FormatInt(total, 10),
			"laid":   strconv.FormatInt(laid, 10),
		})
	}
	return result, nil
}

// DetermineWinners picks each pot's winners from the ranking map.
// Lower rank wins; ties share. Eligible players missing from the map
// are treated as non-contenders; a pot with no ranked contender is a
// hard error.
func DetermineWinners(result *Result, rankings map[string]int) ([][]string, error) {
	if result == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "layout must not be nil", nil)
	}
	winners := make([][]string, len(result.Pots))
	for i, pot := range result.Pots {
		best := 0
		found := false
		for _, player := range pot.Eligible {
			rank, ok := rankings[player]
			if !ok {
				continue
			}
			if !found || rank < best {
				best = rank
				found = true
			}
		}
		if !found {
			return nil, types.ErrValidation(types.CodeInvalidConfig, "no ranked player eligible for pot", map[string]string{
				"handId": result.HandID, "pot": strconv.Itoa(i),
			})
		}
		for _, player := range pot.Eligible {
			if rank, ok := rankings[player]; ok && rank == best {
				winners[i] = append(winners[i], player)
			}
		}
	}
	return winners, nil
}

// Settle splits each pot between its winners. Every winner receives the
// floored share; the division remainder goes to the first winner in the
// pot's eligibility order. Naming a winner outside a pot's eligible set
// is a hard error.
func Settle(result *Result, winnersPerPot [][]string) (map[string]types.Chips, error) {
	if result == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "layout must not be nil", nil)
	}
	if len(winnersPerPot) != len(result.Pots) {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "winner list count differs from pot count", map[string]string{
			"pots": strconv.Itoa(len(result.Pots)), "winners": strconv.Itoa(len(winnersPerPot)),
		})
	}
	payouts := make(map[string]types.Chips)
	for i, pot := range result.Pots {
		named := make(map[string]struct{}, len(winnersPerPot[i]))
		for _, w := range winnersPerPot[i] {
			if !contains(pot.Eligible, w) {
				return nil, types.ErrValidation(types.CodeInvalidConfig, "winner not eligible for pot", map[string]string{
					"handId": result.HandID, "pot": strconv.Itoa(i), "playerId": w,
				})
			}
			named[w] = struct{}{}
		}
		if len(named) == 0 {
			return nil, types.ErrValidation(types.CodeInvalidConfig, "pot has no winners", map[string]string{
				"handId": result.HandID, "pot": strconv.Itoa(i),
			})
		}
		// Re-derive winner order from eligibility so the odd chip
		// lands deterministically no matter how the caller ordered
		// the list.
		ordered := make([]string, 0, len(named))
		for _, player := range pot.Eligible {
			if _, ok := named[player]; ok {
				ordered = append(ordered, player)
			}
		}
		share := pot.Amount / types.Chips(len(ordered))
		remainder := pot.Amount % types.Chips(len(ordered))
		for j, player := range ordered {
			amount := share
			if j == 0 {
				amount += remainder
			}
			next, err := types.AddChips(payouts[player], amount)
			if err != nil {
				return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": result.HandID})
			}
			payouts[player] = next
		}
	}
	var paid types.Chips
	for _, amount := range payouts {
		paid += amount
	}
	if paid != result.Total {
		return nil, types.ErrFatal(types.CodeConservation, "settlement drops chips", map[string]string{
			"handId": result.HandID,
			"total":  strconv.FormatInt(result.Total, 10),
			"paid":   strconv.FormatInt(paid, 10),
		})
	}
	return payouts, nil
}

// SettleWithRankings composes DetermineWinners and Settle.
func SettleWithRankings(result *Result, rankings map[string]int) (map[string]types.Chips, error) {
	winners, err := DetermineWinners(result, rankings)
	if err != nil {
		return nil, err
	}
	return Settle(result, winners)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
