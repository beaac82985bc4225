package core

import (
	"fmt"
	"sort"

	"cardroom/core/types"
)

// Invariant names, stable across the RPC surface and the event stream.
const (
	InvariantNoNegativeBalances  = "no_negative_balances"
	InvariantBalanceConservation = "balance_conservation"
	InvariantEscrowConsistency   = "escrow_consistency"
	InvariantLockedMatchesEscrow = "locked_matches_escrow"
	InvariantLedgerIntegrity     = "ledger_integrity"
)

// InvariantReport is one verified invariant with the evidence a
// violation leaves behind.
type InvariantReport struct {
	Invariant string `json:"invariant"`
	Valid     bool   `json:"valid"`
	Details   string `json:"details,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

// VerifyInvariants walks every universal invariant of the economy and
// reports each one. Violations do not halt the node by themselves;
// callers decide whether a failed report is fatal.
func (n *Node) VerifyInvariants() []InvariantReport {
	reports := make([]InvariantReport, 0, 5)
	reports = append(reports, n.checkNoNegativeBalances())
	reports = append(reports, n.checkBalanceConservation())
	reports = append(reports, n.checkEscrowConsistency())
	reports = append(reports, n.checkLockedMatchesEscrow())
	reports = append(reports, n.checkLedgerIntegrity())
	return reports
}

func (n *Node) checkNoNegativeBalances() InvariantReport {
	report := InvariantReport{Invariant: InvariantNoNegativeBalances, Valid: true}
	for _, b := range n.balances.Balances() {
		if b.Available < 0 || b.Locked < 0 || b.Pending < 0 {
			report.Valid = false
			report.Details = fmt.Sprintf("player %s has a negative bucket", b.PlayerID)
			report.Actual = fmt.Sprintf("available=%d locked=%d pending=%d", b.Available, b.Locked, b.Pending)
			return report
		}
	}
	return report
}

func (n *Node) checkBalanceConservation() InvariantReport {
	report := InvariantReport{Invariant: InvariantBalanceConservation, Valid: true}
	total, err := n.balances.TotalChips()
	if err != nil {
		report.Valid = false
		report.Details = err.Error()
		return report
	}
	if total < 0 {
		report.Valid = false
		report.Details = "total chips across all balances is negative"
		report.Expected = ">= 0"
		report.Actual = types.FormatChips(total)
	}
	return report
}

func (n *Node) checkEscrowConsistency() InvariantReport {
	report := InvariantReport{Invariant: InvariantEscrowConsistency, Valid: true}
	for _, e := range n.escrows.Escrows() {
		if e.Stack < 0 || e.Committed < 0 || e.TotalBuyIn < 0 || e.TotalCashOut < 0 {
			report.Valid = false
			report.Details = fmt.Sprintf("escrow (%s, %s) out of range", e.TableID, e.PlayerID)
			report.Actual = fmt.Sprintf("stack=%d committed=%d", e.Stack, e.Committed)
			return report
		}
	}
	return report
}

func (n *Node) checkLockedMatchesEscrow() InvariantReport {
	report := InvariantReport{Invariant: InvariantLockedMatchesEscrow, Valid: true}
	lockedByPlayer := make(map[string]types.Chips)
	for _, e := range n.escrows.Escrows() {
		lockedByPlayer[e.PlayerID] += e.LockedTotal()
	}
	players := make([]string, 0, len(lockedByPlayer))
	for id := range lockedByPlayer {
		players = append(players, id)
	}
	for _, b := range n.balances.Balances() {
		if _, seen := lockedByPlayer[b.PlayerID]; !seen && b.Locked != 0 {
			players = append(players, b.PlayerID)
		}
	}
	sort.Strings(players)
	for _, playerID := range players {
		b, err := n.balances.Get(playerID)
		if err != nil {
			report.Valid = false
			report.Details = fmt.Sprintf("player %s has escrow chips but no balance", playerID)
			return report
		}
		if b.Locked != lockedByPlayer[playerID] {
			report.Valid = false
			report.Details = fmt.Sprintf("player %s locked bucket does not match escrow exposure", playerID)
			report.Expected = types.FormatChips(lockedByPlayer[playerID])
			report.Actual = types.FormatChips(b.Locked)
			return report
		}
	}
	return report
}

func (n *Node) checkLedgerIntegrity() InvariantReport {
	report := InvariantReport{Invariant: InvariantLedgerIntegrity, Valid: true}
	valid, brokenAt := n.ledger.VerifyIntegrity()
	if !valid {
		report.Valid = false
		report.Details = "hash chain broken"
		report.Actual = fmt.Sprintf("sequence %d", brokenAt)
	}
	return report
}
