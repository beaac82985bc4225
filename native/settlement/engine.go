// Package settlement converts a completed hand's contributions into
// escrow awards, rake and ledger records, atomically and exactly once
// per (table, hand). The engine runs inside the owning table's actor;
// it is the only component that writes escrow and ledger state within
// one transaction.
package settlement

import (
	"strings"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/types"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
	"cardroom/native/pot"
	"cardroom/native/rake"
	"cardroom/native/sidepot"
	"cardroom/native/txn"
)

// EscrowOps is the slice of the escrow keeper the engine drives.
type EscrowOps interface {
	AwardPot(tableID, playerID string, amount types.Chips) (*escrow.TableEscrow, error)
}

// LedgerOps is the slice of the ledger the engine drives.
type LedgerOps interface {
	RecordPotWin(playerID, handID, tableID string, amount, balanceAfter types.Chips) (*ledger.Entry, error)
	RecordRake(handID, tableID string, amount types.Chips) (*ledger.Entry, error)
	RecordSettlement(*ledger.SettlementRecord) (*ledger.SettlementRecord, error)
	VerifyHandConservation(handID string) (bool, types.Chips, error)
	SettlementFor(tableID, handID string) (*ledger.SettlementRecord, bool)
}

// Engine orchestrates hand settlement.
type Engine struct {
	mu       sync.Mutex
	escrows  EscrowOps
	ledger   LedgerOps
	coord    *txn.Coordinator
	emitter  events.Emitter
	outcomes map[string]*Outcome
	ids      types.IDSource
	nowFn    func() int64
}

// NewEngine wires the settlement engine to its collaborators.
func NewEngine(escrows EscrowOps, ledgerOps LedgerOps, coord *txn.Coordinator) *Engine {
	if coord == nil {
		coord = txn.NewCoordinator()
	}
	return &Engine{
		escrows:  escrows,
		ledger:   ledgerOps,
		coord:    coord,
		emitter:  events.NoopEmitter{},
		outcomes: make(map[string]*Outcome),
		ids:      types.UUIDSource{},
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetIDSource overrides the settlement ID source.
func (e *Engine) SetIDSource(src types.IDSource) {
	if src == nil {
		src = types.UUIDSource{}
	}
	e.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil && evt != nil {
		e.emitter.Emit(events.Wrap(evt))
	}
}

// SettleHand settles one completed hand against the table's frozen
// rake policy. Replaying the same (table, hand) returns the stored
// outcome verbatim and writes nothing.
func (e *Engine) SettleHand(req Request, policy *rake.Evaluator, hand *pot.Builder) (*Outcome, error) {
	handID := strings.TrimSpace(req.HandID)
	tableID := strings.TrimSpace(req.TableID)
	if handID == "" || tableID == "" {
		return nil, types.ErrValidation(types.CodeInvalidID, "settlement ids must not be empty", nil)
	}
	if policy == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "rake policy must not be nil", map[string]string{
			"tableId": tableID,
		})
	}
	key := types.SettlementKey(tableID, handID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if prior := e.priorOutcomeLocked(key, tableID, handID); prior != nil {
		return prior, nil
	}

	e.emit(newSettlementEvent(EventTypeSettlementStarted, &Outcome{HandID: handID, TableID: tableID}))

	plan, err := buildPlan(handID, tableID, req, policy)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		SettlementID:  types.NewID(types.PrefixSettlement, e.ids),
		HandID:        handID,
		TableID:       tableID,
		Timestamp:     e.nowFn(),
		TotalPot:      plan.totalPot,
		RakeCollected: plan.rakeAmount,
		Payouts:       plan.payouts,
		Pots:          plan.layout.Pots,
		Rake:          plan.rakeResult,
	}

	// Awards, ledger entries and the settlement record commit as one
	// transaction. Pot awards and rake have no intrinsic rollback;
	// idempotency at this level is what makes that safe.
	builder := e.coord.Begin().
		WithHand(handID).
		WithTable(tableID).
		WithIdempotencyKey(key)
	for _, recipient := range plan.order {
		playerID := recipient
		amount := plan.payouts[playerID]
		builder.Op(txn.OpAwardPot, "award "+playerID, func() error {
			esc, err := e.escrows.AwardPot(tableID, playerID, amount)
			if err != nil {
				return err
			}
			entry, err := e.ledger.RecordPotWin(playerID, handID, tableID, amount, esc.Stack)
			if err != nil {
				return err
			}
			outcome.EntryIDs = append(outcome.EntryIDs, entry.EntryID)
			return nil
		}, nil)
	}
	if plan.rakeAmount > 0 {
		builder.Op(txn.OpCollectRake, "collect rake", func() error {
			entry, err := e.ledger.RecordRake(handID, tableID, plan.rakeAmount)
			if err != nil {
				return err
			}
			outcome.EntryIDs = append(outcome.EntryIDs, entry.EntryID)
			return nil
		}, nil)
	}
	builder.Op(txn.OpRecordSummary, "record settlement", func() error {
		chipsAfter, err := types.AddChips(plan.payoutSum, plan.rakeAmount)
		if err != nil {
			return types.ErrFatal(types.CodeAmountOverflow, err.Error(), map[string]string{"handId": handID})
		}
		_, err = e.ledger.RecordSettlement(&ledger.SettlementRecord{
			SettlementID:       outcome.SettlementID,
			HandID:             handID,
			TableID:            tableID,
			Timestamp:          outcome.Timestamp,
			TotalPot:           plan.totalPot,
			RakeCollected:      plan.rakeAmount,
			PlayerPayouts:      plan.payouts,
			ReferencedEntryIDs: append([]string(nil), outcome.EntryIDs...),
			ChipsBefore:        plan.totalPot,
			ChipsAfter:         chipsAfter,
		})
		return err
	}, nil)

	res := builder.Commit()
	if !res.Success {
		return nil, res.Err
	}

	ok, residual, err := e.ledger.VerifyHandConservation(handID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The transaction already committed; the table is corrupt and
		// must be recovered from a snapshot.
		return nil, types.ErrFatal(types.CodeConservation, "hand conservation broken after commit", map[string]string{
			"handId":   handID,
			"tableId":  tableID,
			"residual": types.FormatChips(residual),
		})
	}

	if hand != nil {
		if err := hand.MarkSettled(); err != nil {
			return nil, err
		}
	}
	e.outcomes[key] = outcome
	e.emit(newSettlementEvent(EventTypeSettlementCompleted, outcome))
	return outcome.Clone(), nil
}

// SettleUncontested settles a hand everyone else folded out of: the
// whole pot goes to one winner, with the rake evaluator told the hand
// was uncontested (usually a waiver).
func (e *Engine) SettleUncontested(handID, tableID, winnerID string, potTotal types.Chips, finalStreet types.Street, flopSeen bool, policy *rake.Evaluator, hand *pot.Builder) (*Outcome, error) {
	if potTotal <= 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "pot total must be positive", map[string]string{
			"handId": handID,
		})
	}
	return e.SettleHand(Request{
		HandID:  handID,
		TableID: tableID,
		PlayerStates: []sidepot.PlayerState{
			{PlayerID: winnerID, TotalContribution: potTotal},
		},
		WinnerRankings: map[string]int{winnerID: 1},
		FinalStreet:    finalStreet,
		FlopSeen:       flopSeen,
		IsUncontested:  true,
		PlayersInHand:  1,
	}, policy, hand)
}

// PreviewSettlement projects the layout, rake and payouts without
// touching any state.
func (e *Engine) PreviewSettlement(req Request, policy *rake.Evaluator) (*Preview, error) {
	handID := strings.TrimSpace(req.HandID)
	tableID := strings.TrimSpace(req.TableID)
	if policy == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "rake policy must not be nil", nil)
	}
	plan, err := buildPlan(handID, tableID, req, policy)
	if err != nil {
		return nil, err
	}
	return &Preview{
		HandID:        handID,
		TableID:       tableID,
		TotalPot:      plan.totalPot,
		Pots:          plan.layout.Pots,
		Rake:          plan.rakeResult,
		Payouts:       plan.payouts,
		RakeCollected: plan.rakeAmount,
	}, nil
}

// Outcomes returns the in-memory outcome for the pair, if any.
func (e *Engine) Outcome(tableID, handID string) (*Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.outcomes[types.SettlementKey(strings.TrimSpace(tableID), strings.TrimSpace(handID))]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// priorOutcomeLocked resolves a replay: first the in-memory outcome,
// then, after a restart, the settlement record reloaded from the
// snapshot.
func (e *Engine) priorOutcomeLocked(key, tableID, handID string) *Outcome {
	if prior, ok := e.outcomes[key]; ok {
		replay := prior.Clone()
		replay.Replayed = true
		return replay
	}
	rec, ok := e.ledger.SettlementFor(tableID, handID)
	if !ok {
		return nil
	}
	restored := &Outcome{
		SettlementID:  rec.SettlementID,
		HandID:        rec.HandID,
		TableID:       rec.TableID,
		Timestamp:     rec.Timestamp,
		TotalPot:      rec.TotalPot,
		RakeCollected: rec.RakeCollected,
		Payouts:       rec.PlayerPayouts,
		EntryIDs:      rec.ReferencedEntryIDs,
		Replayed:      true,
	}
	e.outcomes[key] = restored.Clone()
	e.outcomes[key].Replayed = false
	return restored
}

// plan is the deterministic pre-commit computation of a settlement.
type plan struct {
	layout     *sidepot.Result
	totalPot   types.Chips
	rakeResult *rake.Result
	rakeAmount types.Chips
	payouts    map[string]types.Chips
	payoutSum  types.Chips
	order      []string
}

func buildPlan(handID, tableID string, req Request, policy *rake.Evaluator) (*plan, error) {
	layout, err := sidepot.Compute(handID, req.PlayerStates)
	if err != nil {
		return nil, err
	}
	if layout.Total == 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "hand has no contributions to settle", map[string]string{
			"handId": handID,
		})
	}
	rawPayouts, err := sidepot.SettleWithRankings(layout, req.WinnerRankings)
	if err != nil {
		return nil, err
	}
	rakeResult, err := policy.Evaluate(rake.Input{
		PotSize:       layout.Total,
		FinalStreet:   req.FinalStreet,
		FlopSeen:      req.FlopSeen,
		IsUncontested: req.IsUncontested,
	})
	if err != nil {
		return nil, err
	}

	order := recipientOrder(layout, rawPayouts)
	payouts, payoutSum, err := scalePayouts(layout.Total, rakeResult.PotAfterRake, rawPayouts, order)
	if err != nil {
		return nil, err
	}
	// Zero-chip recipients carry no award.
	final := make([]string, 0, len(order))
	for _, playerID := range order {
		if payouts[playerID] > 0 {
			final = append(final, playerID)
		} else {
			delete(payouts, playerID)
		}
	}
	return &plan{
		layout:     layout,
		totalPot:   layout.Total,
		rakeResult: rakeResult,
		rakeAmount: rakeResult.RakeAmount,
		payouts:    payouts,
		payoutSum:  payoutSum,
		order:      final,
	}, nil
}

// recipientOrder fixes the deterministic payout iteration: players in
// the order they first appear across the layered pots' eligibility
// lists, which themselves follow the sorted contribution order.
func recipientOrder(layout *sidepot.Result, payouts map[string]types.Chips) []string {
	seen := make(map[string]struct{}, len(payouts))
	order := make([]string, 0, len(payouts))
	for _, p := range layout.Pots {
		for _, playerID := range p.Eligible {
			if _, ok := payouts[playerID]; !ok {
				continue
			}
			if _, ok := seen[playerID]; ok {
				continue
			}
			seen[playerID] = struct{}{}
			order = append(order, playerID)
		}
	}
	return order
}

// scalePayouts shrinks the raw payouts proportionally to the raked
// pot, flooring each share. The flooring remainder goes to the first
// recipient with a positive floored payout.
func scalePayouts(totalPot, potAfterRake types.Chips, raw map[string]types.Chips, order []string) (map[string]types.Chips, types.Chips, error) {
	payouts := make(map[string]types.Chips, len(raw))
	if potAfterRake == totalPot {
		var sum types.Chips
		for playerID, amount := range raw {
			payouts[playerID] = amount
			sum += amount
		}
		return payouts, sum, nil
	}
	var floored types.Chips
	for _, playerID := range order {
		scaled, err := types.MulDivChips(raw[playerID], potAfterRake, totalPot)
		if err != nil {
			return nil, 0, types.ErrFatal(types.CodeAmountOverflow, err.Error(), nil)
		}
		payouts[playerID] = scaled
		floored += scaled
	}
	remainder := potAfterRake - floored
	if remainder > 0 {
		target := ""
		for _, playerID := range order {
			if payouts[playerID] > 0 {
				target = playerID
				break
			}
		}
		if target == "" && len(order) > 0 {
			target = order[0]
		}
		if target != "" {
			payouts[target] += remainder
			floored += remainder
		}
	}
	return payouts, floored, nil
}
