// Package core wires the economy actors into one Node: the balance and
// escrow keepers, the hash-chained ledger, the transaction coordinator,
// the settlement engine, the table authority and the snapshotter. The
// Node is the only type the RPC surface talks to; it adds the halt
// latch that fences writes off a table (or the whole room) once a
// fatal integrity error has been observed.
package core

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/snapshot"
	"cardroom/core/types"
	"cardroom/native/authority"
	"cardroom/native/balance"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
	"cardroom/native/pot"
	"cardroom/native/rake"
	"cardroom/native/settlement"
	"cardroom/native/txn"
	"cardroom/observability"
	"cardroom/observability/metrics"
)

// Options configure a Node at construction.
type Options struct {
	// Archive receives every committed ledger entry and settlement
	// record as an audit sink. Nil disables archiving.
	Archive ledger.Archive
	// SnapshotStore persists snapshots. Nil keeps snapshots in
	// memory only.
	SnapshotStore *snapshot.Store
	// Snapshot tunes capture retention and recovery verification.
	Snapshot snapshot.Options
	// TxnLogCap bounds the coordinator's transaction log. Zero keeps
	// the coordinator default.
	TxnLogCap int
	// Logger receives structured diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// Node owns every economy actor and the halt latch.
type Node struct {
	balances  *balance.Keeper
	escrows   *escrow.Keeper
	ledger    *ledger.Ledger
	coord     *txn.Coordinator
	settle    *settlement.Engine
	authority *authority.Authority
	snapshots *snapshot.Snapshotter
	logger    *slog.Logger

	haltMu       sync.RWMutex
	globalHalt   string
	haltedTables map[string]string
}

// NewNode wires a complete economy core.
func NewNode(opts Options) *Node {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	balances := balance.NewKeeper(nil)
	escrows := escrow.NewKeeper(nil, balances)
	balances.SetEmitter(observability.CountingEmitter{})
	escrows.SetEmitter(observability.CountingEmitter{})
	led := ledger.New()
	if opts.Archive != nil {
		led.SetArchive(opts.Archive)
	}
	coord := txn.NewCoordinator()
	coord.SetLogger(logger)
	if opts.TxnLogCap > 0 {
		coord.SetLogCap(opts.TxnLogCap)
	}
	settle := settlement.NewEngine(escrows, led, coord)
	auth := authority.New(nil, balances, escrows, led, coord, settle)
	snapshots := snapshot.NewSnapshotter(balances, escrows, led, coord, opts.SnapshotStore, opts.Snapshot)

	n := &Node{
		balances:     balances,
		escrows:      escrows,
		ledger:       led,
		coord:        coord,
		settle:       settle,
		authority:    auth,
		snapshots:    snapshots,
		logger:       logger,
		haltedTables: make(map[string]string),
	}
	snapshots.SetEmitter(observability.CountingEmitter{Next: snapshotForwarder{n}})
	return n
}

// snapshotForwarder copies snapshotter events (recovery lifecycle,
// invariant violations) into the authority event log so the stream
// carries them.
type snapshotForwarder struct{ n *Node }

func (f snapshotForwarder) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	f.n.authority.EventLog().Append(&authority.Event{
		Type:      payload.Type,
		Data:      payload.Attributes,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Authority exposes the table authority for queries.
func (n *Node) Authority() *authority.Authority { return n.authority }

// Ledger exposes the ledger for queries.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Snapshots exposes the snapshotter.
func (n *Node) Snapshots() *snapshot.Snapshotter { return n.snapshots }

// ---- halt latch ----

// Halted reports the global halt reason, if any.
func (n *Node) Halted() (string, bool) {
	n.haltMu.RLock()
	defer n.haltMu.RUnlock()
	return n.globalHalt, n.globalHalt != ""
}

// TableHalted reports the table's halt reason, if any.
func (n *Node) TableHalted(tableID string) (string, bool) {
	n.haltMu.RLock()
	defer n.haltMu.RUnlock()
	if n.globalHalt != "" {
		return n.globalHalt, true
	}
	reason, ok := n.haltedTables[tableID]
	return reason, ok
}

func (n *Node) haltTable(tableID, reason string) {
	n.haltMu.Lock()
	n.haltedTables[tableID] = reason
	n.haltMu.Unlock()
	n.logger.Error("table halted", "tableId", tableID, "reason", reason)
}

func (n *Node) haltGlobal(reason string) {
	n.haltMu.Lock()
	n.globalHalt = reason
	n.haltMu.Unlock()
	n.logger.Error("economy halted", "reason", reason)
}

// clearHalt releases every latch. Only recovery calls it; a snapshot
// restore is the supported remediation for fatal errors.
func (n *Node) clearHalt() {
	n.haltMu.Lock()
	n.globalHalt = ""
	n.haltedTables = make(map[string]string)
	n.haltMu.Unlock()
}

var errHalted = types.ErrFatal(types.CodeInvalidState, "economy halted pending operator recovery", nil)

func (n *Node) guard(tableID string) error {
	if reason, halted := n.TableHalted(tableID); halted {
		return errHalted.WithDetail("reason", reason)
	}
	return nil
}

// noteFatal trips the halt latch when err is a fatal economy error.
// Ledger integrity failures halt globally; everything else halts the
// affected table.
func (n *Node) noteFatal(tableID string, err error) {
	var econ *types.EconomyError
	if !errors.As(err, &econ) || !econ.Fatal() {
		return
	}
	n.authority.EventLog().Append(&authority.Event{
		Type:    authority.EventInvariantViolation,
		TableID: tableID,
		Data: map[string]string{
			"code":   string(econ.Code),
			"detail": econ.Message,
		},
		Timestamp: time.Now().UnixMilli(),
	})
	if econ.Code == types.CodeLedgerIntegrity {
		n.haltGlobal(string(econ.Code))
		return
	}
	if tableID != "" {
		n.haltTable(tableID, string(econ.Code))
		return
	}
	n.haltGlobal(string(econ.Code))
}

// ---- authority pass-through (halt-guarded) ----

// do runs one authority mutation behind the halt guard, recording the
// denial metric when the engine refuses.
func (n *Node) do(tableID string, fn func() *authority.Response) (*authority.Response, error) {
	if err := n.guard(tableID); err != nil {
		return nil, err
	}
	resp := fn()
	if resp != nil && !resp.Success {
		metrics.Economy().ObserveAuthorizationDenial(resp.Error)
	}
	return resp, nil
}

func (n *Node) CreateClub(callerID, name string, cfg authority.ClubConfig, policy rake.Config) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.CreateClub(callerID, name, cfg, policy) })
}

func (n *Node) UpdateClubConfig(clubID, callerID string, cfg authority.ClubConfig) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.UpdateClubConfig(clubID, callerID, cfg) })
}

func (n *Node) UpdateRakePolicy(clubID, callerID string, policy rake.Config) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.UpdateRakePolicy(clubID, callerID, policy) })
}

func (n *Node) DeleteClub(clubID, callerID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.DeleteClub(clubID, callerID) })
}

func (n *Node) InviteMember(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.InviteMember(clubID, callerID, targetID) })
}

func (n *Node) AcceptInvitation(clubID, callerID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.AcceptInvitation(clubID, callerID) })
}

func (n *Node) RemoveMember(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.RemoveMember(clubID, callerID, targetID) })
}

func (n *Node) BanMember(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.BanMember(clubID, callerID, targetID) })
}

func (n *Node) UnbanMember(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.UnbanMember(clubID, callerID, targetID) })
}

func (n *Node) PromoteToManager(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.PromoteToManager(clubID, callerID, targetID) })
}

func (n *Node) DemoteFromManager(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.DemoteFromManager(clubID, callerID, targetID) })
}

func (n *Node) TransferOwnership(clubID, callerID, targetID string) (*authority.Response, error) {
	return n.do("", func() *authority.Response { return n.authority.TransferOwnership(clubID, callerID, targetID) })
}

func (n *Node) CreateTable(clubID, callerID, name string) (*authority.Response, error) {
	resp, err := n.do("", func() *authority.Response { return n.authority.CreateTable(clubID, callerID, name) })
	n.updateTableGauge()
	return resp, err
}

func (n *Node) CloseTable(clubID, callerID, tableID string) (*authority.Response, error) {
	resp, err := n.do(tableID, func() *authority.Response { return n.authority.CloseTable(clubID, callerID, tableID) })
	n.updateTableGauge()
	return resp, err
}

func (n *Node) PauseTable(clubID, callerID, tableID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.PauseTable(clubID, callerID, tableID) })
}

func (n *Node) ResumeTable(clubID, callerID, tableID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.ResumeTable(clubID, callerID, tableID) })
}

func (n *Node) JoinTable(clubID, callerID, tableID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.JoinTable(clubID, callerID, tableID) })
}

func (n *Node) LeaveTable(clubID, callerID, tableID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.LeaveTable(clubID, callerID, tableID) })
}

func (n *Node) BuyIn(clubID, callerID, tableID string, amount types.Chips) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.BuyIn(clubID, callerID, tableID, amount) })
}

func (n *Node) CashOut(clubID, callerID, tableID string, amount types.Chips) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.CashOut(clubID, callerID, tableID, amount) })
}

func (n *Node) Rebuy(clubID, callerID, tableID string, amount types.Chips) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.Rebuy(clubID, callerID, tableID, amount) })
}

func (n *Node) TopUp(clubID, callerID, tableID string, amount types.Chips) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.TopUp(clubID, callerID, tableID, amount) })
}

func (n *Node) KickPlayer(clubID, callerID, tableID, targetID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.KickPlayer(clubID, callerID, tableID, targetID) })
}

func (n *Node) StartHand(clubID, callerID, tableID string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response { return n.authority.StartHand(clubID, callerID, tableID) })
}

func (n *Node) ForceAction(clubID, callerID, tableID, targetID, forced string) (*authority.Response, error) {
	return n.do(tableID, func() *authority.Response {
		return n.authority.ForceAction(clubID, callerID, tableID, targetID, forced)
	})
}

// ---- hand engine surface ----

// PostBetAction commits one betting action from the hand engine.
func (n *Node) PostBetAction(tableID, playerID string, amount types.Chips, street types.Street, isBlind bool) error {
	if err := n.guard(tableID); err != nil {
		return err
	}
	err := n.authority.PostBetAction(tableID, playerID, amount, street, isBlind)
	if err != nil {
		n.noteFatal(tableID, err)
	}
	return err
}

// PlayerFolded drops the player from pot eligibility.
func (n *Node) PlayerFolded(tableID, playerID string) error {
	if err := n.guard(tableID); err != nil {
		return err
	}
	return n.authority.PlayerFolded(tableID, playerID)
}

// EndHand settles the open hand on the table.
func (n *Node) EndHand(tableID string, req settlement.Request) (*settlement.Outcome, error) {
	if err := n.guard(tableID); err != nil {
		return nil, err
	}
	outcome, err := n.authority.EndHand(tableID, req)
	n.observeSettlement(tableID, outcome, err)
	return outcome, err
}

// EndHandUncontested settles a hand everyone folded out of.
func (n *Node) EndHandUncontested(tableID, winnerID string, finalStreet types.Street, flopSeen bool) (*settlement.Outcome, error) {
	if err := n.guard(tableID); err != nil {
		return nil, err
	}
	outcome, err := n.authority.EndHandUncontested(tableID, winnerID, finalStreet, flopSeen)
	n.observeSettlement(tableID, outcome, err)
	return outcome, err
}

func (n *Node) observeSettlement(tableID string, outcome *settlement.Outcome, err error) {
	econ := metrics.Economy()
	switch {
	case err != nil:
		econ.ObserveSettlement("failed")
		n.noteFatal(tableID, err)
	case outcome != nil && outcome.Replayed:
		econ.ObserveSettlement("replayed")
	default:
		econ.ObserveSettlement("settled")
		econ.ObserveHandPlayed()
		if outcome != nil {
			econ.AddRake(outcome.RakeCollected)
		}
		econ.SetChainLength(len(n.ledger.Entries()))
	}
}

func (n *Node) updateTableGauge() {
	open := 0
	for _, t := range n.authority.Tables() {
		if t.Status != authority.TableClosed {
			open++
		}
	}
	metrics.Economy().SetActiveTables(open)
}

// ---- player funds outside any table ----

// InitializePlayer creates the player's balance with an opening amount.
func (n *Node) InitializePlayer(playerID string, initial types.Chips) (*balance.PlayerBalance, error) {
	if err := n.guard(""); err != nil {
		return nil, err
	}
	return n.balances.Initialize(playerID, initial)
}

// Deposit credits the player's available bucket and records the entry.
func (n *Node) Deposit(playerID string, amount types.Chips) (*balance.PlayerBalance, error) {
	if err := n.guard(""); err != nil {
		return nil, err
	}
	var after *balance.PlayerBalance
	commit := n.coord.Begin().
		Op(txn.OpBuyIn, "deposit", func() error {
			b, err := n.balances.Credit(playerID, amount, "deposit")
			if err != nil {
				return err
			}
			after = b
			return nil
		}, func() error {
			_, err := n.balances.Debit(playerID, amount, "deposit rollback")
			return err
		}).
		Op(txn.OpLedgerEntry, "ledger deposit", func() error {
			_, err := n.ledger.RecordDeposit(playerID, amount, after.Available)
			return err
		}, nil).
		Commit()
	if !commit.Success {
		return nil, commit.Err
	}
	return after, nil
}

// Withdraw debits the player's available bucket and records the entry.
func (n *Node) Withdraw(playerID string, amount types.Chips) (*balance.PlayerBalance, error) {
	if err := n.guard(""); err != nil {
		return nil, err
	}
	var after *balance.PlayerBalance
	commit := n.coord.Begin().
		Op(txn.OpCashOut, "withdraw", func() error {
			b, err := n.balances.Debit(playerID, amount, "withdrawal")
			if err != nil {
				return err
			}
			after = b
			return nil
		}, func() error {
			_, err := n.balances.Credit(playerID, amount, "withdrawal rollback")
			return err
		}).
		Op(txn.OpLedgerEntry, "ledger withdrawal", func() error {
			_, err := n.ledger.RecordWithdrawal(playerID, amount, after.Available)
			return err
		}, nil).
		Commit()
	if !commit.Success {
		return nil, commit.Err
	}
	return after, nil
}

// ---- queries ----

// GetBalance returns a copy of the player's balance.
func (n *Node) GetBalance(playerID string) (*balance.PlayerBalance, error) {
	return n.balances.Get(playerID)
}

// GetEscrow returns a copy of the (table, player) escrow.
func (n *Node) GetEscrow(tableID, playerID string) (*escrow.TableEscrow, error) {
	return n.escrows.Get(tableID, playerID)
}

// EscrowsByTable returns every escrow at the table.
func (n *Node) EscrowsByTable(tableID string) []*escrow.TableEscrow {
	return n.escrows.EscrowsByTable(tableID)
}

// GetTable returns a copy of the table record.
func (n *Node) GetTable(tableID string) (*authority.Table, bool) {
	return n.authority.GetTable(tableID)
}

// Tables returns every table record.
func (n *Node) Tables() []*authority.Table { return n.authority.Tables() }

// CurrentPot returns the open hand's pot snapshot.
func (n *Node) CurrentPot(tableID string) (*pot.Pot, bool) {
	return n.authority.CurrentPot(tableID)
}

// LedgerEntriesByPlayer returns the player's ledger entries.
func (n *Node) LedgerEntriesByPlayer(playerID string) []*ledger.Entry {
	return n.ledger.EntriesByPlayer(playerID)
}

// LedgerEntriesByHand returns the hand's ledger entries.
func (n *Node) LedgerEntriesByHand(handID string) []*ledger.Entry {
	return n.ledger.EntriesByHand(handID)
}

// LedgerEntriesByTable returns the table's ledger entries.
func (n *Node) LedgerEntriesByTable(tableID string) []*ledger.Entry {
	return n.ledger.EntriesByTable(tableID)
}

// GetSettlement returns the settlement record for the (table, hand)
// pair, if settled.
func (n *Node) GetSettlement(tableID, handID string) (*ledger.SettlementRecord, bool) {
	return n.ledger.SettlementFor(tableID, handID)
}

// SettlementHistory returns every settlement record.
func (n *Node) SettlementHistory() []*ledger.SettlementRecord {
	return n.ledger.SettlementHistory()
}

// PreviewSettlement projects a settlement without touching state. The
// club's current rake policy stands in when no hand is open; an open
// hand uses the frozen policy.
func (n *Node) PreviewSettlement(req settlement.Request) (*settlement.Preview, error) {
	policy, err := n.authority.PolicyFor(req.TableID)
	if err != nil {
		return nil, err
	}
	return n.settle.PreviewSettlement(req, policy)
}

// Transactions returns the coordinator's transaction log.
func (n *Node) Transactions() []*txn.Transaction { return n.coord.Transactions() }

// PurgeTransactions drops non-pending transactions older than maxAge.
func (n *Node) PurgeTransactions(maxAge time.Duration) int { return n.coord.Purge(maxAge) }

// EventsSince returns authority events after the cursor.
func (n *Node) EventsSince(cursor uint64) []*authority.Event {
	return n.authority.EventLog().EventsSince(cursor)
}

// SubscribeEvents subscribes to the authority event stream.
func (n *Node) SubscribeEvents() (<-chan *authority.Event, func()) {
	return n.authority.EventLog().Subscribe()
}

// ---- snapshot & recovery ----

// CreateSnapshot captures a coherent economy image.
func (n *Node) CreateSnapshot() (*snapshot.EconomySnapshot, error) {
	snap, err := n.snapshots.Create()
	if err != nil {
		return nil, err
	}
	metrics.Economy().SetSnapshotVersion(snap.Version)
	return snap, nil
}

// RecoverLatest restores the most recent stored snapshot and releases
// the halt latch.
func (n *Node) RecoverLatest() (*snapshot.Report, error) {
	report, err := n.snapshots.RecoverLatest()
	if err != nil {
		return nil, err
	}
	n.clearHalt()
	metrics.Economy().SetSnapshotVersion(report.Version)
	return report, nil
}

// RecoverSnapshot restores the given snapshot and releases the halt
// latch.
func (n *Node) RecoverSnapshot(snap *snapshot.EconomySnapshot) (*snapshot.Report, error) {
	report, err := n.snapshots.Recover(snap)
	if err != nil {
		return nil, err
	}
	n.clearHalt()
	metrics.Economy().SetSnapshotVersion(report.Version)
	return report, nil
}
