package snapshot

import (
	"strconv"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/types"
	"cardroom/native/balance"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
	"cardroom/native/txn"
)

// Event types the snapshotter emits around recovery.
const (
	EventTypeSnapshotCreated    = "snapshot_created"
	EventTypeRecoveryStarted    = "recovery_started"
	EventTypeRecoveryCompleted  = "recovery_completed"
	EventTypeInvariantViolation = "invariant_violation"
)

// DefaultRetention is how many snapshots the store keeps.
const DefaultRetention = 10

// Options tune snapshot capture and recovery behaviour.
type Options struct {
	// Retention bounds the stored snapshot count; zero means the
	// default.
	Retention int
	// VerifyOnRecovery recomputes the checksum before restoring.
	VerifyOnRecovery bool
	// Strict turns post-recovery invariant violations into errors
	// instead of reported warnings.
	Strict bool
}

// Report summarizes one recovery run.
type Report struct {
	SnapshotID      string   `json:"snapshotId"`
	Version         uint64   `json:"version"`
	BalancesLoaded  int      `json:"balancesLoaded"`
	EscrowsLoaded   int      `json:"escrowsLoaded"`
	SettlementsKept int      `json:"settlementsKept"`
	RolledBackTxns  int      `json:"rolledBackTxns"`
	Violations      []string `json:"violations,omitempty"`
}

// Snapshotter captures and restores the economy image. Capture asks
// each actor in a fixed order (balances, escrows, settlement history)
// for a read-only copy; it refuses overlapping capture requests but
// never blocks the actors themselves.
type Snapshotter struct {
	mu       sync.Mutex
	busy     bool
	version  uint64
	balances *balance.Keeper
	escrows  *escrow.Keeper
	ledger   *ledger.Ledger
	coord    *txn.Coordinator
	store    *Store
	emitter  events.Emitter
	opts     Options
	ids      types.IDSource
	nowFn    func() int64
}

// NewSnapshotter wires a snapshotter over the economy actors. The
// store may be nil for purely in-memory use.
func NewSnapshotter(balances *balance.Keeper, escrows *escrow.Keeper, led *ledger.Ledger, coord *txn.Coordinator, store *Store, opts Options) *Snapshotter {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Snapshotter{
		balances: balances,
		escrows:  escrows,
		ledger:   led,
		coord:    coord,
		store:    store,
		emitter:  events.NoopEmitter{},
		opts:     opts,
		ids:      types.UUIDSource{},
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (s *Snapshotter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SetIDSource overrides the snapshot ID source.
func (s *Snapshotter) SetIDSource(src types.IDSource) {
	if src == nil {
		src = types.UUIDSource{}
	}
	s.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (s *Snapshotter) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	s.nowFn = now
}

// Version returns the last assigned snapshot version.
func (s *Snapshotter) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Snapshotter) emit(evt *types.Event) {
	if s.emitter != nil && evt != nil {
		s.emitter.Emit(events.Wrap(evt))
	}
}

// Create captures a new snapshot, persists it when a store is wired
// and prunes beyond the retention bound. A second capture while one is
// in flight is refused.
func (s *Snapshotter) Create() (*EconomySnapshot, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, types.ErrPrecondition(types.CodeInvalidState, "snapshot already in progress", nil)
	}
	s.busy = true
	s.version++
	version := s.version
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	snap := &EconomySnapshot{
		SnapshotID:        types.NewID(types.PrefixSnapshot, s.ids),
		Version:           version,
		Timestamp:         s.nowFn(),
		Balances:          s.balances.Balances(),
		Escrows:           s.escrows.Escrows(),
		SettlementHistory: s.ledger.SettlementHistory(),
	}
	if s.coord != nil {
		for _, tx := range s.coord.Transactions() {
			if tx.Status == txn.StatusPending {
				snap.PendingTxns++
			}
		}
	}
	snap.normalize()
	snap.Checksum = snap.ComputeChecksum()

	if s.store != nil {
		if err := s.store.Save(snap); err != nil {
			return nil, err
		}
		if _, err := s.store.Prune(s.opts.Retention); err != nil {
			return nil, err
		}
	}
	s.emit(&types.Event{Type: EventTypeSnapshotCreated, Attributes: map[string]string{
		"snapshotId": snap.SnapshotID,
		"version":    strconv.FormatUint(snap.Version, 10),
	}})
	return snap, nil
}

// RecoverLatest restores from the newest stored snapshot.
func (s *Snapshotter) RecoverLatest() (*Report, error) {
	if s.store == nil {
		return nil, types.ErrPrecondition(types.CodeInvalidState, "no snapshot store configured", nil)
	}
	snap, ok, err := s.store.Latest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.ErrPrecondition(types.CodeInvalidState, "no snapshot available", nil)
	}
	return s.Recover(snap)
}

// Recover restores the economy to the snapshot's state: balances are
// rebuilt through the public bucket operations, escrows through the
// privileged restore path, and the settlement history reloaded so
// settlement idempotency survives the restart.
func (s *Snapshotter) Recover(snap *EconomySnapshot) (*Report, error) {
	if snap == nil {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "snapshot must not be nil", nil)
	}
	if s.opts.VerifyOnRecovery {
		if err := snap.Verify(); err != nil {
			return nil, err
		}
	}
	s.emit(&types.Event{Type: EventTypeRecoveryStarted, Attributes: map[string]string{
		"snapshotId": snap.SnapshotID,
	}})

	s.balances.Clear()
	s.escrows.Clear()

	for _, b := range snap.Balances {
		if err := s.restoreBalance(b); err != nil {
			return nil, err
		}
	}
	for _, e := range snap.Escrows {
		if err := s.escrows.RestoreEscrow(e); err != nil {
			return nil, err
		}
	}
	s.ledger.RestoreSettlements(snap.SettlementHistory)

	report := &Report{
		SnapshotID:      snap.SnapshotID,
		Version:         snap.Version,
		BalancesLoaded:  len(snap.Balances),
		EscrowsLoaded:   len(snap.Escrows),
		SettlementsKept: len(snap.SettlementHistory),
		RolledBackTxns:  snap.PendingTxns,
	}
	report.Violations = s.verifyInvariants()
	for _, violation := range report.Violations {
		s.emit(&types.Event{Type: EventTypeInvariantViolation, Attributes: map[string]string{
			"violation": violation,
		}})
	}
	if len(report.Violations) > 0 && s.opts.Strict {
		return report, types.ErrFatal(types.CodeConservation, "invariants violated after recovery", map[string]string{
			"snapshotId": snap.SnapshotID,
			"violations": report.Violations[0],
		})
	}

	s.mu.Lock()
	if snap.Version > s.version {
		s.version = snap.Version
	}
	s.mu.Unlock()

	s.emit(&types.Event{Type: EventTypeRecoveryCompleted, Attributes: map[string]string{
		"snapshotId": snap.SnapshotID,
		"balances":   strconv.Itoa(report.BalancesLoaded),
		"escrows":    strconv.Itoa(report.EscrowsLoaded),
	}})
	return report, nil
}

// restoreBalance rebuilds all three buckets through the public keeper
// operations: create with available, credit-and-lock the locked
// amount, credit-and-move the pending amount.
func (s *Snapshotter) restoreBalance(b *balance.PlayerBalance) error {
	if _, err := s.balances.Initialize(b.PlayerID, b.Available); err != nil {
		return err
	}
	if b.Locked > 0 {
		if _, err := s.balances.Credit(b.PlayerID, b.Locked, "recovery"); err != nil {
			return err
		}
		if _, err := s.balances.Lock(b.PlayerID, b.Locked); err != nil {
			return err
		}
	}
	if b.Pending > 0 {
		if _, err := s.balances.Credit(b.PlayerID, b.Pending, "recovery"); err != nil {
			return err
		}
		if _, err := s.balances.MoveToPending(b.PlayerID, b.Pending); err != nil {
			return err
		}
	}
	return nil
}

// verifyInvariants checks the restored state: no negative buckets, no
// negative escrow amounts, and each player's locked bucket matching
// their escrow exposure.
func (s *Snapshotter) verifyInvariants() []string {
	var violations []string
	for _, b := range s.balances.Balances() {
		if b.Available < 0 || b.Locked < 0 || b.Pending < 0 {
			violations = append(violations, "negative balance bucket for "+b.PlayerID)
		}
		if locked := s.escrows.LockedTotalFor(b.PlayerID); locked != b.Locked {
			violations = append(violations, "locked bucket does not match escrow exposure for "+b.PlayerID)
		}
	}
	for _, e := range s.escrows.Escrows() {
		if e.Stack < 0 || e.Committed < 0 {
			violations = append(violations, "negative escrow amounts for "+e.PlayerID+" at "+e.TableID)
		}
	}
	return violations
}
