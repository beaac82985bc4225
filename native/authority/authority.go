// Package authority is the single externally facing surface of the
// economy core. Every mutation runs through role-based authorization,
// appends exactly one event to the authority log, and only then drives
// the balance, escrow, pot, ledger and settlement components.
package authority

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"cardroom/core/events"
	"cardroom/core/types"
	"cardroom/native/balance"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
	"cardroom/native/pot"
	"cardroom/native/rake"
	"cardroom/native/settlement"
	"cardroom/native/txn"
)

// tableState is one table's actor: a mutex serializing all mutations
// that touch the table's pot, escrow rows, hand state and events,
// plus the rake policy frozen for the duration of an open hand.
type tableState struct {
	mu     sync.Mutex
	table  *Table
	prev   TableStatus
	policy *rake.Evaluator
	hand   *pot.Builder
}

// Authority wires the gatekeeper to the economy actors.
type Authority struct {
	mu       sync.RWMutex
	tables   map[string]*tableState
	registry *Registry
	engine   *Engine
	balances *balance.Keeper
	escrows  *escrow.Keeper
	ledger   *ledger.Ledger
	coord    *txn.Coordinator
	settle   *settlement.Engine
	log      *EventLog
	ids      types.IDSource
	nowFn    func() int64
}

// New wires an authority over the given actors. Nil collaborators are
// replaced with fresh in-memory instances so tests can start small.
func New(registry *Registry, balances *balance.Keeper, escrows *escrow.Keeper, led *ledger.Ledger, coord *txn.Coordinator, settle *settlement.Engine) *Authority {
	if registry == nil {
		registry = NewRegistry()
	}
	if balances == nil {
		balances = balance.NewKeeper(nil)
	}
	if escrows == nil {
		escrows = escrow.NewKeeper(nil, balances)
	}
	if led == nil {
		led = ledger.New()
	}
	if coord == nil {
		coord = txn.NewCoordinator()
	}
	if settle == nil {
		settle = settlement.NewEngine(escrows, led, coord)
	}
	a := &Authority{
		tables:   make(map[string]*tableState),
		registry: registry,
		engine:   NewEngine(),
		balances: balances,
		escrows:  escrows,
		ledger:   led,
		coord:    coord,
		settle:   settle,
		log:      NewEventLog(),
		ids:      types.UUIDSource{},
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
	settle.SetEmitter(settlementForwarder{a})
	return a
}

// SetIDSource overrides the request/table/hand ID source.
func (a *Authority) SetIDSource(src types.IDSource) {
	if src == nil {
		src = types.UUIDSource{}
	}
	a.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (a *Authority) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	a.nowFn = now
}

// Registry exposes the club registry for queries.
func (a *Authority) Registry() *Registry { return a.registry }

// EventLog exposes the authority event log for streaming.
func (a *Authority) EventLog() *EventLog { return a.log }

// Settlement exposes the settlement engine for previews.
func (a *Authority) Settlement() *settlement.Engine { return a.settle }

// CanViewPlayer applies the read-access rule: self, or a manager or
// owner of a club the target belongs to.
func (a *Authority) CanViewPlayer(callerID, targetID string) bool {
	return a.engine.CanViewPlayer(strings.TrimSpace(callerID), strings.TrimSpace(targetID), a.registry.Clubs())
}

// settlementForwarder copies settlement engine events into the
// authority log so the stream carries the full hand lifecycle.
type settlementForwarder struct{ a *Authority }

func (f settlementForwarder) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		return
	}
	f.a.log.Append(&Event{
		Type:      payload.Type,
		TableID:   payload.Attributes["tableId"],
		Data:      payload.Attributes,
		Timestamp: f.a.nowFn(),
	})
}

// ---- context assembly and the shared decide/emit spine ----

func (a *Authority) buildContext(action Action, clubID, callerID, targetID, tableID string, amount types.Chips) *AuthorizationContext {
	ctx := &AuthorizationContext{
		RequestID: types.NewID(types.PrefixRequest, a.ids),
		Action:    action,
		ClubID:    strings.TrimSpace(clubID),
		CallerID:  strings.TrimSpace(callerID),
		TargetID:  strings.TrimSpace(targetID),
		TableID:   strings.TrimSpace(tableID),
		Amount:    amount,
	}
	if club, ok := a.registry.Get(ctx.ClubID); ok {
		ctx.Club = club
		if m, ok := club.MemberFor(ctx.CallerID); ok {
			ctx.Caller = m
		}
		if ctx.TargetID != "" {
			if m, ok := club.MemberFor(ctx.TargetID); ok {
				ctx.Target = m
			}
		}
		ctx.HasInvitation = a.registry.HasInvitation(ctx.ClubID, ctx.CallerID)
		if action == ActionUpdateRakePolicy {
			ctx.PolicyLocked = a.clubPolicyLocked(ctx.ClubID)
		}
	}
	if ctx.TableID != "" {
		if ts := a.tableFor(ctx.TableID); ts != nil {
			ts.mu.Lock()
			ctx.Table = ts.table.Clone()
			ts.mu.Unlock()
			ctx.CallerSeated = seated(ctx.Table, ctx.CallerID)
			ctx.TargetSeated = seated(ctx.Table, ctx.TargetID)
		}
	}
	if b, err := a.balances.Get(ctx.CallerID); err == nil {
		ctx.Available = b.Available
	}
	return ctx
}

func (a *Authority) decide(ctx *AuthorizationContext) (AuthorizationResult, bool) {
	res := a.engine.Decide(ctx, a.nowFn())
	if !res.Allowed {
		a.log.Append(&Event{
			Type:     EventAuthorizationDenied,
			ClubID:   ctx.ClubID,
			TableID:  ctx.TableID,
			ActorID:  ctx.CallerID,
			TargetID: ctx.TargetID,
			Data: map[string]string{
				"action": string(ctx.Action),
				"reason": string(res.DenialReason),
			},
			Timestamp: res.Timestamp,
		})
	}
	return res, res.Allowed
}

func denied(res AuthorizationResult) *Response {
	return &Response{Success: false, Authorization: res, Error: string(res.DenialReason)}
}

func failed(res AuthorizationResult, err error) *Response {
	return &Response{Success: false, Authorization: res, Error: err.Error()}
}

func ok(res AuthorizationResult, data any) *Response {
	return &Response{Success: true, Data: data, Authorization: res}
}

func (a *Authority) appendEvent(eventType string, ctx *AuthorizationContext, data map[string]string) {
	evt := &Event{
		Type:      eventType,
		ClubID:    ctx.ClubID,
		TableID:   ctx.TableID,
		ActorID:   ctx.CallerID,
		TargetID:  ctx.TargetID,
		Data:      data,
		Timestamp: a.nowFn(),
	}
	if ctx.TableID != "" {
		if ts := a.tableFor(ctx.TableID); ts != nil {
			ts.mu.Lock()
			ts.table.LogicalClock++
			evt.TableSeq = ts.table.LogicalClock
			ts.mu.Unlock()
		}
	}
	a.log.Append(evt)
}

func (a *Authority) tableFor(tableID string) *tableState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tables[strings.TrimSpace(tableID)]
}

func (a *Authority) clubPolicyLocked(clubID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ts := range a.tables {
		ts.mu.Lock()
		locked := ts.table.ClubID == clubID && ts.table.RakePolicySnapshot != nil
		ts.mu.Unlock()
		if locked {
			return true
		}
	}
	return false
}

func seated(t *Table, playerID string) bool {
	if t == nil || playerID == "" {
		return false
	}
	for _, id := range t.OccupiedSeats {
		if id == playerID {
			return true
		}
	}
	return false
}

// ---- club operations ----

// CreateClub registers a new club owned by the caller.
func (a *Authority) CreateClub(callerID, name string, cfg ClubConfig, policy rake.Config) *Response {
	ctx := a.buildContext(ActionCreateClub, "", callerID, "", "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.CreateClub(ctx.CallerID, name, cfg, policy)
	if err != nil {
		return failed(res, err)
	}
	ctx.ClubID = club.ClubID
	a.appendEvent(EventClubCreated, ctx, map[string]string{"name": club.Name})
	return ok(res, club)
}

// UpdateClubConfig replaces the club's table policy.
func (a *Authority) UpdateClubConfig(clubID, callerID string, cfg ClubConfig) *Response {
	ctx := a.buildContext(ActionUpdateClubConfig, clubID, callerID, "", "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.UpdateConfig(ctx.ClubID, cfg)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventClubConfigUpdated, ctx, nil)
	return ok(res, club)
}

// UpdateRakePolicy replaces the club's rake policy. Denied while any
// club table has a hand open, because the policy reference is frozen.
func (a *Authority) UpdateRakePolicy(clubID, callerID string, policy rake.Config) *Response {
	ctx := a.buildContext(ActionUpdateRakePolicy, clubID, callerID, "", "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.UpdateRakePolicy(ctx.ClubID, policy)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventClubRakePolicyUpdated, ctx, map[string]string{
		"policyId":   club.RakePolicy.PolicyID,
		"policyHash": club.RakePolicy.Hash(),
	})
	return ok(res, club)
}

// DeleteClub closes every club table (forcing cash-outs) and marks the
// club deleted. Denied while any club table has a hand open.
func (a *Authority) DeleteClub(clubID, callerID string) *Response {
	ctx := a.buildContext(ActionDeleteClub, clubID, callerID, "", "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	if a.clubHandOpen(ctx.ClubID) {
		res.Allowed = false
		res.DenialReason = DenyHandInProgress
		return denied(res)
	}
	for _, ts := range a.clubTables(ctx.ClubID) {
		if err := a.closeTableState(ctx, ts); err != nil {
			return failed(res, err)
		}
	}
	club, err := a.registry.Delete(ctx.ClubID)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventClubDeleted, ctx, nil)
	return ok(res, club)
}

// InviteMember records a pending invitation for the target player.
func (a *Authority) InviteMember(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionInviteMember, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.Invite(ctx.ClubID, ctx.CallerID, ctx.TargetID)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberInvited, ctx, nil)
	return ok(res, club)
}

// AcceptInvitation converts the caller's invitation into membership.
func (a *Authority) AcceptInvitation(clubID, callerID string) *Response {
	ctx := a.buildContext(ActionAcceptInvitation, clubID, callerID, callerID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.AcceptInvitation(ctx.ClubID, ctx.CallerID)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberJoined, ctx, nil)
	return ok(res, club)
}

// RemoveMember marks the target as having left. A seated target is
// kicked from every club table first, with forced cash-outs.
func (a *Authority) RemoveMember(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionRemoveMember, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	if err := a.unseatEverywhere(ctx, ctx.TargetID); err != nil {
		return failed(res, err)
	}
	club, err := a.registry.SetMemberStatus(ctx.ClubID, ctx.TargetID, MemberLeft)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberLeft, ctx, nil)
	return ok(res, club)
}

// BanMember bans the target, kicking them from every club table.
func (a *Authority) BanMember(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionBanMember, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	if err := a.unseatEverywhere(ctx, ctx.TargetID); err != nil {
		return failed(res, err)
	}
	club, err := a.registry.SetMemberStatus(ctx.ClubID, ctx.TargetID, MemberBanned)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberBanned, ctx, nil)
	return ok(res, club)
}

// UnbanMember restores a banned member to active standing.
func (a *Authority) UnbanMember(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionUnbanMember, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.SetMemberStatus(ctx.ClubID, ctx.TargetID, MemberActive)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberUnbanned, ctx, nil)
	return ok(res, club)
}

// PromoteToManager raises the target player to manager.
func (a *Authority) PromoteToManager(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionPromoteManager, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.SetMemberRole(ctx.ClubID, ctx.TargetID, RoleManager)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberPromoted, ctx, nil)
	return ok(res, club)
}

// DemoteFromManager lowers the target manager back to player.
func (a *Authority) DemoteFromManager(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionDemoteManager, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.SetMemberRole(ctx.ClubID, ctx.TargetID, RolePlayer)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventMemberDemoted, ctx, nil)
	return ok(res, club)
}

// TransferOwnership hands the club to the target member; the previous
// owner stays on as a manager.
func (a *Authority) TransferOwnership(clubID, callerID, targetID string) *Response {
	ctx := a.buildContext(ActionTransferOwner, clubID, callerID, targetID, "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	club, err := a.registry.TransferOwnership(ctx.ClubID, ctx.CallerID, ctx.TargetID)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventOwnershipTransferred, ctx, nil)
	return ok(res, club)
}

// ---- table lifecycle ----

// CreateTable opens a new table under the club's config.
func (a *Authority) CreateTable(clubID, callerID, name string) *Response {
	ctx := a.buildContext(ActionCreateTable, clubID, callerID, "", "", 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	now := a.nowFn()
	t := &Table{
		TableID:           types.NewID(types.PrefixTable, a.ids),
		ClubID:            ctx.ClubID,
		Name:              strings.TrimSpace(name),
		Status:            TableOpen,
		MaxSeats:          ctx.Club.Config.MaxSeats,
		MinPlayersToStart: ctx.Club.Config.MinPlayersToStart,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a.mu.Lock()
	a.tables[t.TableID] = &tableState{table: t}
	a.mu.Unlock()
	ctx.TableID = t.TableID
	a.appendEvent(EventTableCreated, ctx, map[string]string{"name": t.Name})
	return ok(res, t.Clone())
}

// CloseTable cashes every seated player out and closes the table.
func (a *Authority) CloseTable(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionCloseTable, clubID, callerID, "", tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	ts := a.tableFor(ctx.TableID)
	if err := a.closeTableState(ctx, ts); err != nil {
		return failed(res, err)
	}
	ts.mu.Lock()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	return ok(res, snapshot)
}

// closeTableState forces cash-outs for every seated player and marks
// the table closed. Forced cash-outs still write ledger entries and
// events; only a player with no escrow is skipped silently.
func (a *Authority) closeTableState(ctx *AuthorizationContext, ts *tableState) error {
	if ts == nil {
		return types.ErrPrecondition(types.CodeAccountNotFound, "table not found", nil)
	}
	ts.mu.Lock()
	tableID := ts.table.TableID
	seatedPlayers := append([]string(nil), ts.table.OccupiedSeats...)
	ts.mu.Unlock()

	tableCtx := *ctx
	tableCtx.TableID = tableID
	for _, playerID := range seatedPlayers {
		if err := a.forceCashOut(&tableCtx, tableID, playerID); err != nil {
			return err
		}
	}
	ts.mu.Lock()
	ts.table.OccupiedSeats = nil
	ts.table.Status = TableClosed
	ts.table.UpdatedAt = a.nowFn()
	ts.mu.Unlock()
	a.appendEvent(EventTableClosed, &tableCtx, nil)
	return nil
}

// PauseTable suspends a table, remembering its prior state.
func (a *Authority) PauseTable(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionPauseTable, clubID, callerID, "", tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	ts.prev = ts.table.Status
	ts.table.Status = TablePaused
	ts.table.UpdatedAt = a.nowFn()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventTablePaused, ctx, nil)
	return ok(res, snapshot)
}

// ResumeTable restores the table to the state it was paused from.
func (a *Authority) ResumeTable(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionResumeTable, clubID, callerID, "", tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	restored := ts.prev
	if restored == "" || restored == TablePaused {
		restored = TableOpen
	}
	ts.table.Status = restored
	ts.prev = ""
	ts.table.UpdatedAt = a.nowFn()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventTableResumed, ctx, nil)
	return ok(res, snapshot)
}

// ---- seat and chip movement ----

// JoinTable seats the caller.
func (a *Authority) JoinTable(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionJoinTable, clubID, callerID, callerID, tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	ts.table.OccupiedSeats = append(ts.table.OccupiedSeats, ctx.CallerID)
	ts.table.UpdatedAt = a.nowFn()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventPlayerJoinedTable, ctx, nil)
	return ok(res, snapshot)
}

// LeaveTable cashes the caller's remaining stack out and unseats them.
func (a *Authority) LeaveTable(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionLeaveTable, clubID, callerID, callerID, tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	if err := a.forceCashOut(ctx, ctx.TableID, ctx.CallerID); err != nil {
		return failed(res, err)
	}
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	ts.table.OccupiedSeats = removeSeat(ts.table.OccupiedSeats, ctx.CallerID)
	ts.table.UpdatedAt = a.nowFn()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventPlayerLeftTable, ctx, nil)
	return ok(res, snapshot)
}

// BuyIn moves available chips into the caller's table escrow,
// atomically with the ledger entry.
func (a *Authority) BuyIn(clubID, callerID, tableID string, amount types.Chips) *Response {
	return a.chipPurchase(ActionBuyIn, EventPlayerBoughtInTable, clubID, callerID, tableID, amount)
}

// Rebuy is a buy-in after busting, gated by the club's rebuy flag and
// denied while a hand is open.
func (a *Authority) Rebuy(clubID, callerID, tableID string, amount types.Chips) *Response {
	return a.chipPurchase(ActionRebuy, EventPlayerReboughtTable, clubID, callerID, tableID, amount)
}

// TopUp adds chips to a live stack, gated by the club's top-up flag.
func (a *Authority) TopUp(clubID, callerID, tableID string, amount types.Chips) *Response {
	return a.chipPurchase(ActionTopUp, EventPlayerToppedUpTable, clubID, callerID, tableID, amount)
}

func (a *Authority) chipPurchase(action Action, eventType, clubID, callerID, tableID string, amount types.Chips) *Response {
	ctx := a.buildContext(action, clubID, callerID, callerID, tableID, amount)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	var row *escrow.TableEscrow
	commit := a.coord.Begin().
		WithTable(ctx.TableID).
		Op(txn.OpBuyIn, string(action), func() error {
			e, err := a.escrows.BuyIn(ctx.TableID, ctx.CallerID, amount)
			if err != nil {
				return err
			}
			row = e
			return nil
		}, func() error {
			_, err := a.escrows.CashOut(ctx.TableID, ctx.CallerID, amount)
			return err
		}).
		Op(txn.OpLedgerEntry, "ledger "+string(action), func() error {
			b, err := a.balances.Get(ctx.CallerID)
			if err != nil {
				return err
			}
			_, err = a.ledger.RecordBuyIn(ctx.CallerID, ctx.TableID, amount, b.Available)
			return err
		}, nil).
		Commit()
	if !commit.Success {
		return failed(res, commit.Err)
	}
	a.appendEvent(eventType, ctx, map[string]string{
		"amount": strconv.FormatInt(amount, 10),
		"stack":  strconv.FormatInt(row.Stack, 10),
	})
	return ok(res, row)
}

// CashOut returns escrow chips to the caller's available balance.
// Amount zero cashes the whole stack out.
func (a *Authority) CashOut(clubID, callerID, tableID string, amount types.Chips) *Response {
	ctx := a.buildContext(ActionCashOut, clubID, callerID, callerID, tableID, amount)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	row, err := a.cashOutWithLedger(ctx.TableID, ctx.CallerID, amount)
	if err != nil {
		return failed(res, err)
	}
	a.appendEvent(EventPlayerCashedOutTable, ctx, map[string]string{
		"amount": strconv.FormatInt(row.TotalCashOut, 10),
	})
	return ok(res, row)
}

// KickPlayer forces the target off the table with a full cash-out.
func (a *Authority) KickPlayer(clubID, callerID, tableID, targetID string) *Response {
	ctx := a.buildContext(ActionKickPlayer, clubID, callerID, targetID, tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	if err := a.forceCashOut(ctx, ctx.TableID, ctx.TargetID); err != nil {
		return failed(res, err)
	}
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	ts.table.OccupiedSeats = removeSeat(ts.table.OccupiedSeats, ctx.TargetID)
	ts.table.UpdatedAt = a.nowFn()
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventPlayerKickedTable, ctx, nil)
	return ok(res, snapshot)
}

// ---- hand lifecycle ----

// StartHand opens a hand: the pot is created and the club's rake
// policy is snapshotted into the table record and frozen until the
// hand ends.
func (a *Authority) StartHand(clubID, callerID, tableID string) *Response {
	ctx := a.buildContext(ActionStartHand, clubID, callerID, "", tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	policy, err := rake.NewEvaluator(ctx.Club.RakePolicy)
	if err != nil {
		return failed(res, err)
	}
	handID := types.NewID(types.PrefixHand, a.ids)
	ref := policy.Ref()
	ts := a.tableFor(ctx.TableID)
	ts.mu.Lock()
	ts.table.CurrentHandID = handID
	ts.table.Status = TableActive
	ts.table.RakePolicySnapshot = &ref
	ts.table.HandsPlayed++
	ts.table.UpdatedAt = a.nowFn()
	ts.policy = policy
	ts.hand = pot.NewBuilder("pot_"+handID, handID, ctx.TableID)
	snapshot := ts.table.Clone()
	ts.mu.Unlock()
	a.appendEvent(EventHandStarted, ctx, map[string]string{
		"handId":     handID,
		"policyId":   ref.PolicyID,
		"policyHash": ref.PolicyHash,
	})
	return ok(res, snapshot)
}

// ForceAction lets a manager resolve a stalled player. The economy
// core records the override; the hand engine interprets it.
func (a *Authority) ForceAction(clubID, callerID, tableID, targetID, forced string) *Response {
	ctx := a.buildContext(ActionForceAction, clubID, callerID, targetID, tableID, 0)
	res, allowed := a.decide(ctx)
	if !allowed {
		return denied(res)
	}
	a.appendEvent(string(ActionForceAction), ctx, map[string]string{"forced": forced})
	return ok(res, nil)
}

// PostBetAction commits one betting action from the hand engine:
// escrow commit, move to pot, pot contribution and ledger entry as one
// transaction. Betting is not role-gated; the hand engine is trusted
// for in-hand flow, and the table must have an open hand.
func (a *Authority) PostBetAction(tableID, playerID string, amount types.Chips, street types.Street, isBlind bool) error {
	ts := a.tableFor(tableID)
	if ts == nil {
		return types.ErrPrecondition(types.CodeAccountNotFound, "table not found", map[string]string{"tableId": tableID})
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.table.CurrentHandID == "" || ts.hand == nil {
		return types.ErrPrecondition(types.CodeInvalidState, "no hand in progress", map[string]string{"tableId": tableID})
	}
	handID := ts.table.CurrentHandID
	hand := ts.hand

	commit := a.coord.Begin().
		WithHand(handID).
		WithTable(tableID).
		BetOp(street, "commit", func() error {
			_, err := a.escrows.CommitChips(tableID, playerID, amount)
			return err
		}, func() error {
			_, err := a.escrows.ReleaseCommitted(tableID, playerID, amount)
			return err
		}).
		Op(txn.OpMoveToPot, "move to pot", func() error {
			_, err := a.escrows.MoveToPot(tableID, playerID, amount)
			return err
		}, nil).
		Op(txn.OpCommitToPot, "pot contribution", func() error {
			return hand.AddContribution(playerID, amount, street)
		}, nil).
		Op(txn.OpLedgerEntry, "ledger bet", func() error {
			e, err := a.escrows.Get(tableID, playerID)
			if err != nil {
				return err
			}
			if isBlind {
				_, err = a.ledger.RecordBlind(playerID, handID, tableID, amount, e.Stack)
			} else {
				_, err = a.ledger.RecordBet(playerID, handID, tableID, amount, e.Stack, street)
			}
			return err
		}, nil).
		Commit()
	if !commit.Success {
		return commit.Err
	}
	ts.table.LogicalClock++
	return nil
}

// PlayerFolded drops the player from pot eligibility, preserving their
// contributions for side-pot layering.
func (a *Authority) PlayerFolded(tableID, playerID string) error {
	ts := a.tableFor(tableID)
	if ts == nil {
		return types.ErrPrecondition(types.CodeAccountNotFound, "table not found", map[string]string{"tableId": tableID})
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.hand == nil {
		return types.ErrPrecondition(types.CodeInvalidState, "no hand in progress", map[string]string{"tableId": tableID})
	}
	return ts.hand.PlayerFolded(playerID)
}

// EndHand settles the open hand and releases the rake-policy freeze.
// The request's hand and table IDs are filled in from the table state.
func (a *Authority) EndHand(tableID string, req settlement.Request) (*settlement.Outcome, error) {
	ts := a.tableFor(tableID)
	if ts == nil {
		return nil, types.ErrPrecondition(types.CodeAccountNotFound, "table not found", map[string]string{"tableId": tableID})
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.table.CurrentHandID == "" {
		return nil, types.ErrPrecondition(types.CodeInvalidState, "no hand in progress", map[string]string{"tableId": tableID})
	}
	req.HandID = ts.table.CurrentHandID
	req.TableID = tableID
	outcome, err := a.settle.SettleHand(req, ts.policy, ts.hand)
	if err != nil {
		return nil, err
	}
	a.finishHandLocked(ts)
	return outcome, nil
}

// EndHandUncontested settles a hand everyone folded out of.
func (a *Authority) EndHandUncontested(tableID, winnerID string, finalStreet types.Street, flopSeen bool) (*settlement.Outcome, error) {
	ts := a.tableFor(tableID)
	if ts == nil {
		return nil, types.ErrPrecondition(types.CodeAccountNotFound, "table not found", map[string]string{"tableId": tableID})
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.table.CurrentHandID == "" || ts.hand == nil {
		return nil, types.ErrPrecondition(types.CodeInvalidState, "no hand in progress", map[string]string{"tableId": tableID})
	}
	outcome, err := a.settle.SettleUncontested(ts.table.CurrentHandID, tableID, winnerID, ts.hand.Total(), finalStreet, flopSeen, ts.policy, ts.hand)
	if err != nil {
		return nil, err
	}
	a.finishHandLocked(ts)
	return outcome, nil
}

// finishHandLocked releases committed leftovers, clears the hand and
// unfreezes the rake policy. Caller holds ts.mu.
func (a *Authority) finishHandLocked(ts *tableState) {
	tableID := ts.table.TableID
	handID := ts.table.CurrentHandID
	for _, e := range a.escrows.EscrowsByTable(tableID) {
		if e.Committed > 0 {
			// Round ended without the chips reaching the pot.
			a.escrows.ReleaseAllCommitted(tableID, e.PlayerID)
		}
	}
	ts.table.CurrentHandID = ""
	ts.table.RakePolicySnapshot = nil
	ts.table.Status = TableOpen
	ts.table.UpdatedAt = a.nowFn()
	ts.table.LogicalClock++
	ts.policy = nil
	ts.hand = nil
	a.log.Append(&Event{
		Type:      EventHandEnded,
		ClubID:    ts.table.ClubID,
		TableID:   tableID,
		TableSeq:  ts.table.LogicalClock,
		Data:      map[string]string{"handId": handID},
		Timestamp: a.nowFn(),
	})
}

// ---- queries and helpers ----

// PolicyFor returns the rake evaluator a settlement of the table would
// use: the frozen policy while a hand is open, otherwise the club's
// current policy.
func (a *Authority) PolicyFor(tableID string) (*rake.Evaluator, error) {
	ts := a.tableFor(tableID)
	if ts == nil {
		return nil, types.ErrPrecondition(types.CodeAccountNotFound, "table not found", map[string]string{"tableId": tableID})
	}
	ts.mu.Lock()
	policy := ts.policy
	clubID := ts.table.ClubID
	ts.mu.Unlock()
	if policy != nil {
		return policy, nil
	}
	club, found := a.registry.Get(clubID)
	if !found {
		return nil, types.ErrPrecondition(types.CodeAccountNotFound, "club not found", map[string]string{"clubId": clubID})
	}
	return rake.NewEvaluator(club.RakePolicy)
}

// GetTable returns a copy of the table record.
func (a *Authority) GetTable(tableID string) (*Table, bool) {
	ts := a.tableFor(tableID)
	if ts == nil {
		return nil, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.table.Clone(), true
}

// Tables returns copies of every table record.
func (a *Authority) Tables() []*Table {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Table, 0, len(a.tables))
	for _, ts := range a.tables {
		ts.mu.Lock()
		out = append(out, ts.table.Clone())
		ts.mu.Unlock()
	}
	return out
}

// CurrentPot returns the open hand's pot snapshot, if a hand is open.
func (a *Authority) CurrentPot(tableID string) (*pot.Pot, bool) {
	ts := a.tableFor(tableID)
	if ts == nil {
		return nil, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.hand == nil {
		return nil, false
	}
	return ts.hand.Snapshot(), true
}

func (a *Authority) clubTables(clubID string) []*tableState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*tableState, 0, 4)
	for _, ts := range a.tables {
		ts.mu.Lock()
		match := ts.table.ClubID == clubID && ts.table.Status != TableClosed
		ts.mu.Unlock()
		if match {
			out = append(out, ts)
		}
	}
	return out
}

func (a *Authority) clubHandOpen(clubID string) bool {
	for _, ts := range a.clubTables(clubID) {
		ts.mu.Lock()
		open := ts.table.CurrentHandID != ""
		ts.mu.Unlock()
		if open {
			return true
		}
	}
	return false
}

// unseatEverywhere kicks the player from every table of the club,
// cash-outs included.
func (a *Authority) unseatEverywhere(ctx *AuthorizationContext, playerID string) error {
	for _, ts := range a.clubTables(ctx.ClubID) {
		ts.mu.Lock()
		tableID := ts.table.TableID
		isSeated := seated(ts.table, playerID)
		ts.mu.Unlock()
		if !isSeated {
			continue
		}
		if err := a.forceCashOut(ctx, tableID, playerID); err != nil {
			return err
		}
		ts.mu.Lock()
		ts.table.OccupiedSeats = removeSeat(ts.table.OccupiedSeats, playerID)
		ts.table.UpdatedAt = a.nowFn()
		ts.mu.Unlock()
	}
	return nil
}

// forceCashOut cashes the player's whole stack out with a ledger entry
// and a cash-out event. A player with no escrow is skipped silently;
// every other failure surfaces.
func (a *Authority) forceCashOut(ctx *AuthorizationContext, tableID, playerID string) error {
	if _, err := a.escrows.Get(tableID, playerID); err != nil {
		if errors.Is(err, types.ErrEscrowNotFound) {
			return nil
		}
		return err
	}
	row, err := a.cashOutWithLedger(tableID, playerID, 0)
	if err != nil {
		return err
	}
	a.log.Append(&Event{
		Type:     EventPlayerCashedOutTable,
		ClubID:   ctx.ClubID,
		TableID:  tableID,
		ActorID:  ctx.CallerID,
		TargetID: playerID,
		Data: map[string]string{
			"amount": strconv.FormatInt(row.TotalCashOut, 10),
			"forced": "true",
		},
		Timestamp: a.nowFn(),
	})
	return nil
}

// cashOutWithLedger runs the cash-out and its ledger entry as one
// transaction. Amount zero means the whole stack.
func (a *Authority) cashOutWithLedger(tableID, playerID string, amount types.Chips) (*escrow.TableEscrow, error) {
	var row *escrow.TableEscrow
	var cashed types.Chips
	commit := a.coord.Begin().
		WithTable(tableID).
		Op(txn.OpCashOut, "cash out", func() error {
			before, err := a.escrows.Get(tableID, playerID)
			if err != nil {
				return err
			}
			want := amount
			if want == 0 {
				want = before.Stack
			}
			cashed = want
			e, err := a.escrows.CashOut(tableID, playerID, want)
			if err != nil {
				return err
			}
			row = e
			return nil
		}, func() error {
			if cashed == 0 {
				return nil
			}
			_, err := a.escrows.BuyIn(tableID, playerID, cashed)
			return err
		}).
		Op(txn.OpLedgerEntry, "ledger cash out", func() error {
			b, err := a.balances.Get(playerID)
			if err != nil {
				return err
			}
			_, err = a.ledger.RecordCashOut(playerID, tableID, cashed, b.Available)
			return err
		}, nil).
		Commit()
	if !commit.Success {
		return nil, commit.Err
	}
	return row, nil
}

func removeSeat(seats []string, playerID string) []string {
	out := seats[:0]
	for _, id := range seats {
		if id != playerID {
			out = append(out, id)
		}
	}
	return out
}
