package authority

import (
	"testing"

	"cardroom/core/types"
	"cardroom/native/balance"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
	"cardroom/native/rake"
	"cardroom/native/settlement"
	"cardroom/native/sidepot"
	"cardroom/native/txn"
)

type authHarness struct {
	a        *Authority
	balances *balance.Keeper
	escrows  *escrow.Keeper
	ledger   *ledger.Ledger
	clubID   string
	tableID  string
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	balances := balance.NewKeeper(nil)
	escrows := escrow.NewKeeper(nil, balances)
	led := ledger.New()
	led.SetIDSource(&types.SequenceSource{Prefix: "e"})
	led.SetNowFunc(func() int64 { return testNow })
	coord := txn.NewCoordinator()
	coord.SetIDSource(&types.SequenceSource{Prefix: "t"})
	settle := settlement.NewEngine(escrows, led, coord)
	settle.SetIDSource(&types.SequenceSource{Prefix: "s"})
	settle.SetNowFunc(func() int64 { return testNow })
	registry := NewRegistry()
	registry.SetIDSource(&types.SequenceSource{Prefix: "c"})
	registry.SetNowFunc(func() int64 { return testNow })
	a := New(registry, balances, escrows, led, coord, settle)
	a.SetIDSource(&types.SequenceSource{Prefix: "a"})
	a.SetNowFunc(func() int64 { return testNow })
	a.EventLog().SetIDSource(&types.SequenceSource{Prefix: "v"})
	return &authHarness{a: a, balances: balances, escrows: escrows, ledger: led}
}

func testRakePolicy() rake.Config {
	return rake.Config{PolicyID: "pol_test", DefaultPercentage: 5}
}

func testClubConfig() ClubConfig {
	return ClubConfig{
		MinBuyIn:          100,
		MaxBuyIn:          1000,
		MaxSeats:          6,
		MinPlayersToStart: 2,
		AllowRebuy:        true,
		AllowTopUp:        true,
	}
}

func mustOK(t *testing.T, resp *Response, op string) *Response {
	t.Helper()
	if !resp.Success {
		t.Fatalf("%s failed: %s (denial %s)", op, resp.Error, resp.Authorization.DenialReason)
	}
	return resp
}

// setup builds a club with the owner plus players plr_a and plr_b, a
// table with both players seated, and 500-chip buy-ins for each.
func (h *authHarness) setup(t *testing.T) {
	t.Helper()
	resp := mustOK(t, h.a.CreateClub("plr_owner", "Night Game", testClubConfig(), testRakePolicy()), "create club")
	h.clubID = resp.Data.(*Club).ClubID
	for _, player := range []string{"plr_a", "plr_b"} {
		mustOK(t, h.a.InviteMember(h.clubID, "plr_owner", player), "invite "+player)
		mustOK(t, h.a.AcceptInvitation(h.clubID, player), "accept "+player)
	}
	resp = mustOK(t, h.a.CreateTable(h.clubID, "plr_owner", "Table One"), "create table")
	h.tableID = resp.Data.(*Table).TableID
	for _, player := range []string{"plr_a", "plr_b"} {
		if _, err := h.balances.Initialize(player, 2000); err != nil {
			t.Fatalf("initialize %s: %v", player, err)
		}
		mustOK(t, h.a.JoinTable(h.clubID, player, h.tableID), player+" join")
		mustOK(t, h.a.BuyIn(h.clubID, player, h.tableID, 500), player+" buy in")
	}
}

func (h *authHarness) eventTypes() []string {
	events := h.a.EventLog().EventsSince(0)
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Type)
	}
	return out
}

func (h *authHarness) lastEvent(t *testing.T) *Event {
	t.Helper()
	events := h.a.EventLog().EventsSince(0)
	if len(events) == 0 {
		t.Fatal("event log is empty")
	}
	return events[len(events)-1]
}

func TestClubLifecycle(t *testing.T) {
	h := newAuthHarness(t)
	resp := mustOK(t, h.a.CreateClub("plr_owner", "Night Game", testClubConfig(), testRakePolicy()), "create club")
	club := resp.Data.(*Club)
	if club.Members["plr_owner"].Role != RoleOwner {
		t.Fatalf("creator should be owner, got %v", club.Members["plr_owner"].Role)
	}

	mustOK(t, h.a.InviteMember(club.ClubID, "plr_owner", "plr_a"), "invite")
	resp = mustOK(t, h.a.AcceptInvitation(club.ClubID, "plr_a"), "accept")
	joined := resp.Data.(*Club)
	if joined.Members["plr_a"].Role != RolePlayer || joined.Members["plr_a"].Status != MemberActive {
		t.Fatalf("unexpected member record: %+v", joined.Members["plr_a"])
	}
	if len(joined.Invitations) != 0 {
		t.Fatal("invitation should be consumed")
	}

	mustOK(t, h.a.PromoteToManager(club.ClubID, "plr_owner", "plr_a"), "promote")
	mustOK(t, h.a.DemoteFromManager(club.ClubID, "plr_owner", "plr_a"), "demote")
	resp = mustOK(t, h.a.PromoteToManager(club.ClubID, "plr_owner", "plr_a"), "re-promote")
	if resp.Data.(*Club).Members["plr_a"].Role != RoleManager {
		t.Fatal("promotion did not stick")
	}

	resp = mustOK(t, h.a.TransferOwnership(club.ClubID, "plr_owner", "plr_a"), "transfer")
	after := resp.Data.(*Club)
	if after.OwnerID != "plr_a" || after.Members["plr_a"].Role != RoleOwner {
		t.Fatalf("ownership not transferred: owner=%s", after.OwnerID)
	}
	if after.Members["plr_owner"].Role != RoleManager {
		t.Fatal("previous owner should step down to manager")
	}
}

func TestDeniedOperationEmitsEventOnly(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)
	tablesBefore := len(h.a.Tables())

	resp := h.a.CreateTable(h.clubID, "plr_a", "Rogue Table")
	if resp.Success {
		t.Fatal("player creating a table should be denied")
	}
	if resp.Authorization.DenialReason != DenyInsufficientRole {
		t.Fatalf("expected INSUFFICIENT_ROLE, got %s", resp.Authorization.DenialReason)
	}
	if resp.Error != string(DenyInsufficientRole) {
		t.Fatalf("response error should carry the reason, got %q", resp.Error)
	}
	last := h.lastEvent(t)
	if last.Type != EventAuthorizationDenied || last.Data["reason"] != string(DenyInsufficientRole) {
		t.Fatalf("expected denial event, got %s %v", last.Type, last.Data)
	}
	if len(h.a.Tables()) != tablesBefore {
		t.Fatal("denied operation must not change state")
	}
}

func TestHandFlowSettlesAndUnfreezes(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	resp := mustOK(t, h.a.StartHand(h.clubID, "plr_owner", h.tableID), "start hand")
	tbl := resp.Data.(*Table)
	if tbl.Status != TableActive || tbl.CurrentHandID == "" {
		t.Fatalf("table should be active with a hand, got %s / %q", tbl.Status, tbl.CurrentHandID)
	}
	if tbl.RakePolicySnapshot == nil || tbl.RakePolicySnapshot.PolicyID != "pol_test" {
		t.Fatalf("rake policy should be frozen, got %+v", tbl.RakePolicySnapshot)
	}
	handID := tbl.CurrentHandID

	if err := h.a.PostBetAction(h.tableID, "plr_a", 100, types.StreetPreflop, true); err != nil {
		t.Fatalf("post blind: %v", err)
	}
	if err := h.a.PostBetAction(h.tableID, "plr_b", 100, types.StreetPreflop, false); err != nil {
		t.Fatalf("post bet: %v", err)
	}
	if pot, ok := h.a.CurrentPot(h.tableID); !ok || pot.ContributionsByPlayer["plr_a"] != 100 {
		t.Fatalf("pot should carry contributions, got %+v", pot)
	}

	outcome, err := h.a.EndHand(h.tableID, settlement.Request{
		PlayerStates: []sidepot.PlayerState{
			{PlayerID: "plr_a", TotalContribution: 100},
			{PlayerID: "plr_b", TotalContribution: 100},
		},
		WinnerRankings: map[string]int{"plr_a": 1},
		FinalStreet:    types.StreetRiver,
		FlopSeen:       true,
		PlayersInHand:  2,
	})
	if err != nil {
		t.Fatalf("end hand: %v", err)
	}
	if outcome.TotalPot != 200 || outcome.RakeCollected != 10 || outcome.Payouts["plr_a"] != 190 {
		t.Fatalf("unexpected outcome: pot %d rake %d payout %d", outcome.TotalPot, outcome.RakeCollected, outcome.Payouts["plr_a"])
	}

	a, _ := h.escrows.Get(h.tableID, "plr_a")
	b, _ := h.escrows.Get(h.tableID, "plr_b")
	if a.Stack != 590 || b.Stack != 400 {
		t.Fatalf("expected stacks 590/400, got %d/%d", a.Stack, b.Stack)
	}
	okConserved, residual, err := h.ledger.VerifyHandConservation(handID)
	if err != nil || !okConserved {
		t.Fatalf("conservation broken: residual %d err %v", residual, err)
	}

	after, _ := h.a.GetTable(h.tableID)
	if after.Status != TableOpen || after.CurrentHandID != "" || after.RakePolicySnapshot != nil {
		t.Fatalf("hand end should reopen and unfreeze the table: %+v", after)
	}
	if after.HandsPlayed != 1 {
		t.Fatalf("expected one hand played, got %d", after.HandsPlayed)
	}

	var sawStarted, sawCompleted, sawEnded bool
	for _, evtType := range h.eventTypes() {
		switch evtType {
		case EventHandStarted:
			sawStarted = true
		case settlement.EventTypeSettlementCompleted:
			sawCompleted = true
		case EventHandEnded:
			sawEnded = true
		}
	}
	if !sawStarted || !sawCompleted || !sawEnded {
		t.Fatalf("missing hand lifecycle events: started=%v completed=%v ended=%v", sawStarted, sawCompleted, sawEnded)
	}
}

func TestRakePolicyFrozenDuringHand(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)
	mustOK(t, h.a.StartHand(h.clubID, "plr_owner", h.tableID), "start hand")

	update := testRakePolicy()
	update.DefaultPercentage = 10
	resp := h.a.UpdateRakePolicy(h.clubID, "plr_owner", update)
	if resp.Success || resp.Authorization.DenialReason != DenyRakePolicyLocked {
		t.Fatalf("expected RAKE_POLICY_LOCKED, got success=%v reason=%s", resp.Success, resp.Authorization.DenialReason)
	}

	if err := h.a.PostBetAction(h.tableID, "plr_a", 50, types.StreetPreflop, false); err != nil {
		t.Fatalf("post bet: %v", err)
	}
	if _, err := h.a.EndHandUncontested(h.tableID, "plr_a", types.StreetPreflop, false); err != nil {
		t.Fatalf("end hand: %v", err)
	}
	mustOK(t, h.a.UpdateRakePolicy(h.clubID, "plr_owner", update), "update after hand")
}

func TestEndHandUncontestedWaivesRake(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)
	// Policy that excludes uncontested pots from rake.
	policy := testRakePolicy()
	policy.ExcludeUncontested = true
	mustOK(t, h.a.UpdateRakePolicy(h.clubID, "plr_owner", policy), "set policy")

	mustOK(t, h.a.StartHand(h.clubID, "plr_owner", h.tableID), "start hand")
	if err := h.a.PostBetAction(h.tableID, "plr_a", 60, types.StreetPreflop, false); err != nil {
		t.Fatalf("bet a: %v", err)
	}
	if err := h.a.PostBetAction(h.tableID, "plr_b", 40, types.StreetPreflop, false); err != nil {
		t.Fatalf("bet b: %v", err)
	}
	if err := h.a.PlayerFolded(h.tableID, "plr_b"); err != nil {
		t.Fatalf("fold b: %v", err)
	}

	outcome, err := h.a.EndHandUncontested(h.tableID, "plr_a", types.StreetPreflop, false)
	if err != nil {
		t.Fatalf("end hand: %v", err)
	}
	if outcome.RakeCollected != 0 || !outcome.Rake.Waived {
		t.Fatalf("uncontested pot should be rake free: %+v", outcome.Rake)
	}
	if outcome.Payouts["plr_a"] != 100 {
		t.Fatalf("winner should collect the whole pot, got %d", outcome.Payouts["plr_a"])
	}
	a, _ := h.escrows.Get(h.tableID, "plr_a")
	b, _ := h.escrows.Get(h.tableID, "plr_b")
	if a.Stack != 540 || b.Stack != 460 {
		t.Fatalf("expected stacks 540/460, got %d/%d", a.Stack, b.Stack)
	}
}

func TestKickForcesCashOut(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	mustOK(t, h.a.KickPlayer(h.clubID, "plr_owner", h.tableID, "plr_b"), "kick")

	if _, err := h.escrows.Get(h.tableID, "plr_b"); err == nil {
		t.Fatal("kicked player's escrow should be gone")
	}
	bal, err := h.balances.Get("plr_b")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Available != 2000 || bal.Locked != 0 {
		t.Fatalf("chips should be back in available, got avail=%d locked=%d", bal.Available, bal.Locked)
	}
	tbl, _ := h.a.GetTable(h.tableID)
	if seated(tbl, "plr_b") {
		t.Fatal("kicked player should be unseated")
	}

	var sawForcedCashOut bool
	for _, evt := range h.a.EventLog().EventsSince(0) {
		if evt.Type == EventPlayerCashedOutTable && evt.Data["forced"] == "true" && evt.TargetID == "plr_b" {
			sawForcedCashOut = true
		}
	}
	if !sawForcedCashOut {
		t.Fatal("forced cash-out should be on the event log")
	}
	var sawLedgerCashOut bool
	for _, entry := range h.ledger.EntriesByPlayer("plr_b") {
		if entry.Type == ledger.EntryTypeCashOut && entry.Amount == 500 {
			sawLedgerCashOut = true
		}
	}
	if !sawLedgerCashOut {
		t.Fatal("forced cash-out should write a ledger entry")
	}
}

func TestCloseTableCashesEveryoneOut(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	resp := mustOK(t, h.a.CloseTable(h.clubID, "plr_owner", h.tableID), "close")
	tbl := resp.Data.(*Table)
	if tbl.Status != TableClosed || len(tbl.OccupiedSeats) != 0 {
		t.Fatalf("table should be closed and empty: %+v", tbl)
	}
	for _, player := range []string{"plr_a", "plr_b"} {
		if _, err := h.escrows.Get(h.tableID, player); err == nil {
			t.Fatalf("%s escrow should be gone", player)
		}
		bal, _ := h.balances.Get(player)
		if bal.Available != 2000 {
			t.Fatalf("%s should be made whole, got %d", player, bal.Available)
		}
	}

	// Closed is terminal.
	join := h.a.JoinTable(h.clubID, "plr_a", h.tableID)
	if join.Success || join.Authorization.DenialReason != DenyTableClosed {
		t.Fatalf("join after close: expected TABLE_CLOSED, got %v/%s", join.Success, join.Authorization.DenialReason)
	}
}

func TestPauseResumeRestoresStatus(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	mustOK(t, h.a.PauseTable(h.clubID, "plr_owner", h.tableID), "pause")
	buy := h.a.BuyIn(h.clubID, "plr_a", h.tableID, 200)
	if buy.Success || buy.Authorization.DenialReason != DenyTablePaused {
		t.Fatalf("buy-in while paused: expected TABLE_PAUSED, got %v/%s", buy.Success, buy.Authorization.DenialReason)
	}

	resp := mustOK(t, h.a.ResumeTable(h.clubID, "plr_owner", h.tableID), "resume")
	if resp.Data.(*Table).Status != TableOpen {
		t.Fatalf("resume should restore open, got %s", resp.Data.(*Table).Status)
	}
	mustOK(t, h.a.BuyIn(h.clubID, "plr_a", h.tableID, 200), "buy in after resume")
}

func TestLeaveTableCashesOut(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	resp := mustOK(t, h.a.LeaveTable(h.clubID, "plr_a", h.tableID), "leave")
	if seated(resp.Data.(*Table), "plr_a") {
		t.Fatal("leaver should be unseated")
	}
	if _, err := h.escrows.Get(h.tableID, "plr_a"); err == nil {
		t.Fatal("leaver's escrow should be gone")
	}
	bal, _ := h.balances.Get("plr_a")
	if bal.Available != 2000 || bal.Locked != 0 {
		t.Fatalf("leaver should be made whole, got avail=%d locked=%d", bal.Available, bal.Locked)
	}
}

func TestBanKicksFromTables(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	resp := mustOK(t, h.a.BanMember(h.clubID, "plr_owner", "plr_b"), "ban")
	if resp.Data.(*Club).Members["plr_b"].Status != MemberBanned {
		t.Fatal("member should be banned")
	}
	tbl, _ := h.a.GetTable(h.tableID)
	if seated(tbl, "plr_b") {
		t.Fatal("banned member should be unseated")
	}
	if _, err := h.escrows.Get(h.tableID, "plr_b"); err == nil {
		t.Fatal("banned member's escrow should be gone")
	}

	// Banned members are locked out until unbanned and re-invited.
	join := h.a.JoinTable(h.clubID, "plr_b", h.tableID)
	if join.Success || join.Authorization.DenialReason != DenyMemberBanned {
		t.Fatalf("expected MEMBER_BANNED, got %v/%s", join.Success, join.Authorization.DenialReason)
	}
	mustOK(t, h.a.UnbanMember(h.clubID, "plr_owner", "plr_b"), "unban")
	mustOK(t, h.a.JoinTable(h.clubID, "plr_b", h.tableID), "rejoin")
}

func TestDeleteClubClosesTables(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)

	resp := mustOK(t, h.a.DeleteClub(h.clubID, "plr_owner"), "delete")
	if resp.Data.(*Club).Status != ClubDeleted {
		t.Fatal("club should be deleted")
	}
	tbl, _ := h.a.GetTable(h.tableID)
	if tbl.Status != TableClosed {
		t.Fatalf("club tables should close, got %s", tbl.Status)
	}
	for _, player := range []string{"plr_a", "plr_b"} {
		bal, _ := h.balances.Get(player)
		if bal.Available != 2000 {
			t.Fatalf("%s should be cashed out, got %d", player, bal.Available)
		}
	}

	// Every further operation hits the inactive-club gate.
	create := h.a.CreateTable(h.clubID, "plr_owner", "After")
	if create.Success || create.Authorization.DenialReason != DenyClubNotActive {
		t.Fatalf("expected CLUB_NOT_ACTIVE, got %v/%s", create.Success, create.Authorization.DenialReason)
	}
}

func TestEventSequencesAreDense(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)
	mustOK(t, h.a.StartHand(h.clubID, "plr_owner", h.tableID), "start hand")

	events := h.a.EventLog().EventsSince(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	for i, evt := range events {
		if evt.Sequence != uint64(i) {
			t.Fatalf("sequence gap at %d: got %d", i, evt.Sequence)
		}
		if evt.EventID == "" {
			t.Fatalf("event %d missing id", i)
		}
	}

	tail := h.a.EventLog().EventsSince(uint64(len(events) - 2))
	if len(tail) != 2 || tail[0].Sequence != uint64(len(events)-2) {
		t.Fatalf("cursor read wrong, got %d events from %d", len(tail), tail[0].Sequence)
	}
}

func TestSubscriptionReceivesEvents(t *testing.T) {
	h := newAuthHarness(t)
	ch, cancel := h.a.EventLog().Subscribe()
	defer cancel()

	mustOK(t, h.a.CreateClub("plr_owner", "Night Game", testClubConfig(), testRakePolicy()), "create club")

	select {
	case evt := <-ch:
		if evt.Type != EventClubCreated {
			t.Fatalf("expected club_created, got %s", evt.Type)
		}
	default:
		t.Fatal("subscriber should have received the event")
	}
}

func TestLogicalClockAdvancesPerTableEvent(t *testing.T) {
	h := newAuthHarness(t)
	h.setup(t)
	before, _ := h.a.GetTable(h.tableID)

	mustOK(t, h.a.BuyIn(h.clubID, "plr_a", h.tableID, 100), "buy in")
	after, _ := h.a.GetTable(h.tableID)
	if after.LogicalClock != before.LogicalClock+1 {
		t.Fatalf("logical clock should advance by one, got %d -> %d", before.LogicalClock, after.LogicalClock)
	}

	var found *Event
	for _, evt := range h.a.EventLog().EventsSince(0) {
		if evt.Type == EventPlayerBoughtInTable && evt.TableSeq == after.LogicalClock {
			found = evt
		}
	}
	if found == nil {
		t.Fatal("buy-in event should carry the table sequence")
	}
}
