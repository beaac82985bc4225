package authority

import (
	"testing"

	"cardroom/core/types"
)

const testNow = int64(1_700_000_000_000)

func testClub() *Club {
	return &Club{
		ClubID:  "club_1",
		Name:    "Test Club",
		OwnerID: "plr_owner",
		Status:  ClubActive,
		Config: ClubConfig{
			MinBuyIn:          100,
			MaxBuyIn:          1000,
			MaxSeats:          6,
			MinPlayersToStart: 2,
			AllowRebuy:        true,
			AllowTopUp:        true,
		},
		Members: map[string]*Member{
			"plr_owner":   {PlayerID: "plr_owner", Role: RoleOwner, Status: MemberActive},
			"plr_manager": {PlayerID: "plr_manager", Role: RoleManager, Status: MemberActive},
			"plr_player":  {PlayerID: "plr_player", Role: RolePlayer, Status: MemberActive},
			"plr_banned":  {PlayerID: "plr_banned", Role: RolePlayer, Status: MemberBanned},
			"plr_left":    {PlayerID: "plr_left", Role: RolePlayer, Status: MemberLeft},
		},
		Invitations: map[string]*Invitation{},
	}
}

func testTable() *Table {
	return &Table{
		TableID:           "tbl_1",
		ClubID:            "club_1",
		Status:            TableOpen,
		MaxSeats:          6,
		MinPlayersToStart: 2,
	}
}

func decideCtx(ctx *AuthorizationContext) AuthorizationResult {
	ctx.RequestID = "req_test"
	return NewEngine().Decide(ctx, testNow)
}

func TestRoleMatrix(t *testing.T) {
	club := testClub()
	cases := []struct {
		action Action
		caller string
		reason DenialReason
	}{
		{ActionUpdateClubConfig, "plr_owner", ""},
		{ActionUpdateClubConfig, "plr_manager", DenyInsufficientRole},
		{ActionUpdateClubConfig, "plr_player", DenyInsufficientRole},
		{ActionInviteMember, "plr_manager", ""},
		{ActionInviteMember, "plr_player", DenyInsufficientRole},
		{ActionDeleteClub, "plr_manager", DenyInsufficientRole},
		{ActionPromoteManager, "plr_manager", DenyInsufficientRole},
	}
	for _, tc := range cases {
		ctx := &AuthorizationContext{
			Action:   tc.action,
			ClubID:   club.ClubID,
			CallerID: tc.caller,
			TargetID: "plr_new",
			Club:     club,
			Caller:   club.Members[tc.caller],
		}
		res := decideCtx(ctx)
		if tc.reason == "" && !res.Allowed {
			t.Fatalf("%s by %s: expected allow, denied %s", tc.action, tc.caller, res.DenialReason)
		}
		if tc.reason != "" && (res.Allowed || res.DenialReason != tc.reason) {
			t.Fatalf("%s by %s: expected %s, got allowed=%v reason=%s", tc.action, tc.caller, tc.reason, res.Allowed, res.DenialReason)
		}
	}
}

func TestMembershipGates(t *testing.T) {
	club := testClub()
	res := decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_stranger", TargetID: "plr_stranger", Club: club, Table: testTable()})
	if res.Allowed || res.DenialReason != DenyNotClubMember {
		t.Fatalf("expected NOT_CLUB_MEMBER, got %v/%s", res.Allowed, res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_banned", TargetID: "plr_banned", Club: club, Caller: club.Members["plr_banned"], Table: testTable()})
	if res.DenialReason != DenyMemberBanned {
		t.Fatalf("expected MEMBER_BANNED, got %s", res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_left", TargetID: "plr_left", Club: club, Caller: club.Members["plr_left"], Table: testTable()})
	if res.DenialReason != DenyMemberLeft {
		t.Fatalf("expected MEMBER_LEFT, got %s", res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", Club: &Club{ClubID: "club_1", Status: ClubDeleted}})
	if res.DenialReason != DenyClubNotActive {
		t.Fatalf("expected CLUB_NOT_ACTIVE, got %s", res.DenialReason)
	}
}

func TestAcceptInvitationRules(t *testing.T) {
	club := testClub()
	res := decideCtx(&AuthorizationContext{Action: ActionAcceptInvitation, ClubID: club.ClubID, CallerID: "plr_new", TargetID: "plr_new", Club: club})
	if res.Allowed || res.DenialReason != DenyInvalidTarget {
		t.Fatalf("no invitation: expected INVALID_TARGET, got %v/%s", res.Allowed, res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionAcceptInvitation, ClubID: club.ClubID, CallerID: "plr_new", TargetID: "plr_new", Club: club, HasInvitation: true})
	if !res.Allowed {
		t.Fatalf("with invitation: denied %s", res.DenialReason)
	}
	// A banned member cannot re-enter via an invitation.
	res = decideCtx(&AuthorizationContext{Action: ActionAcceptInvitation, ClubID: club.ClubID, CallerID: "plr_banned", TargetID: "plr_banned", Club: club, HasInvitation: true})
	if res.DenialReason != DenyMemberBanned {
		t.Fatalf("banned: expected MEMBER_BANNED, got %s", res.DenialReason)
	}
}

func TestKickProtections(t *testing.T) {
	club := testClub()
	tbl := testTable()
	tbl.OccupiedSeats = []string{"plr_owner", "plr_manager", "plr_player"}

	ctx := &AuthorizationContext{Action: ActionKickPlayer, ClubID: club.ClubID, CallerID: "plr_manager", TargetID: "plr_owner", TableID: tbl.TableID, Club: club, Caller: club.Members["plr_manager"], Target: club.Members["plr_owner"], Table: tbl, TargetSeated: true}
	if res := decideCtx(ctx); res.DenialReason != DenyCannotKickOwner {
		t.Fatalf("expected CANNOT_KICK_OWNER, got %s", res.DenialReason)
	}

	other := &Member{PlayerID: "plr_manager2", Role: RoleManager, Status: MemberActive}
	ctx = &AuthorizationContext{Action: ActionKickPlayer, ClubID: club.ClubID, CallerID: "plr_manager", TargetID: "plr_manager2", TableID: tbl.TableID, Club: club, Caller: club.Members["plr_manager"], Target: other, Table: tbl, TargetSeated: true}
	if res := decideCtx(ctx); res.DenialReason != DenyCannotKickManager {
		t.Fatalf("expected CANNOT_KICK_MANAGER, got %s", res.DenialReason)
	}

	// The owner outranks managers.
	ctx = &AuthorizationContext{Action: ActionKickPlayer, ClubID: club.ClubID, CallerID: "plr_owner", TargetID: "plr_manager", TableID: tbl.TableID, Club: club, Caller: club.Members["plr_owner"], Target: club.Members["plr_manager"], Table: tbl, TargetSeated: true}
	if res := decideCtx(ctx); !res.Allowed {
		t.Fatalf("owner kicking manager: denied %s", res.DenialReason)
	}
}

func TestDemoteAndTransferTargets(t *testing.T) {
	club := testClub()
	ctx := &AuthorizationContext{Action: ActionDemoteManager, ClubID: club.ClubID, CallerID: "plr_owner", TargetID: "plr_owner", Club: club, Caller: club.Members["plr_owner"], Target: club.Members["plr_owner"]}
	if res := decideCtx(ctx); res.DenialReason != DenyCannotDemoteOwner {
		t.Fatalf("expected CANNOT_DEMOTE_OWNER, got %s", res.DenialReason)
	}
	ctx = &AuthorizationContext{Action: ActionTransferOwner, ClubID: club.ClubID, CallerID: "plr_owner", TargetID: "plr_owner", Club: club, Caller: club.Members["plr_owner"], Target: club.Members["plr_owner"]}
	if res := decideCtx(ctx); res.DenialReason != DenyInvalidTarget {
		t.Fatalf("self transfer: expected INVALID_TARGET, got %s", res.DenialReason)
	}
	ctx = &AuthorizationContext{Action: ActionTransferOwner, ClubID: club.ClubID, CallerID: "plr_owner", TargetID: "plr_player", Club: club, Caller: club.Members["plr_owner"], Target: club.Members["plr_player"]}
	if res := decideCtx(ctx); !res.Allowed {
		t.Fatalf("transfer to active player: denied %s", res.DenialReason)
	}
}

func TestSelfOnlyActions(t *testing.T) {
	club := testClub()
	ctx := &AuthorizationContext{Action: ActionBuyIn, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_manager", TableID: "tbl_1", Amount: 200, Club: club, Caller: club.Members["plr_player"], Table: testTable()}
	if res := decideCtx(ctx); res.DenialReason != DenySelfActionNotAllowed {
		t.Fatalf("expected SELF_ACTION_NOT_ALLOWED, got %s", res.DenialReason)
	}
}

func TestBuyInBounds(t *testing.T) {
	club := testClub()
	tbl := testTable()
	tbl.OccupiedSeats = []string{"plr_player"}
	base := AuthorizationContext{
		Action: ActionBuyIn, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player",
		TableID: tbl.TableID, Club: club, Caller: club.Members["plr_player"], Table: tbl,
		CallerSeated: true, Available: 5000,
	}
	cases := []struct {
		amount    types.Chips
		available types.Chips
		reason    DenialReason
	}{
		{50, 5000, DenyBuyInBelowMinimum},
		{2000, 5000, DenyBuyInAboveMaximum},
		{500, 100, DenyInsufficientBalance},
		{500, 5000, ""},
	}
	for _, tc := range cases {
		ctx := base
		ctx.Amount = tc.amount
		ctx.Available = tc.available
		res := decideCtx(&ctx)
		if tc.reason == "" && !res.Allowed {
			t.Fatalf("buy-in %d: denied %s", tc.amount, res.DenialReason)
		}
		if tc.reason != "" && res.DenialReason != tc.reason {
			t.Fatalf("buy-in %d: expected %s, got %s", tc.amount, tc.reason, res.DenialReason)
		}
	}
}

func TestUnboundedMaxBuyIn(t *testing.T) {
	club := testClub()
	club.Config.MaxBuyIn = 0
	tbl := testTable()
	ctx := &AuthorizationContext{
		Action: ActionBuyIn, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player",
		TableID: tbl.TableID, Amount: 1_000_000, Available: 2_000_000,
		Club: club, Caller: club.Members["plr_player"], Table: tbl, CallerSeated: true,
	}
	if res := decideCtx(ctx); !res.Allowed {
		t.Fatalf("unbounded max: denied %s", res.DenialReason)
	}
}

func TestTableGates(t *testing.T) {
	club := testClub()

	paused := testTable()
	paused.Status = TablePaused
	res := decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: paused.TableID, Club: club, Caller: club.Members["plr_player"], Table: paused})
	if res.DenialReason != DenyTablePaused {
		t.Fatalf("join paused: expected TABLE_PAUSED, got %s", res.DenialReason)
	}

	full := testTable()
	full.MaxSeats = 2
	full.OccupiedSeats = []string{"plr_a", "plr_b"}
	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: full.TableID, Club: club, Caller: club.Members["plr_player"], Table: full})
	if res.DenialReason != DenyTableFull {
		t.Fatalf("join full: expected TABLE_FULL, got %s", res.DenialReason)
	}

	inHand := testTable()
	inHand.Status = TableActive
	inHand.CurrentHandID = "hand_1"
	inHand.OccupiedSeats = []string{"plr_player", "plr_manager"}
	for _, action := range []Action{ActionLeaveTable, ActionCashOut, ActionRebuy} {
		res = decideCtx(&AuthorizationContext{Action: action, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: inHand.TableID, Amount: 200, Available: 5000, Club: club, Caller: club.Members["plr_player"], Table: inHand, CallerSeated: true})
		if res.DenialReason != DenyHandInProgress {
			t.Fatalf("%s during hand: expected HAND_IN_PROGRESS, got %s", action, res.DenialReason)
		}
	}
	res = decideCtx(&AuthorizationContext{Action: ActionCloseTable, ClubID: club.ClubID, CallerID: "plr_manager", TableID: inHand.TableID, Club: club, Caller: club.Members["plr_manager"], Table: inHand})
	if res.DenialReason != DenyHandInProgress {
		t.Fatalf("close during hand: expected HAND_IN_PROGRESS, got %s", res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionStartHand, ClubID: club.ClubID, CallerID: "plr_manager", TableID: inHand.TableID, Club: club, Caller: club.Members["plr_manager"], Table: inHand})
	if res.DenialReason != DenyHandInProgress {
		t.Fatalf("double start: expected HAND_IN_PROGRESS, got %s", res.DenialReason)
	}

	closed := testTable()
	closed.Status = TableClosed
	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: closed.TableID, Club: club, Caller: club.Members["plr_player"], Table: closed})
	if res.DenialReason != DenyTableClosed {
		t.Fatalf("join closed: expected TABLE_CLOSED, got %s", res.DenialReason)
	}

	res = decideCtx(&AuthorizationContext{Action: ActionStartHand, ClubID: club.ClubID, CallerID: "plr_manager", TableID: "tbl_1", Club: club, Caller: club.Members["plr_manager"], Table: testTable()})
	if res.Allowed {
		t.Fatal("start with no seated players should be denied")
	}

	res = decideCtx(&AuthorizationContext{Action: ActionForceAction, ClubID: club.ClubID, CallerID: "plr_manager", TargetID: "plr_player", TableID: "tbl_1", Club: club, Caller: club.Members["plr_manager"], Table: testTable()})
	if res.DenialReason != DenyNoHandInProgress {
		t.Fatalf("force without hand: expected NO_HAND_IN_PROGRESS, got %s", res.DenialReason)
	}

	res = decideCtx(&AuthorizationContext{Action: ActionJoinTable, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: "tbl_missing", Club: club, Caller: club.Members["plr_player"]})
	if res.DenialReason != DenyTableNotFound {
		t.Fatalf("missing table: expected TABLE_NOT_FOUND, got %s", res.DenialReason)
	}
}

func TestRakePolicyLocked(t *testing.T) {
	club := testClub()
	ctx := &AuthorizationContext{Action: ActionUpdateRakePolicy, ClubID: club.ClubID, CallerID: "plr_owner", Club: club, Caller: club.Members["plr_owner"], PolicyLocked: true}
	if res := decideCtx(ctx); res.DenialReason != DenyRakePolicyLocked {
		t.Fatalf("expected RAKE_POLICY_LOCKED, got %s", res.DenialReason)
	}
	ctx.PolicyLocked = false
	if res := decideCtx(ctx); !res.Allowed {
		t.Fatalf("unlocked policy update: denied %s", res.DenialReason)
	}
}

func TestRebuyAndTopUpFlags(t *testing.T) {
	club := testClub()
	club.Config.AllowRebuy = false
	club.Config.AllowTopUp = false
	tbl := testTable()
	res := decideCtx(&AuthorizationContext{Action: ActionRebuy, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: tbl.TableID, Amount: 200, Available: 5000, Club: club, Caller: club.Members["plr_player"], Table: tbl, CallerSeated: true})
	if res.DenialReason != DenyRebuyNotAllowed {
		t.Fatalf("expected REBUY_NOT_ALLOWED, got %s", res.DenialReason)
	}
	res = decideCtx(&AuthorizationContext{Action: ActionTopUp, ClubID: club.ClubID, CallerID: "plr_player", TargetID: "plr_player", TableID: tbl.TableID, Amount: 200, Available: 5000, Club: club, Caller: club.Members["plr_player"], Table: tbl, CallerSeated: true})
	if res.DenialReason != DenyTopUpNotAllowed {
		t.Fatalf("expected TOP_UP_NOT_ALLOWED, got %s", res.DenialReason)
	}
}

func TestCanViewPlayer(t *testing.T) {
	club := testClub()
	engine := NewEngine()
	clubs := []*Club{club}
	if !engine.CanViewPlayer("plr_player", "plr_player", clubs) {
		t.Fatal("self view should always be allowed")
	}
	if engine.CanViewPlayer("plr_player", "plr_manager", clubs) {
		t.Fatal("plain player must not view others")
	}
	if !engine.CanViewPlayer("plr_manager", "plr_player", clubs) {
		t.Fatal("manager of a shared club should view members")
	}
	if engine.CanViewPlayer("plr_manager", "plr_left", clubs) {
		t.Fatal("departed members are out of scope")
	}
	if engine.CanViewPlayer("plr_manager", "plr_stranger", clubs) {
		t.Fatal("non-members are out of scope")
	}
}
