package authority

// Action enumerates every externally triggerable operation the
// authority gates. The set is fixed; the RPC surface mirrors it one
// to one.
type Action string

const (
	ActionCreateClub       Action = "create_club"
	ActionUpdateClubConfig Action = "update_club_config"
	ActionUpdateRakePolicy Action = "update_rake_policy"
	ActionDeleteClub       Action = "delete_club"
	ActionInviteMember     Action = "invite_member"
	ActionAcceptInvitation Action = "accept_invitation"
	ActionRemoveMember     Action = "remove_member"
	ActionBanMember        Action = "ban_member"
	ActionUnbanMember      Action = "unban_member"
	ActionPromoteManager   Action = "promote_to_manager"
	ActionDemoteManager    Action = "demote_from_manager"
	ActionTransferOwner    Action = "transfer_ownership"
	ActionCreateTable      Action = "create_table"
	ActionCloseTable       Action = "close_table"
	ActionPauseTable       Action = "pause_table"
	ActionResumeTable      Action = "resume_table"
	ActionJoinTable        Action = "join_table"
	ActionLeaveTable       Action = "leave_table"
	ActionBuyIn            Action = "buy_in"
	ActionCashOut          Action = "cash_out"
	ActionRebuy            Action = "rebuy"
	ActionTopUp            Action = "top_up"
	ActionKickPlayer       Action = "kick_player"
	ActionStartHand        Action = "start_hand"
	ActionForceAction      Action = "force_action"
)

// Role is a member's standing inside a club. Higher roles subsume the
// permissions of lower ones.
type Role uint8

const (
	RoleNone Role = iota
	RolePlayer
	RoleManager
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "player"
	case RoleManager:
		return "manager"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// minRoleFor is the constant role matrix. Actions absent from the map
// require no club membership at all; the engine special-cases
// create_club and accept_invitation.
var minRoleFor = map[Action]Role{
	ActionUpdateClubConfig: RoleOwner,
	ActionUpdateRakePolicy: RoleOwner,
	ActionDeleteClub:       RoleOwner,
	ActionTransferOwner:    RoleOwner,
	ActionPromoteManager:   RoleOwner,
	ActionDemoteManager:    RoleOwner,

	ActionInviteMember: RoleManager,
	ActionRemoveMember: RoleManager,
	ActionBanMember:    RoleManager,
	ActionUnbanMember:  RoleManager,
	ActionCreateTable:  RoleManager,
	ActionCloseTable:   RoleManager,
	ActionPauseTable:   RoleManager,
	ActionResumeTable:  RoleManager,
	ActionKickPlayer:   RoleManager,
	ActionStartHand:    RoleManager,
	ActionForceAction:  RoleManager,

	ActionJoinTable:  RolePlayer,
	ActionLeaveTable: RolePlayer,
	ActionBuyIn:      RolePlayer,
	ActionCashOut:    RolePlayer,
	ActionRebuy:      RolePlayer,
	ActionTopUp:      RolePlayer,
}

// selfOnlyActions are player actions a caller may only perform on
// themselves.
var selfOnlyActions = map[Action]struct{}{
	ActionJoinTable:  {},
	ActionLeaveTable: {},
	ActionBuyIn:      {},
	ActionCashOut:    {},
	ActionRebuy:      {},
	ActionTopUp:      {},
}

// DenialReason is the machine-readable ground for an authorization
// denial.
type DenialReason string

const (
	DenyNotClubMember        DenialReason = "NOT_CLUB_MEMBER"
	DenyInsufficientRole     DenialReason = "INSUFFICIENT_ROLE"
	DenyMemberBanned         DenialReason = "MEMBER_BANNED"
	DenyMemberLeft           DenialReason = "MEMBER_LEFT"
	DenyTableNotFound        DenialReason = "TABLE_NOT_FOUND"
	DenyTableClosed          DenialReason = "TABLE_CLOSED"
	DenyTablePaused          DenialReason = "TABLE_PAUSED"
	DenyHandInProgress       DenialReason = "HAND_IN_PROGRESS"
	DenyNoHandInProgress     DenialReason = "NO_HAND_IN_PROGRESS"
	DenyPlayerNotAtTable     DenialReason = "PLAYER_NOT_AT_TABLE"
	DenyPlayerAlreadySeated  DenialReason = "PLAYER_ALREADY_AT_TABLE"
	DenyTableFull            DenialReason = "TABLE_FULL"
	DenyInsufficientBalance  DenialReason = "INSUFFICIENT_BALANCE"
	DenyBuyInBelowMinimum    DenialReason = "BUY_IN_BELOW_MINIMUM"
	DenyBuyInAboveMaximum    DenialReason = "BUY_IN_ABOVE_MAXIMUM"
	DenyRebuyNotAllowed      DenialReason = "REBUY_NOT_ALLOWED"
	DenyTopUpNotAllowed      DenialReason = "TOP_UP_NOT_ALLOWED"
	DenyRakePolicyLocked     DenialReason = "RAKE_POLICY_LOCKED"
	DenyCannotKickOwner      DenialReason = "CANNOT_KICK_OWNER"
	DenyCannotKickManager    DenialReason = "CANNOT_KICK_MANAGER"
	DenyCannotDemoteOwner    DenialReason = "CANNOT_DEMOTE_OWNER"
	DenySelfActionNotAllowed DenialReason = "SELF_ACTION_NOT_ALLOWED"
	DenyInvalidTarget        DenialReason = "INVALID_TARGET"
	DenyClubNotActive        DenialReason = "CLUB_NOT_ACTIVE"
)
