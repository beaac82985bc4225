package authority

// Engine decides authorization requests. It is pure: the authority
// assembles the context, the engine inspects it and returns a result,
// and no state changes on either path. Every rule here corresponds to
// one row of the role matrix or one hand-lifecycle precondition.
type Engine struct{}

// NewEngine returns the authorization engine.
func NewEngine() *Engine { return &Engine{} }

// Decide evaluates the context. The result carries the request ID and
// caller so denials are auditable on their own.
func (e *Engine) Decide(ctx *AuthorizationContext, now int64) AuthorizationResult {
	reason, allowed := e.decide(ctx)
	res := AuthorizationResult{
		Allowed:   allowed,
		RequestID: ctx.RequestID,
		CallerID:  ctx.CallerID,
		Action:    ctx.Action,
		Timestamp: now,
	}
	if !allowed {
		res.DenialReason = reason
	}
	return res
}

func (e *Engine) decide(ctx *AuthorizationContext) (DenialReason, bool) {
	if ctx.Action == ActionCreateClub {
		return "", true
	}
	if ctx.Club == nil || ctx.Club.Status != ClubActive {
		return DenyClubNotActive, false
	}
	if ctx.Action == ActionAcceptInvitation {
		if m, ok := ctx.Club.MemberFor(ctx.CallerID); ok && m.Status == MemberBanned {
			return DenyMemberBanned, false
		}
		if !ctx.HasInvitation {
			return DenyInvalidTarget, false
		}
		return "", true
	}

	if ctx.Caller == nil {
		return DenyNotClubMember, false
	}
	switch ctx.Caller.Status {
	case MemberBanned:
		return DenyMemberBanned, false
	case MemberLeft:
		return DenyMemberLeft, false
	}
	if min, ok := minRoleFor[ctx.Action]; ok && ctx.Caller.Role < min {
		return DenyInsufficientRole, false
	}
	if _, selfOnly := selfOnlyActions[ctx.Action]; selfOnly && ctx.TargetID != ctx.CallerID {
		return DenySelfActionNotAllowed, false
	}

	if reason, ok := e.checkTarget(ctx); !ok {
		return reason, false
	}
	return e.checkTable(ctx)
}

// checkTarget enforces the member-on-member protections: managers may
// not touch other managers, and nobody touches the owner.
func (e *Engine) checkTarget(ctx *AuthorizationContext) (DenialReason, bool) {
	switch ctx.Action {
	case ActionRemoveMember, ActionBanMember, ActionKickPlayer:
		if ctx.Target == nil {
			return DenyInvalidTarget, false
		}
		if ctx.Target.Role == RoleOwner {
			return DenyCannotKickOwner, false
		}
		if ctx.Target.Role == RoleManager && ctx.Caller.Role < RoleOwner {
			return DenyCannotKickManager, false
		}
	case ActionUnbanMember:
		if ctx.Target == nil || ctx.Target.Status != MemberBanned {
			return DenyInvalidTarget, false
		}
	case ActionPromoteManager:
		if ctx.Target == nil || ctx.Target.Status != MemberActive || ctx.Target.Role != RolePlayer {
			return DenyInvalidTarget, false
		}
	case ActionDemoteManager:
		if ctx.Target == nil {
			return DenyInvalidTarget, false
		}
		if ctx.Target.Role == RoleOwner {
			return DenyCannotDemoteOwner, false
		}
		if ctx.Target.Role != RoleManager {
			return DenyInvalidTarget, false
		}
	case ActionTransferOwner:
		if ctx.Target == nil || ctx.Target.Status != MemberActive || ctx.TargetID == ctx.CallerID {
			return DenyInvalidTarget, false
		}
	case ActionInviteMember:
		if ctx.TargetID == "" {
			return DenyInvalidTarget, false
		}
		if ctx.Target != nil && ctx.Target.Status == MemberActive {
			return DenyInvalidTarget, false
		}
	}
	return "", true
}

// checkTable enforces table existence, the state machine's gate for
// each action, the hand-lifecycle preconditions and the buy-in bounds.
func (e *Engine) checkTable(ctx *AuthorizationContext) (DenialReason, bool) {
	if ctx.Action == ActionUpdateRakePolicy {
		if ctx.PolicyLocked {
			return DenyRakePolicyLocked, false
		}
		return "", true
	}
	if !actionNeedsTable(ctx.Action) {
		return "", true
	}
	if ctx.Table == nil {
		return DenyTableNotFound, false
	}
	if ctx.Table.Status == TableClosed {
		return DenyTableClosed, false
	}
	handOpen := ctx.Table.CurrentHandID != ""

	switch ctx.Action {
	case ActionJoinTable:
		if ctx.Table.Status == TablePaused {
			return DenyTablePaused, false
		}
		if ctx.CallerSeated {
			return DenyPlayerAlreadySeated, false
		}
		if len(ctx.Table.OccupiedSeats) >= ctx.Table.MaxSeats {
			return DenyTableFull, false
		}
	case ActionLeaveTable:
		if !ctx.CallerSeated {
			return DenyPlayerNotAtTable, false
		}
		if handOpen {
			return DenyHandInProgress, false
		}
	case ActionBuyIn:
		if ctx.Table.Status == TablePaused {
			return DenyTablePaused, false
		}
		if !ctx.CallerSeated {
			return DenyPlayerNotAtTable, false
		}
		return e.checkBuyInBounds(ctx)
	case ActionRebuy:
		if ctx.Table.Status == TablePaused {
			return DenyTablePaused, false
		}
		if !ctx.Club.Config.AllowRebuy {
			return DenyRebuyNotAllowed, false
		}
		if !ctx.CallerSeated {
			return DenyPlayerNotAtTable, false
		}
		if handOpen {
			return DenyHandInProgress, false
		}
		return e.checkBuyInBounds(ctx)
	case ActionTopUp:
		if ctx.Table.Status == TablePaused {
			return DenyTablePaused, false
		}
		if !ctx.Club.Config.AllowTopUp {
			return DenyTopUpNotAllowed, false
		}
		if !ctx.CallerSeated {
			return DenyPlayerNotAtTable, false
		}
		if ctx.Amount > ctx.Available {
			return DenyInsufficientBalance, false
		}
	case ActionCashOut:
		if !ctx.CallerSeated {
			return DenyPlayerNotAtTable, false
		}
		if handOpen {
			return DenyHandInProgress, false
		}
	case ActionKickPlayer:
		if !ctx.TargetSeated {
			return DenyPlayerNotAtTable, false
		}
	case ActionStartHand:
		if ctx.Table.Status == TablePaused {
			return DenyTablePaused, false
		}
		if handOpen {
			return DenyHandInProgress, false
		}
		if len(ctx.Table.OccupiedSeats) < ctx.Table.MinPlayersToStart {
			return DenyInvalidTarget, false
		}
	case ActionForceAction:
		if !handOpen {
			return DenyNoHandInProgress, false
		}
	case ActionCloseTable:
		if ctx.Table.Status == TableActive || handOpen {
			return DenyHandInProgress, false
		}
	case ActionPauseTable:
		if handOpen {
			return DenyHandInProgress, false
		}
	case ActionResumeTable:
		if ctx.Table.Status != TablePaused {
			return DenyInvalidTarget, false
		}
	}
	return "", true
}

func (e *Engine) checkBuyInBounds(ctx *AuthorizationContext) (DenialReason, bool) {
	cfg := ctx.Club.Config
	if ctx.Amount < cfg.MinBuyIn {
		return DenyBuyInBelowMinimum, false
	}
	if cfg.MaxBuyIn > 0 && ctx.Amount > cfg.MaxBuyIn {
		return DenyBuyInAboveMaximum, false
	}
	if ctx.Amount > ctx.Available {
		return DenyInsufficientBalance, false
	}
	return "", true
}

func actionNeedsTable(action Action) bool {
	switch action {
	case ActionCloseTable, ActionPauseTable, ActionResumeTable,
		ActionJoinTable, ActionLeaveTable, ActionBuyIn, ActionCashOut,
		ActionRebuy, ActionTopUp, ActionKickPlayer, ActionStartHand,
		ActionForceAction:
		return true
	default:
		return false
	}
}

// CanViewPlayer reports whether a caller may read another player's
// balance and escrow state: themselves always, otherwise only a
// manager or owner of a club the target belongs to.
func (e *Engine) CanViewPlayer(callerID, targetID string, clubs []*Club) bool {
	if callerID == targetID {
		return true
	}
	for _, club := range clubs {
		caller, ok := club.MemberFor(callerID)
		if !ok || caller.Status != MemberActive || caller.Role < RoleManager {
			continue
		}
		if target, ok := club.MemberFor(targetID); ok && target.Status != MemberLeft {
			return true
		}
	}
	return false
}
