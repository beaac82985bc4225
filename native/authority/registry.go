package authority

import (
	"strings"
	"sync"
	"time"

	"cardroom/core/types"
	"cardroom/native/rake"
)

// Registry owns every club record: memberships, invitations, config
// and the club's rake policy. It is its own single-writer actor; the
// authority consults it to build authorization contexts and mutates it
// only after an allow decision.
type Registry struct {
	mu    sync.Mutex
	clubs map[string]*Club
	ids   types.IDSource
	nowFn func() int64
}

// NewRegistry returns an empty club registry.
func NewRegistry() *Registry {
	return &Registry{
		clubs: make(map[string]*Club),
		ids:   types.UUIDSource{},
		nowFn: func() int64 { return time.Now().UnixMilli() },
	}
}

// SetIDSource overrides the club ID source.
func (r *Registry) SetIDSource(src types.IDSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src == nil {
		src = types.UUIDSource{}
	}
	r.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (r *Registry) SetNowFunc(now func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	r.nowFn = now
}

// CreateClub registers a club with the caller as owner.
func (r *Registry) CreateClub(ownerID, name string, cfg ClubConfig, policy rake.Config) (*Club, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" || name == "" {
		return nil, types.ErrValidation(types.CodeInvalidID, "owner and name must not be empty", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	club := &Club{
		ClubID:     types.NewID(types.PrefixClub, r.ids),
		Name:       name,
		OwnerID:    ownerID,
		Status:     ClubActive,
		Config:     cfg,
		RakePolicy: policy.Clone(),
		Members: map[string]*Member{
			ownerID: {PlayerID: ownerID, Role: RoleOwner, Status: MemberActive, JoinedAt: now},
		},
		Invitations: make(map[string]*Invitation),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if club.RakePolicy.PolicyID == "" {
		club.RakePolicy.PolicyID = "pol_" + club.ClubID
	}
	r.clubs[club.ClubID] = club
	return club.Clone(), nil
}

// Get returns a copy of the club, if any.
func (r *Registry) Get(clubID string) (*Club, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	club, ok := r.clubs[strings.TrimSpace(clubID)]
	if !ok {
		return nil, false
	}
	return club.Clone(), true
}

// Clubs returns copies of every club.
func (r *Registry) Clubs() []*Club {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Club, 0, len(r.clubs))
	for _, club := range r.clubs {
		out = append(out, club.Clone())
	}
	return out
}

// ClubsOf returns copies of every club the player belongs to.
func (r *Registry) ClubsOf(playerID string) []*Club {
	r.mu.Lock()
	defer r.mu.Unlock()
	playerID = strings.TrimSpace(playerID)
	out := make([]*Club, 0, 4)
	for _, club := range r.clubs {
		if m, ok := club.Members[playerID]; ok && m.Status == MemberActive {
			out = append(out, club.Clone())
		}
	}
	return out
}

// UpdateConfig replaces the club's table policy.
func (r *Registry) UpdateConfig(clubID string, cfg ClubConfig) (*Club, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return r.mutate(clubID, func(club *Club) error {
		club.Config = cfg
		return nil
	})
}

// UpdateRakePolicy replaces the club's rake policy.
func (r *Registry) UpdateRakePolicy(clubID string, policy rake.Config) (*Club, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return r.mutate(clubID, func(club *Club) error {
		club.RakePolicy = policy.Clone()
		if club.RakePolicy.PolicyID == "" {
			club.RakePolicy.PolicyID = "pol_" + club.ClubID
		}
		return nil
	})
}

// Delete marks the club deleted. Records survive for audit reads.
func (r *Registry) Delete(clubID string) (*Club, error) {
	return r.mutate(clubID, func(club *Club) error {
		club.Status = ClubDeleted
		return nil
	})
}

// Invite records a pending membership offer.
func (r *Registry) Invite(clubID, inviterID, playerID string) (*Club, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, types.ErrValidation(types.CodeInvalidID, "player id must not be empty", nil)
	}
	return r.mutate(clubID, func(club *Club) error {
		club.Invitations[playerID] = &Invitation{
			PlayerID:  playerID,
			InvitedBy: strings.TrimSpace(inviterID),
			CreatedAt: r.nowFn(),
		}
		return nil
	})
}

// HasInvitation reports whether the player holds a pending invitation.
func (r *Registry) HasInvitation(clubID, playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	club, ok := r.clubs[strings.TrimSpace(clubID)]
	if !ok {
		return false
	}
	_, ok = club.Invitations[strings.TrimSpace(playerID)]
	return ok
}

// AcceptInvitation converts a pending invitation into an active
// player membership. A member who previously left rejoins.
func (r *Registry) AcceptInvitation(clubID, playerID string) (*Club, error) {
	playerID = strings.TrimSpace(playerID)
	return r.mutate(clubID, func(club *Club) error {
		if _, ok := club.Invitations[playerID]; !ok {
			return types.ErrValidation(types.CodeInvalidState, "no invitation for player", map[string]string{
				"clubId": club.ClubID, "playerId": playerID,
			})
		}
		delete(club.Invitations, playerID)
		if m, ok := club.Members[playerID]; ok {
			m.Status = MemberActive
			m.JoinedAt = r.nowFn()
			return nil
		}
		club.Members[playerID] = &Member{
			PlayerID: playerID, Role: RolePlayer, Status: MemberActive, JoinedAt: r.nowFn(),
		}
		return nil
	})
}

// SetMemberStatus flips a member's lifecycle state (remove, ban,
// unban).
func (r *Registry) SetMemberStatus(clubID, playerID string, status MemberStatus) (*Club, error) {
	playerID = strings.TrimSpace(playerID)
	return r.mutate(clubID, func(club *Club) error {
		m, ok := club.Members[playerID]
		if !ok {
			return memberNotFoundErr(club.ClubID, playerID)
		}
		m.Status = status
		return nil
	})
}

// SetMemberRole changes a member's role (promote, demote).
func (r *Registry) SetMemberRole(clubID, playerID string, role Role) (*Club, error) {
	playerID = strings.TrimSpace(playerID)
	return r.mutate(clubID, func(club *Club) error {
		m, ok := club.Members[playerID]
		if !ok {
			return memberNotFoundErr(club.ClubID, playerID)
		}
		m.Role = role
		return nil
	})
}

// TransferOwnership hands the club to another active member. The old
// owner stays on as a manager.
func (r *Registry) TransferOwnership(clubID, fromID, toID string) (*Club, error) {
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	return r.mutate(clubID, func(club *Club) error {
		from, ok := club.Members[fromID]
		if !ok {
			return memberNotFoundErr(club.ClubID, fromID)
		}
		to, ok := club.Members[toID]
		if !ok {
			return memberNotFoundErr(club.ClubID, toID)
		}
		from.Role = RoleManager
		to.Role = RoleOwner
		club.OwnerID = toID
		return nil
	})
}

func (r *Registry) mutate(clubID string, apply func(*Club) error) (*Club, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	club, ok := r.clubs[strings.TrimSpace(clubID)]
	if !ok {
		return nil, types.ErrPrecondition(types.CodeAccountNotFound, "club not found", map[string]string{
			"clubId": strings.TrimSpace(clubID),
		})
	}
	if err := apply(club); err != nil {
		return nil, err
	}
	club.UpdatedAt = r.nowFn()
	return club.Clone(), nil
}

func memberNotFoundErr(clubID, playerID string) *types.EconomyError {
	return types.ErrPrecondition(types.CodeAccountNotFound, "member not found", map[string]string{
		"clubId": clubID, "playerId": playerID,
	})
}
