package authority

import (
	"strings"

	"cardroom/core/types"
	"cardroom/native/rake"
)

// MemberStatus tracks a member's lifecycle inside a club.
type MemberStatus string

const (
	MemberActive MemberStatus = "active"
	MemberBanned MemberStatus = "banned"
	MemberLeft   MemberStatus = "left"
)

// Member is one player's standing inside a club.
type Member struct {
	PlayerID string       `json:"playerId"`
	Role     Role         `json:"role"`
	Status   MemberStatus `json:"status"`
	JoinedAt int64        `json:"joinedAt"`
}

// Invitation is a pending membership offer.
type Invitation struct {
	PlayerID  string `json:"playerId"`
	InvitedBy string `json:"invitedBy"`
	CreatedAt int64  `json:"createdAt"`
}

// ClubStatus tracks a club's lifecycle.
type ClubStatus string

const (
	ClubActive  ClubStatus = "active"
	ClubDeleted ClubStatus = "deleted"
)

// ClubConfig carries the table and buy-in policy every table of the
// club inherits.
type ClubConfig struct {
	MinBuyIn          types.Chips `json:"minBuyIn"`
	MaxBuyIn          types.Chips `json:"maxBuyIn"`
	MaxSeats          int         `json:"maxSeats"`
	MinPlayersToStart int         `json:"minPlayersToStart"`
	AllowRebuy        bool        `json:"allowRebuy"`
	AllowTopUp        bool        `json:"allowTopUp"`
}

// Validate rejects configurations no table could operate under.
func (c ClubConfig) Validate() error {
	if c.MinBuyIn < 0 || c.MaxBuyIn < 0 {
		return types.ErrValidation(types.CodeInvalidConfig, "buy-in bounds must be non-negative", nil)
	}
	if c.MaxBuyIn > 0 && c.MinBuyIn > c.MaxBuyIn {
		return types.ErrValidation(types.CodeInvalidConfig, "minimum buy-in above maximum", nil)
	}
	if c.MaxSeats < 2 {
		return types.ErrValidation(types.CodeInvalidConfig, "tables need at least two seats", nil)
	}
	if c.MinPlayersToStart < 2 || c.MinPlayersToStart > c.MaxSeats {
		return types.ErrValidation(types.CodeInvalidConfig, "min players to start out of range", nil)
	}
	return nil
}

// Club is one club's registry record.
type Club struct {
	ClubID      string                 `json:"clubId"`
	Name        string                 `json:"name"`
	OwnerID     string                 `json:"ownerId"`
	Status      ClubStatus             `json:"status"`
	Config      ClubConfig             `json:"config"`
	RakePolicy  rake.Config            `json:"rakePolicy"`
	Members     map[string]*Member     `json:"members"`
	Invitations map[string]*Invitation `json:"invitations"`
	CreatedAt   int64                  `json:"createdAt"`
	UpdatedAt   int64                  `json:"updatedAt"`
}

// Clone returns a deep copy of the club.
func (c *Club) Clone() *Club {
	if c == nil {
		return nil
	}
	clone := *c
	clone.RakePolicy = c.RakePolicy.Clone()
	clone.Members = make(map[string]*Member, len(c.Members))
	for id, m := range c.Members {
		member := *m
		clone.Members[id] = &member
	}
	clone.Invitations = make(map[string]*Invitation, len(c.Invitations))
	for id, inv := range c.Invitations {
		invitation := *inv
		clone.Invitations[id] = &invitation
	}
	return &clone
}

// MemberFor returns the membership record for the player, if any.
func (c *Club) MemberFor(playerID string) (*Member, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.Members[strings.TrimSpace(playerID)]
	return m, ok
}

// TableStatus is the table state machine's current state.
type TableStatus string

const (
	TableOpen   TableStatus = "open"
	TableActive TableStatus = "active"
	TablePaused TableStatus = "paused"
	TableClosed TableStatus = "closed"
)

// Table is the externally visible table record.
type Table struct {
	TableID            string      `json:"tableId"`
	ClubID             string      `json:"clubId"`
	Name               string      `json:"name"`
	Status             TableStatus `json:"status"`
	CurrentHandID      string      `json:"currentHandId,omitempty"`
	OccupiedSeats      []string    `json:"occupiedSeats"`
	MaxSeats           int         `json:"maxSeats"`
	MinPlayersToStart  int         `json:"minPlayersToStart"`
	RakePolicySnapshot *rake.Ref   `json:"rakePolicySnapshot,omitempty"`
	HandsPlayed        uint64      `json:"handsPlayed"`
	LogicalClock       uint64      `json:"logicalClock"`
	CreatedAt          int64       `json:"createdAt"`
	UpdatedAt          int64       `json:"updatedAt"`
}

// Clone returns a deep copy of the table record.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := *t
	clone.OccupiedSeats = append([]string(nil), t.OccupiedSeats...)
	if t.RakePolicySnapshot != nil {
		ref := *t.RakePolicySnapshot
		clone.RakePolicySnapshot = &ref
	}
	return &clone
}

// AuthorizationContext is everything the engine inspects to decide one
// request. The authority assembles it from the registry and the target
// table before any state is touched.
type AuthorizationContext struct {
	RequestID string
	Action    Action
	ClubID    string
	CallerID  string
	TargetID  string
	TableID   string
	Amount    types.Chips

	Club          *Club
	Caller        *Member
	Target        *Member
	Table         *Table
	CallerSeated  bool
	TargetSeated  bool
	Available     types.Chips
	HasInvitation bool
	PolicyLocked  bool
}

// AuthorizationResult is the engine's decision, attached to every
// response whether allowed or denied.
type AuthorizationResult struct {
	Allowed      bool         `json:"allowed"`
	DenialReason DenialReason `json:"denialReason,omitempty"`
	RequestID    string       `json:"requestId"`
	CallerID     string       `json:"callerId"`
	Action       Action       `json:"action"`
	Timestamp    int64        `json:"timestamp"`
}

// Response is the uniform envelope of every authority operation.
type Response struct {
	Success       bool                `json:"success"`
	Data          any                 `json:"data,omitempty"`
	Authorization AuthorizationResult `json:"authorization"`
	Error         string              `json:"error,omitempty"`
}
