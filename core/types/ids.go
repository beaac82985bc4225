package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes. Every entity in the economy carries an opaque
// string ID whose prefix names its kind, so a misrouted ID fails fast
// at validation instead of deep inside a keeper.
const (
	PrefixPlayer     = "plr_"
	PrefixClub       = "club_"
	PrefixTable      = "tbl_"
	PrefixHand       = "hand_"
	PrefixLedger     = "led_"
	PrefixSettlement = "stl_"
	PrefixTxn        = "txn_"
	PrefixSnapshot   = "snap_"
	PrefixEvent      = "evt_"
	PrefixRequest    = "req_"
)

// IDSource mints unique identifier suffixes. Production wiring uses
// UUIDs; tests substitute a deterministic sequence.
type IDSource interface {
	Next() string
}

// UUIDSource mints random UUID suffixes.
type UUIDSource struct{}

func (UUIDSource) Next() string { return uuid.NewString() }

// SequenceSource mints deterministic, monotonically numbered suffixes.
// It is not safe for concurrent use and exists for tests and replay
// tooling.
type SequenceSource struct {
	Prefix string
	n      uint64
}

func (s *SequenceSource) Next() string {
	s.n++
	return fmt.Sprintf("%s%06d", s.Prefix, s.n)
}

// NewID joins a kind prefix with a freshly minted suffix.
func NewID(prefix string, src IDSource) string {
	return prefix + src.Next()
}

// HasPrefix reports whether id carries the expected kind prefix and a
// non-empty suffix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) > len(prefix)
}

// SettlementKey is the canonical idempotency key for a hand settlement.
func SettlementKey(tableID, handID string) string {
	return tableID + "::" + handID
}
