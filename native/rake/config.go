package rake

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"lukechampine.com/blake3"

	"cardroom/core/types"
)

// StreetOverride replaces the default percentage and cap for one
// betting round when street-based raking is enabled.
type StreetOverride struct {
	Percentage int64       `json:"percentage" toml:"Percentage"`
	Cap        types.Chips `json:"cap" toml:"Cap"`
}

// Tier is one explicit rake band. A pot falls into the first tier whose
// half-open [MinPot, MaxPot) range covers it; MaxPot zero means
// unbounded above.
type Tier struct {
	MinPot     types.Chips `json:"minPot" toml:"MinPot"`
	MaxPot     types.Chips `json:"maxPot" toml:"MaxPot"`
	Percentage int64       `json:"percentage" toml:"Percentage"`
	Cap        types.Chips `json:"cap" toml:"Cap"`
}

// Waiver suspends raking entirely, optionally until a deadline.
type Waiver struct {
	Enabled   bool  `json:"enabled" toml:"Enabled"`
	ExpiresAt int64 `json:"expiresAt" toml:"ExpiresAt"`
}

// Config is the full rake policy. It is immutable once referenced by a
// table; mid-hand changes are blocked by the policy freeze, and the
// deterministic Hash lets the guard prove the policy did not drift.
type Config struct {
	PolicyID           string                          `json:"policyId" toml:"PolicyID"`
	DefaultPercentage  int64                           `json:"defaultPercentage" toml:"DefaultPercentage"`
	DefaultCap         types.Chips                     `json:"defaultCap" toml:"DefaultCap"`
	NoFlopNoRake       bool                            `json:"noFlopNoRake" toml:"NoFlopNoRake"`
	ExcludeUncontested bool                            `json:"excludeUncontested" toml:"ExcludeUncontested"`
	MinPotForRake      types.Chips                     `json:"minPotForRake" toml:"MinPotForRake"`
	StreetOverrides    map[types.Street]StreetOverride `json:"streetOverrides,omitempty" toml:"-"`
	Tiers              []Tier                          `json:"tiers,omitempty" toml:"-"`
	Waiver             *Waiver                         `json:"waiver,omitempty" toml:"-"`
}

// Ref is the frozen reference to a policy: the identifier plus the
// deterministic hash of its fields. Two refs are the same policy only
// when both components compare equal.
type Ref struct {
	PolicyID   string `json:"policyId"`
	PolicyHash string `json:"policyHash"`
}

// Validate rejects configurations that can never evaluate cleanly.
func (c Config) Validate() error {
	if c.DefaultPercentage < 0 || c.DefaultPercentage > 100 {
		return types.ErrValidation(types.CodeInvalidConfig, "default percentage out of range", map[string]string{
			"percentage": strconv.FormatInt(c.DefaultPercentage, 10),
		})
	}
	if c.DefaultCap < 0 || c.MinPotForRake < 0 {
		return types.ErrValidation(types.CodeInvalidConfig, "cap and minimum pot must be non-negative", nil)
	}
	for street, override := range c.StreetOverrides {
		if !street.Valid() {
			return types.ErrValidation(types.CodeInvalidConfig, "override names unknown street", map[string]string{
				"street": strconv.Itoa(int(street)),
			})
		}
		if override.Percentage < 0 || override.Percentage > 100 || override.Cap < 0 {
			return types.ErrValidation(types.CodeInvalidConfig, "street override out of range", map[string]string{
				"street": street.String(),
			})
		}
	}
	for i, tier := range c.Tiers {
		if tier.MinPot < 0 || tier.Cap < 0 || tier.Percentage < 0 || tier.Percentage > 100 {
			return types.ErrValidation(types.CodeInvalidConfig, "tier out of range", map[string]string{
				"tier": strconv.Itoa(i),
			})
		}
		if tier.MaxPot != 0 && tier.MaxPot <= tier.MinPot {
			return types.ErrValidation(types.CodeInvalidConfig, "tier bounds inverted", map[string]string{
				"tier": strconv.Itoa(i),
			})
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	clone := c
	if c.StreetOverrides != nil {
		clone.StreetOverrides = make(map[types.Street]StreetOverride, len(c.StreetOverrides))
		for street, override := range c.StreetOverrides {
			clone.StreetOverrides[street] = override
		}
	}
	clone.Tiers = append([]Tier(nil), c.Tiers...)
	if c.Waiver != nil {
		w := *c.Waiver
		clone.Waiver = &w
	}
	return clone
}

// Hash returns the deterministic blake3 digest of the configuration in
// a fixed field order. Equal configs hash equal regardless of map
// iteration order.
func (c Config) Hash() string {
	var buf bytes.Buffer
	buf.WriteString("cardroom/rake/config/v1\x00")
	buf.WriteString(strings.TrimSpace(c.PolicyID))
	buf.WriteByte(0)
	writeInt64(&buf, c.DefaultPercentage)
	writeInt64(&buf, c.DefaultCap)
	writeBool(&buf, c.NoFlopNoRake)
	writeBool(&buf, c.ExcludeUncontested)
	writeInt64(&buf, c.MinPotForRake)
	streets := make([]int, 0, len(c.StreetOverrides))
	for street := range c.StreetOverrides {
		streets = append(streets, int(street))
	}
	sort.Ints(streets)
	writeInt64(&buf, int64(len(streets)))
	for _, s := range streets {
		override := c.StreetOverrides[types.Street(s)]
		writeInt64(&buf, int64(s))
		writeInt64(&buf, override.Percentage)
		writeInt64(&buf, override.Cap)
	}
	writeInt64(&buf, int64(len(c.Tiers)))
	for _, tier := range c.Tiers {
		writeInt64(&buf, tier.MinPot)
		writeInt64(&buf, tier.MaxPot)
		writeInt64(&buf, tier.Percentage)
		writeInt64(&buf, tier.Cap)
	}
	if c.Waiver != nil {
		writeBool(&buf, true)
		writeBool(&buf, c.Waiver.Enabled)
		writeInt64(&buf, c.Waiver.ExpiresAt)
	} else {
		writeBool(&buf, false)
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// RefFor returns the frozen reference to this configuration.
func (c Config) RefFor() Ref {
	return Ref{PolicyID: strings.TrimSpace(c.PolicyID), PolicyHash: c.Hash()}
}

// Equal reports whether two refs name the same policy content.
func (r Ref) Equal(other Ref) bool {
	return r.PolicyID == other.PolicyID && r.PolicyHash == other.PolicyHash
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(v))
	buf.Write(scratch[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
		return
	}
	buf.WriteByte(0)
}
