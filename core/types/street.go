package types

import "fmt"

// Street identifies a betting round within a hand.
type Street uint8

const (
	StreetPreflop Street = iota
	StreetFlop
	StreetTurn
	StreetRiver
)

// Streets lists every betting round in play order.
var Streets = [...]Street{StreetPreflop, StreetFlop, StreetTurn, StreetRiver}

func (s Street) Valid() bool {
	return s <= StreetRiver
}

func (s Street) String() string {
	switch s {
	case StreetPreflop:
		return "preflop"
	case StreetFlop:
		return "flop"
	case StreetTurn:
		return "turn"
	case StreetRiver:
		return "river"
	default:
		return fmt.Sprintf("street(%d)", uint8(s))
	}
}

// ParseStreet maps the wire name of a betting round back to its enum.
func ParseStreet(name string) (Street, error) {
	switch name {
	case "preflop":
		return StreetPreflop, nil
	case "flop":
		return StreetFlop, nil
	case "turn":
		return StreetTurn, nil
	case "river":
		return StreetRiver, nil
	default:
		return 0, fmt.Errorf("types: unknown street %q", name)
	}
}
