package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bootstrap is the optional YAML seed applied on first start against an
// empty economy: players with opening balances, clubs with members and
// tables.
type Bootstrap struct {
	Players []BootstrapPlayer `yaml:"players"`
	Clubs   []BootstrapClub   `yaml:"clubs"`
}

// BootstrapPlayer seeds one player balance.
type BootstrapPlayer struct {
	ID      string `yaml:"id"`
	Balance int64  `yaml:"balance"`
}

// BootstrapClub seeds one club, its memberships and its tables.
type BootstrapClub struct {
	Name           string            `yaml:"name"`
	OwnerID        string            `yaml:"owner"`
	RakePercentage int               `yaml:"rakePercentage"`
	RakeCap        int64             `yaml:"rakeCap"`
	Members        []BootstrapMember `yaml:"members"`
	Tables         []BootstrapTable  `yaml:"tables"`
}

// BootstrapMember seeds one membership. Role is OWNER, MANAGER or
// PLAYER; empty means PLAYER.
type BootstrapMember struct {
	PlayerID string `yaml:"player"`
	Role     string `yaml:"role"`
}

// BootstrapTable seeds one table under its club.
type BootstrapTable struct {
	Name       string `yaml:"name"`
	SmallBlind int64  `yaml:"smallBlind"`
	BigBlind   int64  `yaml:"bigBlind"`
	MinBuyIn   int64  `yaml:"minBuyIn"`
	MaxBuyIn   int64  `yaml:"maxBuyIn"`
	MaxSeats   int    `yaml:"maxSeats"`
	MinPlayers int    `yaml:"minPlayers"`
}

// LoadBootstrap reads and validates a bootstrap seed file. Unknown keys
// are rejected.
func LoadBootstrap(path string) (*Bootstrap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed := &Bootstrap{}
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(seed); err != nil {
		return nil, fmt.Errorf("bootstrap file %s: %w", path, err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap file %s: %w", path, err)
	}
	return seed, nil
}

// Validate checks the seed for internally consistent references.
func (b *Bootstrap) Validate() error {
	players := make(map[string]struct{}, len(b.Players))
	for i, p := range b.Players {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("players[%d]: id required", i)
		}
		if p.Balance < 0 {
			return fmt.Errorf("players[%d]: balance must not be negative", i)
		}
		if _, dup := players[p.ID]; dup {
			return fmt.Errorf("players[%d]: duplicate id %s", i, p.ID)
		}
		players[p.ID] = struct{}{}
	}
	for i, club := range b.Clubs {
		if strings.TrimSpace(club.Name) == "" {
			return fmt.Errorf("clubs[%d]: name required", i)
		}
		if _, ok := players[club.OwnerID]; !ok {
			return fmt.Errorf("clubs[%d]: owner %s not in players", i, club.OwnerID)
		}
		if club.RakePercentage < 0 || club.RakePercentage > 100 {
			return fmt.Errorf("clubs[%d]: rakePercentage must be 0-100", i)
		}
		for j, m := range club.Members {
			if _, ok := players[m.PlayerID]; !ok {
				return fmt.Errorf("clubs[%d].members[%d]: player %s not in players", i, j, m.PlayerID)
			}
			switch strings.ToUpper(strings.TrimSpace(m.Role)) {
			case "", "PLAYER", "MANAGER", "OWNER":
			default:
				return fmt.Errorf("clubs[%d].members[%d]: unknown role %q", i, j, m.Role)
			}
		}
		for j, tbl := range club.Tables {
			if tbl.SmallBlind <= 0 || tbl.BigBlind < tbl.SmallBlind {
				return fmt.Errorf("clubs[%d].tables[%d]: blinds must satisfy 0 < small <= big", i, j)
			}
			if tbl.MinBuyIn <= 0 {
				return fmt.Errorf("clubs[%d].tables[%d]: minBuyIn must be positive", i, j)
			}
			if tbl.MaxBuyIn != 0 && tbl.MaxBuyIn < tbl.MinBuyIn {
				return fmt.Errorf("clubs[%d].tables[%d]: maxBuyIn below minBuyIn", i, j)
			}
			if tbl.MaxSeats <= 1 {
				return fmt.Errorf("clubs[%d].tables[%d]: maxSeats must be at least 2", i, j)
			}
		}
	}
	return nil
}
