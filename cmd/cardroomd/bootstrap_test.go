package main

import (
	"io"
	"log/slog"
	"testing"

	"cardroom/config"
	"cardroom/core"
)

func testSeed() *config.Bootstrap {
	return &config.Bootstrap{
		Players: []config.BootstrapPlayer{
			{ID: "plr_owner", Balance: 5000},
			{ID: "plr_reg", Balance: 2000},
			{ID: "plr_floor", Balance: 1000},
		},
		Clubs: []config.BootstrapClub{{
			Name:           "Riverside",
			OwnerID:        "plr_owner",
			RakePercentage: 5,
			RakeCap:        20,
			Members: []config.BootstrapMember{
				{PlayerID: "plr_reg"},
				{PlayerID: "plr_floor", Role: "MANAGER"},
			},
			Tables: []config.BootstrapTable{{
				Name:       "Main",
				SmallBlind: 5,
				BigBlind:   10,
				MinBuyIn:   200,
				MaxBuyIn:   2000,
				MaxSeats:   6,
				MinPlayers: 2,
			}},
		}},
	}
}

func TestApplyBootstrapSeedsEconomy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node := core.NewNode(core.Options{Logger: logger})
	cfg := &config.Config{}

	seed := testSeed()
	if err := seed.Validate(); err != nil {
		t.Fatalf("seed invalid: %v", err)
	}
	if err := applyBootstrap(node, cfg, seed, logger); err != nil {
		t.Fatalf("apply bootstrap: %v", err)
	}

	b, err := node.GetBalance("plr_reg")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Available != 2000 {
		t.Fatalf("available = %d, want 2000", b.Available)
	}

	tables := node.Tables()
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
	if tables[0].Name != "Main" {
		t.Fatalf("table name = %q", tables[0].Name)
	}
	if tables[0].MaxSeats != 6 {
		t.Fatalf("max seats = %d, want 6", tables[0].MaxSeats)
	}
}

func TestApplyBootstrapPromotesManagers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node := core.NewNode(core.Options{Logger: logger})
	cfg := &config.Config{}

	if err := applyBootstrap(node, cfg, testSeed(), logger); err != nil {
		t.Fatalf("apply bootstrap: %v", err)
	}
	if !node.Authority().CanViewPlayer("plr_floor", "plr_reg") {
		t.Fatal("seeded manager cannot view a club member")
	}
	if node.Authority().CanViewPlayer("plr_reg", "plr_floor") {
		t.Fatal("plain member granted manager visibility")
	}
}

func TestClubConfigDerivation(t *testing.T) {
	club := testSeed().Clubs[0]
	cfg := clubConfigFor(club)
	if cfg.MinBuyIn != 200 || cfg.MaxBuyIn != 2000 {
		t.Fatalf("buy-in range = %d..%d", cfg.MinBuyIn, cfg.MaxBuyIn)
	}
	if cfg.MaxSeats != 6 || cfg.MinPlayersToStart != 2 {
		t.Fatalf("seat config = %d/%d", cfg.MaxSeats, cfg.MinPlayersToStart)
	}

	club.Tables = nil
	cfg = clubConfigFor(club)
	if cfg.MaxSeats != 9 || cfg.MinBuyIn != 100 {
		t.Fatalf("defaults = seats %d, min %d", cfg.MaxSeats, cfg.MinBuyIn)
	}
}
