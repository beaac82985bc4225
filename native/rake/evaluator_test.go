package rake

import (
	"errors"
	"testing"

	"cardroom/core/types"
)

func newEvaluator(t *testing.T, cfg Config) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(cfg)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	e.SetNowFunc(func() int64 { return 1_700_000_000_000 })
	return e
}

func TestStandardFloorsRake(t *testing.T) {
	e := newEvaluator(t, Config{PolicyID: "pol_std", DefaultPercentage: 5})
	res, err := e.Evaluate(Input{PotSize: 121, FinalStreet: types.StreetRiver, FlopSeen: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.RakeAmount != 6 || res.PotAfterRake != 115 {
		t.Fatalf("expected rake 6 of 121, got %d / %d", res.RakeAmount, res.PotAfterRake)
	}
	if res.Strategy != StrategyStandard || res.CapApplied || res.Waived {
		t.Fatalf("unexpected flags: %+v", res)
	}
	if res.ConfigHash == "" || res.PolicyName != "pol_std" {
		t.Fatalf("result must carry policy reference, got %+v", res)
	}
}

func TestCapApplied(t *testing.T) {
	e := newEvaluator(t, Config{PolicyID: "pol_cap", DefaultPercentage: 10, DefaultCap: 5})
	res, err := e.Evaluate(Input{PotSize: 400, FinalStreet: types.StreetRiver, FlopSeen: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.RakeAmount != 5 || !res.CapApplied || res.PotAfterRake != 395 {
		t.Fatalf("expected capped rake 5, got %+v", res)
	}
}

func TestNoFlopNoRake(t *testing.T) {
	e := newEvaluator(t, Config{PolicyID: "pol_nf", DefaultPercentage: 5, NoFlopNoRake: true})
	res, err := e.Evaluate(Input{PotSize: 200, FinalStreet: types.StreetPreflop, FlopSeen: false})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Waived || res.WaivedReason != WaivedNoFlop {
		t.Fatalf("expected no-flop waiver, got %+v", res)
	}
	if res.RakeAmount != 0 || res.PotAfterRake != 200 {
		t.Fatalf("waived evaluation must not rake, got %+v", res)
	}
}

func TestWaiverOrder(t *testing.T) {
	// Every waiver condition is hit at once; the minimum-pot rule is
	// first in the chain, so its reason must win.
	e := newEvaluator(t, Config{
		PolicyID: "pol_all", DefaultPercentage: 5, NoFlopNoRake: true,
		ExcludeUncontested: true, MinPotForRake: 100,
		Waiver: &Waiver{Enabled: true},
	})
	res, err := e.Evaluate(Input{PotSize: 50, FinalStreet: types.StreetPreflop, IsUncontested: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.WaivedReason != WaivedBelowMinimum {
		t.Fatalf("expected minimum-pot reason first, got %q", res.WaivedReason)
	}
}

func TestManualWaiverExpiry(t *testing.T) {
	cfg := Config{PolicyID: "pol_w", DefaultPercentage: 5, Waiver: &Waiver{Enabled: true, ExpiresAt: 2000}}
	e := newEvaluator(t, cfg)
	e.SetNowFunc(func() int64 { return 1000 })
	res, _ := e.Evaluate(Input{PotSize: 100, FinalStreet: types.StreetRiver, FlopSeen: true})
	if !res.Waived || res.WaivedReason != WaivedManual {
		t.Fatalf("active waiver must apply, got %+v", res)
	}
	e.SetNowFunc(func() int64 { return 3000 })
	res, _ = e.Evaluate(Input{PotSize: 100, FinalStreet: types.StreetRiver, FlopSeen: true})
	if res.Waived || res.RakeAmount != 5 {
		t.Fatalf("expired waiver must not apply, got %+v", res)
	}
}

func TestZeroPercentageWaives(t *testing.T) {
	e := newEvaluator(t, Config{PolicyID: "pol_zero"})
	res, err := e.Evaluate(Input{PotSize: 500, FinalStreet: types.StreetRiver, FlopSeen: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Strategy != StrategyZero || !res.Waived || res.WaivedReason != WaivedZeroRate {
		t.Fatalf("zero percentage must select the zero strategy, got %+v", res)
	}
}

func TestStreetOverrideWins(t *testing.T) {
	e := newEvaluator(t, Config{
		PolicyID: "pol_street", DefaultPercentage: 5,
		StreetOverrides: map[types.Street]StreetOverride{
			types.StreetRiver: {Percentage: 10, Cap: 50},
		},
	})
	res, err := e.Evaluate(Input{PotSize: 200, FinalStreet: types.StreetRiver, FlopSeen: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Strategy != StrategyStreet || res.RakeAmount != 20 {
		t.Fatalf("expected street rate 10%%, got %+v", res)
	}
	res, err = e.Evaluate(Input{PotSize: 200, FinalStreet: types.StreetTurn, FlopSeen: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Strategy != StrategyStandard || res.RakeAmount != 10 {
		t.Fatalf("non-overridden street must use the default, got %+v", res)
	}
}

func TestTieredSelection(t *testing.T) {
	e := newEvaluator(t, Config{
		PolicyID: "pol_tier", DefaultPercentage: 5, DefaultCap: 100,
		Tiers: []Tier{
			{MinPot: 0, MaxPot: 100, Percentage: 2, Cap: 1},
			{MinPot: 100, MaxPot: 1000, Percentage: 4, Cap: 20},
		},
	})
	cases := []struct {
		pot  types.Chips
		rake types.Chips
	}{
		{50, 1},    // first tier, capped at 1
		{99, 1},    // still first tier: [0,100)
		{100, 4},   // second tier lower bound
		{999, 20},  // second tier, capped
		{1000, 50}, // no tier covers; default 5% applies
	}
	for _, tc := range cases {
		res, err := e.Evaluate(Input{PotSize: tc.pot, FinalStreet: types.StreetRiver, FlopSeen: true})
		if err != nil {
			t.Fatalf("evaluate pot %d: %v", tc.pot, err)
		}
		if res.RakeAmount != tc.rake {
			t.Fatalf("pot %d: expected rake %d, got %d", tc.pot, tc.rake, res.RakeAmount)
		}
	}
}

func TestHashDeterministicAcrossMapOrder(t *testing.T) {
	base := Config{
		PolicyID: "pol_h", DefaultPercentage: 5,
		StreetOverrides: map[types.Street]StreetOverride{
			types.StreetFlop:  {Percentage: 3},
			types.StreetTurn:  {Percentage: 4},
			types.StreetRiver: {Percentage: 5},
		},
	}
	first := base.Hash()
	for i := 0; i < 20; i++ {
		if got := base.Clone().Hash(); got != first {
			t.Fatalf("hash must be order-independent: %s vs %s", got, first)
		}
	}
	changed := base.Clone()
	changed.DefaultCap = 1
	if changed.Hash() == first {
		t.Fatalf("different configs must hash differently")
	}
}

func TestRefEqual(t *testing.T) {
	cfg := Config{PolicyID: "pol_r", DefaultPercentage: 5}
	ref := cfg.RefFor()
	if !ref.Equal(cfg.RefFor()) {
		t.Fatalf("same config must produce equal refs")
	}
	other := cfg
	other.DefaultPercentage = 6
	if ref.Equal(other.RefFor()) {
		t.Fatalf("changed config must break ref equality")
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	e := newEvaluator(t, Config{PolicyID: "pol_v", DefaultPercentage: 5})
	if _, err := e.Evaluate(Input{PotSize: -1, FinalStreet: types.StreetRiver}); !errors.Is(err, types.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := NewEvaluator(Config{DefaultPercentage: 101}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
