// Package rake evaluates how many chips leave a pot before payout. The
// evaluator is pure apart from the injected clock, which only the
// manual-waiver expiry reads; given the same config, input and instant
// the result is bit-identical.
package rake

import (
	"strconv"
	"time"

	"cardroom/core/types"
)

// Strategy names the calculation path a config selects.
type Strategy string

const (
	StrategyStandard Strategy = "standard"
	StrategyStreet   Strategy = "street"
	StrategyZero     Strategy = "zero"
	StrategyTiered   Strategy = "tiered"
)

// Waiver reasons reported on a waived evaluation.
const (
	WaivedBelowMinimum = "Below minimum pot"
	WaivedNoFlop       = "No flop seen"
	WaivedUncontested  = "Uncontested pot"
	WaivedManual       = "Rake waiver active"
	WaivedZeroRate     = "Zero rake configured"
)

// Input describes the hand the evaluator rakes.
type Input struct {
	PotSize       types.Chips
	FinalStreet   types.Street
	FlopSeen      bool
	IsUncontested bool
}

// Result is the full evaluation outcome. PercentageApplied is a derived
// display value (rake×100/pot) and must never feed downstream math.
type Result struct {
	RakeAmount        types.Chips `json:"rakeAmount"`
	PotAfterRake      types.Chips `json:"potAfterRake"`
	PercentageApplied int64       `json:"percentageApplied"`
	CapApplied        bool        `json:"capApplied"`
	Waived            bool        `json:"waived"`
	WaivedReason      string      `json:"waivedReason,omitempty"`
	Strategy          Strategy    `json:"strategy"`
	PolicyName        string      `json:"policyName"`
	ConfigHash        string      `json:"configHash"`
}

// Evaluator applies one frozen config. The clock feeds only the manual
// waiver's expiry check.
type Evaluator struct {
	cfg   Config
	hash  string
	nowFn func() int64
}

// NewEvaluator validates and freezes the config. The hash is computed
// once here; every result carries it so callers can prove which policy
// produced the numbers.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{
		cfg:   cfg.Clone(),
		hash:  cfg.Hash(),
		nowFn: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// SetNowFunc overrides the millisecond time source.
func (e *Evaluator) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	e.nowFn = now
}

// Config returns a copy of the frozen configuration.
func (e *Evaluator) Config() Config { return e.cfg.Clone() }

// Ref returns the frozen policy reference.
func (e *Evaluator) Ref() Ref {
	return Ref{PolicyID: e.cfg.PolicyID, PolicyHash: e.hash}
}

// SelectStrategy reports which calculation path the config drives.
// Tiers win over street overrides; a zero default percentage with no
// other source of a rate collapses to the zero strategy.
func (e *Evaluator) SelectStrategy(input Input) Strategy {
	if len(e.cfg.Tiers) > 0 {
		return StrategyTiered
	}
	if _, ok := e.cfg.StreetOverrides[input.FinalStreet]; ok {
		return StrategyStreet
	}
	if e.cfg.DefaultPercentage == 0 {
		return StrategyZero
	}
	return StrategyStandard
}

// Evaluate runs the waiver chain and then the selected strategy.
func (e *Evaluator) Evaluate(input Input) (*Result, error) {
	if input.PotSize < 0 {
		return nil, types.ErrValidation(types.CodeInvalidAmount, "pot size must be non-negative", map[string]string{
			"potSize": strconv.FormatInt(input.PotSize, 10),
		})
	}
	if !input.FinalStreet.Valid() {
		return nil, types.ErrValidation(types.CodeInvalidConfig, "unknown final street", map[string]string{
			"street": strconv.Itoa(int(input.FinalStreet)),
		})
	}
	strategy := e.SelectStrategy(input)
	res := &Result{
		PotAfterRake: input.PotSize,
		Strategy:     strategy,
		PolicyName:   e.cfg.PolicyID,
		ConfigHash:   e.hash,
	}
	// Waiver rules run before any calculation; first match wins.
	if reason, waived := e.waived(input); waived {
		res.Waived = true
		res.WaivedReason = reason
		return res, nil
	}
	percentage, cap := e.rateFor(strategy, input)
	if percentage == 0 {
		res.Waived = true
		res.WaivedReason = WaivedZeroRate
		return res, nil
	}
	raked, err := types.MulDivChips(input.PotSize, percentage, 100)
	if err != nil {
		return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), nil)
	}
	if cap > 0 && raked > cap {
		raked = cap
		res.CapApplied = true
	}
	res.RakeAmount = raked
	res.PotAfterRake = input.PotSize - raked
	if input.PotSize > 0 {
		applied, err := types.MulDivChips(raked, 100, input.PotSize)
		if err != nil {
			return nil, types.ErrFatal(types.CodeAmountOverflow, err.Error(), nil)
		}
		res.PercentageApplied = applied
	}
	return res, nil
}

func (e *Evaluator) waived(input Input) (string, bool) {
	if input.PotSize < e.cfg.MinPotForRake {
		return WaivedBelowMinimum, true
	}
	if e.cfg.NoFlopNoRake && !input.FlopSeen {
		return WaivedNoFlop, true
	}
	if e.cfg.ExcludeUncontested && input.IsUncontested {
		return WaivedUncontested, true
	}
	if w := e.cfg.Waiver; w != nil && w.Enabled {
		if w.ExpiresAt == 0 || e.nowFn() < w.ExpiresAt {
			return WaivedManual, true
		}
	}
	return "", false
}

func (e *Evaluator) rateFor(strategy Strategy, input Input) (int64, types.Chips) {
	switch strategy {
	case StrategyTiered:
		for _, tier := range e.cfg.Tiers {
			if input.PotSize < tier.MinPot {
				continue
			}
			if tier.MaxPot != 0 && input.PotSize >= tier.MaxPot {
				continue
			}
			return tier.Percentage, tier.Cap
		}
		return e.cfg.DefaultPercentage, e.cfg.DefaultCap
	case StrategyStreet:
		override := e.cfg.StreetOverrides[input.FinalStreet]
		return override.Percentage, override.Cap
	case StrategyZero:
		return 0, 0
	default:
		return e.cfg.DefaultPercentage, e.cfg.DefaultCap
	}
}
