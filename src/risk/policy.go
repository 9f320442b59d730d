package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryMode selects how a new signal is turned into a position.
type EntryMode string

const (
	// EntryImmediate buys at the signal's reference price.
	EntryImmediate EntryMode = "immediate"
	// EntryPivot waits for a golden-ratio retracement of the signal bar.
	EntryPivot EntryMode = "pivot"
)

// TrailingPolicy configures the profit-activated trailing stop.
type TrailingPolicy struct {
	ActivationPct    decimal.Decimal // profit measured from the high that arms the stop
	RetracementRatio decimal.Decimal // stop candidate = max price seen × ratio
	FloorRatio       decimal.Decimal // initial stop = entry price × ratio
}

// TimeExitRule fires once a position has been held for After and its
// unrealized PnL crossed PnLPct.
type TimeExitRule struct {
	After  time.Duration
	PnLPct decimal.Decimal
}

type TimeExitPolicy struct {
	Enabled          bool
	QuickProfit      TimeExitRule // pnl >= PnLPct
	ProfitTaking     TimeExitRule // pnl >= PnLPct
	StopLoss         TimeExitRule // pnl <= PnLPct
	ForcedCloseAfter time.Duration
}

// Policy is the immutable set of risk parameters shared by the exit evaluator
// and the capital allocator. Build one with DefaultBacktestPolicy or
// DefaultLivePolicy and override fields before handing it out; it is always
// passed by value.
type Policy struct {
	StopLossPct  decimal.Decimal
	MaxProfitPct decimal.Decimal
	Trailing     TrailingPolicy
	TimeExit     TimeExitPolicy

	BasePositionPct       decimal.Decimal
	MaxPositionPct        decimal.Decimal
	MaxTotalExposure      decimal.Decimal
	StrengthDivisor       decimal.Decimal
	StrengthMultiplierCap decimal.Decimal
	MinInvestment         decimal.Decimal

	EntryMode      EntryMode
	PivotRatio     decimal.Decimal
	PendingTimeout time.Duration
	SlippageLimit  decimal.Decimal

	// Benchmark is tracked for reference but never traded.
	Benchmark string
}

func defaultPolicy() Policy {
	return Policy{
		StopLossPct:  decimal.RequireFromString("-0.08"),
		MaxProfitPct: decimal.RequireFromString("0.80"),
		Trailing: TrailingPolicy{
			ActivationPct:    decimal.RequireFromString("0.20"),
			RetracementRatio: decimal.RequireFromString("0.68"),
			FloorRatio:       decimal.RequireFromString("1.15"),
		},
		TimeExit: TimeExitPolicy{
			Enabled:          true,
			QuickProfit:      TimeExitRule{After: 72 * time.Hour, PnLPct: decimal.RequireFromString("0.10")},
			ProfitTaking:     TimeExitRule{After: 168 * time.Hour, PnLPct: decimal.RequireFromString("0.03")},
			StopLoss:         TimeExitRule{After: 240 * time.Hour, PnLPct: decimal.RequireFromString("-0.03")},
			ForcedCloseAfter: 336 * time.Hour,
		},
		BasePositionPct:  decimal.RequireFromString("0.05"),
		MaxPositionPct:   decimal.RequireFromString("0.15"),
		MaxTotalExposure: decimal.RequireFromString("1.0"),
		StrengthDivisor:  decimal.NewFromInt(5),
		MinInvestment:    decimal.Zero,
		EntryMode:        EntryImmediate,
		PivotRatio:       decimal.RequireFromString("0.618"),
		PendingTimeout:   48 * time.Hour,
		SlippageLimit:    decimal.Zero,
		Benchmark:        "BTCUSDT",
	}
}

// DefaultBacktestPolicy returns the replay defaults (strength multiplier capped at 10).
func DefaultBacktestPolicy() Policy {
	p := defaultPolicy()
	p.StrengthMultiplierCap = decimal.NewFromInt(10)
	return p
}

// DefaultLivePolicy returns the live trading defaults (strength multiplier capped
// at 2, 10 USDT minimum ticket, 0.1% slippage band).
func DefaultLivePolicy() Policy {
	p := defaultPolicy()
	p.StrengthMultiplierCap = decimal.NewFromInt(2)
	p.MinInvestment = decimal.NewFromInt(10)
	p.SlippageLimit = decimal.RequireFromString("0.001")
	return p
}

var ErrInvalidPolicy = errors.New("invalid risk policy")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
}

// Validate reports the first inconsistent parameter.
func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)

	if !p.StopLossPct.IsNegative() {
		return invalid("stop_loss_pct must be negative, got %s", p.StopLossPct)
	}
	if !p.MaxProfitPct.IsPositive() {
		return invalid("max_profit_pct must be positive, got %s", p.MaxProfitPct)
	}
	if !p.Trailing.ActivationPct.IsPositive() {
		return invalid("trailing activation must be positive, got %s", p.Trailing.ActivationPct)
	}
	if !p.Trailing.RetracementRatio.IsPositive() || p.Trailing.RetracementRatio.GreaterThan(one) {
		return invalid("trailing retracement ratio must be in (0,1], got %s", p.Trailing.RetracementRatio)
	}
	if !p.Trailing.FloorRatio.IsPositive() {
		return invalid("trailing floor ratio must be positive, got %s", p.Trailing.FloorRatio)
	}
	if p.TimeExit.Enabled {
		te := p.TimeExit
		if te.QuickProfit.After <= 0 ||
			te.ProfitTaking.After <= te.QuickProfit.After ||
			te.StopLoss.After <= te.ProfitTaking.After ||
			te.ForcedCloseAfter <= te.StopLoss.After {
			return invalid("time exit thresholds must be positive and strictly increasing")
		}
	}
	if !p.BasePositionPct.IsPositive() {
		return invalid("base_position_pct must be positive, got %s", p.BasePositionPct)
	}
	if !p.MaxPositionPct.IsPositive() || p.MaxPositionPct.GreaterThan(one) {
		return invalid("max_position_pct must be in (0,1], got %s", p.MaxPositionPct)
	}
	if !p.MaxTotalExposure.IsPositive() || p.MaxTotalExposure.GreaterThan(one) {
		return invalid("max_total_exposure must be in (0,1], got %s", p.MaxTotalExposure)
	}
	if !p.StrengthDivisor.IsPositive() {
		return invalid("strength_divisor must be positive, got %s", p.StrengthDivisor)
	}
	if !p.StrengthMultiplierCap.IsPositive() {
		return invalid("strength_multiplier_cap must be positive, got %s", p.StrengthMultiplierCap)
	}
	if p.MinInvestment.IsNegative() {
		return invalid("min_investment must not be negative, got %s", p.MinInvestment)
	}
	switch p.EntryMode {
	case EntryImmediate, EntryPivot:
	default:
		return invalid("unknown entry_mode %q", p.EntryMode)
	}
	if !p.PivotRatio.IsPositive() || !p.PivotRatio.LessThan(one) {
		return invalid("pivot_ratio must be in (0,1), got %s", p.PivotRatio)
	}
	if p.PendingTimeout <= 0 {
		return invalid("pending_timeout must be positive, got %s", p.PendingTimeout)
	}
	if p.SlippageLimit.IsNegative() || p.SlippageLimit.GreaterThanOrEqual(decimal.RequireFromString("0.1")) {
		return invalid("slippage_limit must be in [0,0.1), got %s", p.SlippageLimit)
	}
	return nil
}
