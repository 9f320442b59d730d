package exitrule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/position"
	"momentumengine/src/risk"
)

// Reason labels why a position was closed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonQuickProfit       Reason = "quick profit"
	ReasonProfitTaking      Reason = "profit taking"
	ReasonTimeStopLoss      Reason = "time stop-loss"
	ReasonForcedCloseProfit Reason = "forced close (profit)"
	ReasonForcedCloseLoss   Reason = "forced close (loss)"
	ReasonStopLoss          Reason = "stop-loss"
	ReasonMaxTakeProfit     Reason = "max take-profit"
	ReasonTrailingStop      Reason = "trailing stop"

	// Driver initiated liquidations, never returned by Evaluate.
	ReasonBacktestEnd Reason = "backtest end"
	ReasonShutdown    Reason = "shutdown"
)

// Decision is the evaluator verdict for one position at one instant.
type Decision struct {
	Exit    bool
	Reason  Reason
	PnLPct  decimal.Decimal
	Holding time.Duration
}

// Detail is a human readable annotation, e.g. "trailing stop (pnl 14.00%)".
func (d Decision) Detail() string {
	if !d.Exit {
		return ""
	}
	return fmt.Sprintf("%s (pnl %s%%, held %.1fh)", d.Reason, d.PnLPct.Mul(decimal.NewFromInt(100)).StringFixed(2), d.Holding.Hours())
}

// Evaluator applies a fixed policy. It holds no state and is safe to share.
type Evaluator struct {
	policy risk.Policy
}

func NewEvaluator(policy risk.Policy) Evaluator {
	return Evaluator{policy: policy}
}

// Evaluate returns the first matching exit rule. Time exits are checked first,
// then the basic stop-loss, the profit cap and finally the trailing stop.
// The position must already be updated for now.
func (e Evaluator) Evaluate(p *position.Position, now time.Time) Decision {
	pnl := p.UnrealizedPnLPct()
	held := p.HoldingDuration(now)
	hit := func(r Reason) Decision {
		return Decision{Exit: true, Reason: r, PnLPct: pnl, Holding: held}
	}

	if r := e.timeExit(pnl, held); r != ReasonNone {
		return hit(r)
	}
	if pnl.LessThanOrEqual(e.policy.StopLossPct) {
		return hit(ReasonStopLoss)
	}
	if pnl.GreaterThanOrEqual(e.policy.MaxProfitPct) {
		return hit(ReasonMaxTakeProfit)
	}
	if p.ShouldTrailingStop() {
		return hit(ReasonTrailingStop)
	}
	return Decision{PnLPct: pnl, Holding: held}
}

func (e Evaluator) timeExit(pnl decimal.Decimal, held time.Duration) Reason {
	te := e.policy.TimeExit
	if !te.Enabled {
		return ReasonNone
	}

	switch {
	case held >= te.QuickProfit.After && pnl.GreaterThanOrEqual(te.QuickProfit.PnLPct):
		return ReasonQuickProfit
	case held >= te.ProfitTaking.After && pnl.GreaterThanOrEqual(te.ProfitTaking.PnLPct):
		return ReasonProfitTaking
	case held >= te.StopLoss.After && pnl.LessThanOrEqual(te.StopLoss.PnLPct):
		return ReasonTimeStopLoss
	case held >= te.ForcedCloseAfter:
		if pnl.IsPositive() {
			return ReasonForcedCloseProfit
		}
		return ReasonForcedCloseLoss
	}
	return ReasonNone
}
