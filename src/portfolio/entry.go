package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/execution"
	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
)

type EntryKind string

const (
	EntryOpened    EntryKind = "opened"
	EntryPlaced    EntryKind = "placed"
	EntryDiscarded EntryKind = "discarded"
)

// EntryOutcome is what became of a signal that passed the gate.
type EntryOutcome struct {
	Kind   EntryKind
	Trade  *model.TradeRecord
	Order  *pending.Order
	Detail string
}

// Enter turns a signal into a position or a resting order according to the
// policy entry mode and what the executor supports.
func (p *Portfolio) Enter(ctx context.Context, sig signal.Signal, now time.Time) (EntryOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.corrupted != nil {
		return EntryOutcome{}, p.corrupted
	}

	req := OpenRequest{
		Instrument:  sig.Instrument(),
		Price:       sig.ReferencePrice(),
		Strength:    sig.Strength(),
		StrategyTag: string(sig.Kind()),
		Now:         now,
	}

	bar := sig.Bar()
	if p.policy.EntryMode == risk.EntryImmediate || pending.IsImmediate(bar.Open, bar.Close) {
		if p.policy.EntryMode == risk.EntryPivot {
			req.Reason = "pivot degenerate"
		}
		return p.openOutcome(ctx, req)
	}

	pivot := pending.PivotPrice(bar.Open, bar.Close, p.policy.PivotRatio)
	switch exec := p.exec.(type) {
	case execution.Lookahead:
		return p.enterLookahead(ctx, exec, req, pivot, lookaheadFrom(sig))
	case execution.Contingent:
		return p.placePivot(ctx, exec, req, pivot)
	default:
		return EntryOutcome{}, fmt.Errorf("%w: %s with %T", ErrUnsupportedEntry, p.policy.EntryMode, p.exec)
	}
}

func lookaheadFrom(sig signal.Signal) time.Time {
	if t := sig.Bar().OpenTime; !t.IsZero() {
		return t
	}
	return sig.DetectedAt()
}

func (p *Portfolio) openOutcome(ctx context.Context, req OpenRequest) (EntryOutcome, error) {
	trade, err := p.open(ctx, req)
	if err != nil {
		return EntryOutcome{}, err
	}
	return EntryOutcome{Kind: EntryOpened, Trade: &trade}, nil
}

// enterLookahead settles a pivot entry against the next bar: filled at the
// pivot when touched, dropped otherwise.
func (p *Portfolio) enterLookahead(ctx context.Context, exec execution.Lookahead, req OpenRequest, pivot decimal.Decimal, after time.Time) (EntryOutcome, error) {
	if _, rej := p.canOpen(req.Instrument, pivot, req.Strength); !rej.OK() {
		return EntryOutcome{}, &RejectedError{Instrument: req.Instrument, Rejection: rej}
	}

	touched, err := exec.Touched(ctx, req.Instrument, after, pivot)
	if errors.Is(err, execution.ErrNoNextBar) {
		return EntryOutcome{Kind: EntryDiscarded, Detail: "insufficient data"}, nil
	}
	if err != nil {
		return EntryOutcome{}, fmt.Errorf("pivot lookahead %s: %w", req.Instrument, err)
	}
	if !touched {
		return EntryOutcome{Kind: EntryDiscarded, Detail: "pivot " + pivot.StringFixed(8) + " not touched"}, nil
	}

	req.Price = pivot
	req.Reason = "pivot touched"
	return p.openOutcome(ctx, req)
}

// placePivot parks a resting limit buy at the pivot and reserves its notional.
func (p *Portfolio) placePivot(ctx context.Context, exec execution.Contingent, req OpenRequest, pivot decimal.Decimal) (EntryOutcome, error) {
	qty, rej := p.canOpen(req.Instrument, pivot, req.Strength)
	if !rej.OK() {
		return EntryOutcome{}, &RejectedError{Instrument: req.Instrument, Rejection: rej}
	}

	placed, err := exec.PlaceLimitBuy(ctx, req.Instrument, qty, pivot)
	if err != nil {
		return EntryOutcome{}, fmt.Errorf("place pivot %s: %w", req.Instrument, err)
	}

	order := pending.NewOrder(req.Instrument, placed.OrderID, placed.Price, placed.Quantity, req.Strength, req.StrategyTag, req.Now, p.policy.PendingTimeout)
	if err := p.book.Add(order); err != nil {
		return EntryOutcome{}, err
	}

	p.log.WithFields(map[string]interface{}{
		"instrument": req.Instrument,
		"orderId":    order.OrderID,
		"limit":      order.LimitPrice.String(),
		"quantity":   order.Quantity.String(),
		"expiresAt":  order.ExpiresAt.Format(time.RFC3339),
	}).Info("pivot order placed")

	cp := *order
	return EntryOutcome{Kind: EntryPlaced, Order: &cp}, nil
}
