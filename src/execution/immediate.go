package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/pending"
)

// Immediate fills every order in full at the requested price.
type Immediate struct{}

func (Immediate) Buy(_ context.Context, instrument string, qty, price decimal.Decimal) (Fill, error) {
	return immediateFill(instrument, qty, price)
}

func (Immediate) Sell(_ context.Context, instrument string, qty, price decimal.Decimal) (Fill, error) {
	return immediateFill(instrument, qty, price)
}

func immediateFill(instrument string, qty, price decimal.Decimal) (Fill, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return Fill{}, fmt.Errorf("%w: %s qty=%s price=%s", ErrNotFilled, instrument, qty, price)
	}
	return Fill{Quantity: qty, Price: price}, nil
}

// NextBarLows is the replay data the Replay executor peeks into.
type NextBarLows interface {
	NextLow(instrument string, after time.Time) (decimal.Decimal, bool)
}

// Replay fills immediately and settles pivot entries against the next bar.
type Replay struct {
	Immediate
	Bars NextBarLows
}

func NewReplay(bars NextBarLows) *Replay {
	return &Replay{Bars: bars}
}

func (r *Replay) Touched(_ context.Context, instrument string, signalTime time.Time, price decimal.Decimal) (bool, error) {
	low, ok := r.Bars.NextLow(instrument, signalTime)
	if !ok {
		return false, fmt.Errorf("%w: %s after %s", ErrNoNextBar, instrument, signalTime.Format(time.RFC3339))
	}
	return pending.Touched(low, price), nil
}
