package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/signal"
)

// ErrNoPrice means the instrument has no market price at the entry time. The
// signal is discarded rather than failed.
var ErrNoPrice = errors.New("no price at entry time")

// Pricer references a signal to the market at the moment it is executed.
type Pricer interface {
	Reprice(ctx context.Context, sig signal.Signal, now time.Time) (signal.Signal, error)
}

// Quoter is satisfied by connectors.PriceQuoter.
type Quoter interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// QuotePricer re-quotes the entry price. The signal bar is kept, so pivot
// orders still rest at the retracement of the bar the detector fired on.
type QuotePricer struct {
	Quoter Quoter
}

func (q QuotePricer) Reprice(ctx context.Context, sig signal.Signal, _ time.Time) (signal.Signal, error) {
	price, err := q.Quoter.LatestPrice(ctx, sig.Instrument())
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", sig.Instrument(), err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s quoted %s", ErrNoPrice, sig.Instrument(), price)
	}
	return signal.Repriced(sig, price, sig.Bar()), nil
}
