// Package execution turns portfolio decisions into fills. The portfolio is
// written once against these interfaces; backtests inject Immediate or Replay,
// live trading injects Exchange or Paper.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFilled  = errors.New("order not filled")
	ErrNoNextBar  = errors.New("no bar after signal time")
	ErrBelowLimit = errors.New("order below exchange minimum")
)

// Fill is what the venue actually executed.
type Fill struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

func (f Fill) Value() decimal.Decimal { return f.Quantity.Mul(f.Price) }

// Executor executes entries and exits priced at or near price.
type Executor interface {
	Buy(ctx context.Context, instrument string, qty, price decimal.Decimal) (Fill, error)
	Sell(ctx context.Context, instrument string, qty, price decimal.Decimal) (Fill, error)
}

type OrderState string

const (
	OrderOpen      OrderState = "open"
	OrderFilled    OrderState = "filled"
	OrderCancelled OrderState = "cancelled"
	OrderRejected  OrderState = "rejected"
	OrderExpired   OrderState = "expired"
)

// OrderReport is a resting order as the venue sees it.
type OrderReport struct {
	OrderID   string
	State     OrderState
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
}

// PlacedOrder is a resting order after venue rounding.
type PlacedOrder struct {
	OrderID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Contingent executors can park a resting limit buy and report on it later.
type Contingent interface {
	Executor
	PlaceLimitBuy(ctx context.Context, instrument string, qty, price decimal.Decimal) (PlacedOrder, error)
	OrderStatus(ctx context.Context, instrument, orderID string) (OrderReport, error)
	Cancel(ctx context.Context, instrument, orderID string) error
}

// Lookahead executors know the bar that follows a signal, so a pivot entry can
// be settled synchronously.
type Lookahead interface {
	Executor
	// Touched reports whether the first bar opening after signalTime traded at
	// or below price. ErrNoNextBar when that bar is not known.
	Touched(ctx context.Context, instrument string, signalTime time.Time, price decimal.Decimal) (bool, error)
}
