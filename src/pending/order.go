package pending

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool { return s != StatusOpen }

var ErrTransition = errors.New("invalid pending order transition")

// Order is a resting limit buy waiting for its pivot to be touched.
type Order struct {
	Instrument  string          `json:"instrument"`
	OrderID     string          `json:"order_id"`
	LimitPrice  decimal.Decimal `json:"limit_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	StrategyTag string          `json:"strategy_tag"`
	Strength    decimal.Decimal `json:"strength"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Status      Status          `json:"status"`

	FilledQty   decimal.Decimal `json:"filled_qty"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	ClosedAt    time.Time       `json:"closed_at,omitempty"`
	CloseReason string          `json:"close_reason,omitempty"`
}

// NewOrder opens an order that expires timeout after now.
func NewOrder(instrument, orderID string, limitPrice, quantity, strength decimal.Decimal, strategyTag string, now time.Time, timeout time.Duration) *Order {
	return &Order{
		Instrument:  instrument,
		OrderID:     orderID,
		LimitPrice:  limitPrice,
		Quantity:    quantity,
		StrategyTag: strategyTag,
		Strength:    strength,
		CreatedAt:   now,
		ExpiresAt:   now.Add(timeout),
		Status:      StatusOpen,
	}
}

// Notional is the cash the order commits while resting.
func (o *Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.LimitPrice)
}

func (o *Order) IsDue(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

func (o *Order) transition(to Status, now time.Time, reason string) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s %s -> %s", ErrTransition, o.Instrument, o.Status, to)
	}
	o.Status = to
	o.ClosedAt = now
	o.CloseReason = reason
	return nil
}

// Fill records the exchange execution. qty and price are what the venue reported.
func (o *Order) Fill(qty, price decimal.Decimal, now time.Time) error {
	if !qty.IsPositive() || !price.IsPositive() {
		return fmt.Errorf("%w: fill needs positive qty and price, got %s @ %s", ErrTransition, qty, price)
	}
	if err := o.transition(StatusFilled, now, "filled"); err != nil {
		return err
	}
	o.FilledQty = qty
	o.FillPrice = price
	return nil
}

func (o *Order) Cancel(now time.Time, reason string) error {
	return o.transition(StatusCancelled, now, reason)
}

func (o *Order) Expire(now time.Time) error {
	return o.transition(StatusExpired, now, "timeout")
}
