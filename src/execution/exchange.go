package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/connectors"
)

// Transport is the exchange surface the Exchange executor drives.
// *connectors.BinanceSpotClient satisfies it.
type Transport interface {
	SubmitMarket(ctx context.Context, symbol, side string, qty decimal.Decimal) (*connectors.OrderResult, error)
	SubmitLimit(ctx context.Context, symbol, side string, qty, price decimal.Decimal, tif string) (*connectors.OrderResult, error)
	OrderStatus(ctx context.Context, symbol, orderID string) (*connectors.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	SymbolFilters(ctx context.Context, symbol string) (connectors.SymbolFilters, error)
}

// Exchange executes against a live venue. With a positive slippage limit buys
// and sells go out as IOC limits bounded at price × (1 ± slippage); sells
// sweep any IOC remainder with a market order so an exit never stays open.
type Exchange struct {
	transport Transport
	slippage  decimal.Decimal
	log       *logrus.Entry
}

func NewExchange(transport Transport, slippage decimal.Decimal, log *logrus.Entry) *Exchange {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Exchange{
		transport: transport,
		slippage:  slippage,
		log:       log.WithField("component", "ExchangeExecutor"),
	}
}

func (e *Exchange) prepare(ctx context.Context, instrument string, qty decimal.Decimal) (connectors.SymbolFilters, decimal.Decimal, error) {
	filters, err := e.transport.SymbolFilters(ctx, instrument)
	if err != nil {
		return filters, decimal.Zero, fmt.Errorf("load filters for %s: %w", instrument, err)
	}
	rounded := filters.RoundQty(qty)
	if !rounded.IsPositive() || rounded.LessThan(filters.MinQty) {
		return filters, decimal.Zero, fmt.Errorf("%w: %s qty %s (step %s, min %s)", ErrBelowLimit, instrument, qty, filters.StepSize, filters.MinQty)
	}
	return filters, rounded, nil
}

func (e *Exchange) Buy(ctx context.Context, instrument string, qty, price decimal.Decimal) (Fill, error) {
	filters, rounded, err := e.prepare(ctx, instrument, qty)
	if err != nil {
		return Fill{}, err
	}
	if filters.MinNotional.IsPositive() && rounded.Mul(price).LessThan(filters.MinNotional) {
		return Fill{}, fmt.Errorf("%w: %s notional %s below %s", ErrBelowLimit, instrument, rounded.Mul(price), filters.MinNotional)
	}

	var order *connectors.OrderResult
	if e.slippage.IsPositive() {
		limit := filters.RoundPrice(price.Mul(decimal.NewFromInt(1).Add(e.slippage)))
		order, err = e.transport.SubmitLimit(ctx, instrument, connectors.SideBuy, rounded, limit, connectors.TimeInForceIOC)
	} else {
		order, err = e.transport.SubmitMarket(ctx, instrument, connectors.SideBuy, rounded)
	}
	if err != nil {
		return Fill{}, fmt.Errorf("buy %s: %w", instrument, err)
	}
	if !order.ExecutedQty.IsPositive() {
		return Fill{}, fmt.Errorf("%w: buy %s status %s", ErrNotFilled, instrument, order.Status)
	}
	return Fill{Quantity: order.ExecutedQty, Price: order.AvgPrice()}, nil
}

func (e *Exchange) Sell(ctx context.Context, instrument string, qty, price decimal.Decimal) (Fill, error) {
	filters, rounded, err := e.prepare(ctx, instrument, qty)
	if err != nil {
		return Fill{}, err
	}

	var fills []Fill
	remaining := rounded
	if e.slippage.IsPositive() {
		limit := filters.RoundPrice(price.Mul(decimal.NewFromInt(1).Sub(e.slippage)))
		order, err := e.transport.SubmitLimit(ctx, instrument, connectors.SideSell, rounded, limit, connectors.TimeInForceIOC)
		if err != nil {
			return Fill{}, fmt.Errorf("sell %s: %w", instrument, err)
		}
		if order.ExecutedQty.IsPositive() {
			fills = append(fills, Fill{Quantity: order.ExecutedQty, Price: order.AvgPrice()})
			remaining = remaining.Sub(order.ExecutedQty)
		}
		remaining = filters.RoundQty(remaining)
	}

	if remaining.IsPositive() && !remaining.LessThan(filters.MinQty) {
		order, err := e.transport.SubmitMarket(ctx, instrument, connectors.SideSell, remaining)
		if err != nil {
			if len(fills) == 0 {
				return Fill{}, fmt.Errorf("sell %s: %w", instrument, err)
			}
			e.log.WithError(err).WithFields(map[string]interface{}{
				"instrument": instrument,
				"remaining":  remaining.String(),
			}).Warn("market sweep after IOC failed, keeping partial fill")
		} else if order.ExecutedQty.IsPositive() {
			fills = append(fills, Fill{Quantity: order.ExecutedQty, Price: order.AvgPrice()})
		}
	}

	if len(fills) == 0 {
		return Fill{}, fmt.Errorf("%w: sell %s", ErrNotFilled, instrument)
	}
	return combine(fills), nil
}

// combine merges fills into one at the quantity-weighted average price.
func combine(fills []Fill) Fill {
	qty := decimal.Zero
	value := decimal.Zero
	for _, f := range fills {
		qty = qty.Add(f.Quantity)
		value = value.Add(f.Value())
	}
	if qty.IsZero() {
		return Fill{}
	}
	return Fill{Quantity: qty, Price: value.Div(qty)}
}

func (e *Exchange) PlaceLimitBuy(ctx context.Context, instrument string, qty, price decimal.Decimal) (PlacedOrder, error) {
	filters, rounded, err := e.prepare(ctx, instrument, qty)
	if err != nil {
		return PlacedOrder{}, err
	}
	limit := filters.RoundPrice(price)
	if filters.MinNotional.IsPositive() && rounded.Mul(limit).LessThan(filters.MinNotional) {
		return PlacedOrder{}, fmt.Errorf("%w: %s notional %s below %s", ErrBelowLimit, instrument, rounded.Mul(limit), filters.MinNotional)
	}

	order, err := e.transport.SubmitLimit(ctx, instrument, connectors.SideBuy, rounded, limit, connectors.TimeInForceGTC)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("place limit buy %s: %w", instrument, err)
	}
	return PlacedOrder{OrderID: order.ID(), Quantity: rounded, Price: limit}, nil
}

func (e *Exchange) OrderStatus(ctx context.Context, instrument, orderID string) (OrderReport, error) {
	order, err := e.transport.OrderStatus(ctx, instrument, orderID)
	if err != nil {
		return OrderReport{}, fmt.Errorf("order status %s/%s: %w", instrument, orderID, err)
	}
	return OrderReport{
		OrderID:   orderID,
		State:     stateOf(order.Status),
		FilledQty: order.ExecutedQty,
		AvgPrice:  order.AvgPrice(),
	}, nil
}

// Cancel treats an order the venue no longer knows as already cancelled.
func (e *Exchange) Cancel(ctx context.Context, instrument, orderID string) error {
	err := e.transport.CancelOrder(ctx, instrument, orderID)
	if err != nil && connectors.IsOrderGone(err) {
		return nil
	}
	return err
}

func stateOf(status string) OrderState {
	switch status {
	case connectors.OrderStatusFilled:
		return OrderFilled
	case connectors.OrderStatusCanceled, connectors.OrderStatusPendingCancel:
		return OrderCancelled
	case connectors.OrderStatusRejected:
		return OrderRejected
	case connectors.OrderStatusExpired, connectors.OrderStatusExpiredInMatch:
		return OrderExpired
	default:
		return OrderOpen
	}
}
