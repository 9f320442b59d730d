package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momentumengine/src/connectors"
)

type paperOrder struct {
	instrument string
	qty        decimal.Decimal
	limit      decimal.Decimal
	state      OrderState
	fillPrice  decimal.Decimal
}

// Paper simulates a venue for live dry runs. Takers fill at the requested
// price; resting buys fill at their limit once the quoter trades at or below it.
type Paper struct {
	Immediate
	quoter connectors.PriceQuoter

	mu     sync.Mutex
	orders map[string]*paperOrder
}

func NewPaper(quoter connectors.PriceQuoter) *Paper {
	return &Paper{quoter: quoter, orders: make(map[string]*paperOrder)}
}

func (p *Paper) PlaceLimitBuy(_ context.Context, instrument string, qty, price decimal.Decimal) (PlacedOrder, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return PlacedOrder{}, fmt.Errorf("%w: %s qty=%s price=%s", ErrBelowLimit, instrument, qty, price)
	}
	id := "paper-" + uuid.NewString()

	p.mu.Lock()
	p.orders[id] = &paperOrder{instrument: instrument, qty: qty, limit: price, state: OrderOpen}
	p.mu.Unlock()

	return PlacedOrder{OrderID: id, Quantity: qty, Price: price}, nil
}

func (p *Paper) OrderStatus(ctx context.Context, instrument, orderID string) (OrderReport, error) {
	p.mu.Lock()
	o, ok := p.orders[orderID]
	p.mu.Unlock()
	if !ok || o.instrument != instrument {
		return OrderReport{}, fmt.Errorf("paper order %s/%s not found", instrument, orderID)
	}

	if o.state == OrderOpen {
		last, err := p.quoter.LatestPrice(ctx, instrument)
		if err != nil {
			return OrderReport{}, fmt.Errorf("quote %s: %w", instrument, err)
		}
		if last.LessThanOrEqual(o.limit) {
			p.mu.Lock()
			o.state = OrderFilled
			o.fillPrice = o.limit
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	report := OrderReport{OrderID: orderID, State: o.state, FilledQty: decimal.Zero, AvgPrice: decimal.Zero}
	if o.state == OrderFilled {
		report.FilledQty = o.qty
		report.AvgPrice = o.fillPrice
	}
	return report, nil
}

func (p *Paper) Cancel(_ context.Context, instrument, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || o.instrument != instrument {
		return fmt.Errorf("paper order %s/%s not found", instrument, orderID)
	}
	if o.state == OrderOpen {
		o.state = OrderCancelled
	}
	return nil
}
