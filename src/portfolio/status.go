package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/position"
)

// Status is a point-in-time summary of the ledger.
type Status struct {
	InitialCash   decimal.Decimal `json:"initial_cash"`
	Cash          decimal.Decimal `json:"cash"`
	Reserved      decimal.Decimal `json:"reserved"`
	AvailableCash decimal.Decimal `json:"available_cash"`
	PositionValue decimal.Decimal `json:"position_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Exposure      decimal.Decimal `json:"exposure"`
	TotalReturn   decimal.Decimal `json:"total_return"`
	PositionCount int             `json:"position_count"`
	PendingCount  int             `json:"pending_count"`
	TradeCount    int             `json:"trade_count"`
	Halted        bool            `json:"halted"`
}

func (p *Portfolio) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.totalValue()
	ret := decimal.Zero
	if p.initialCash.IsPositive() {
		ret = total.Sub(p.initialCash).Div(p.initialCash)
	}
	reserved := p.book.Reserved()
	return Status{
		InitialCash:   p.initialCash,
		Cash:          p.cash,
		Reserved:      reserved,
		AvailableCash: p.cash.Sub(reserved),
		PositionValue: p.positionValue(),
		TotalValue:    total,
		Exposure:      p.exposure(),
		TotalReturn:   ret,
		PositionCount: len(p.positions),
		PendingCount:  p.book.Len(),
		TradeCount:    len(p.trades),
		Halted:        p.corrupted != nil,
	}
}

// Holds reports whether instrument has an open position or resting order.
func (p *Portfolio) Holds(instrument string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.positions[instrument]
	return ok || p.book.Has(instrument)
}

// Instruments lists every instrument that needs a price: open positions and
// resting orders.
func (p *Portfolio) Instruments() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.sortedInstruments()
	for _, k := range p.book.Instruments() {
		if _, ok := p.positions[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Snapshot appends a point to the equity series and returns it.
func (p *Portfolio) Snapshot(now time.Time) model.PortfolioSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := model.PortfolioSnapshot{
		RunID:         p.runID,
		Mode:          p.mode,
		Time:          now,
		TotalValue:    p.totalValue(),
		Cash:          p.cash,
		PositionValue: p.positionValue(),
		PositionCount: len(p.positions),
		PendingCount:  p.book.Len(),
		PendingValue:  p.book.Reserved(),
		Exposure:      p.exposure(),
	}
	p.snapshots = append(p.snapshots, snap)
	return snap
}

func (p *Portfolio) Positions(now time.Time) []position.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]position.View, 0, len(p.positions))
	for _, k := range p.sortedInstruments() {
		out = append(out, p.positions[k].View(now))
	}
	return out
}

func (p *Portfolio) PendingOrders() []pending.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.book.Snapshot()
}

func (p *Portfolio) Trades() []model.TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.TradeRecord(nil), p.trades...)
}

// TradesSince returns the trades appended after the first n.
func (p *Portfolio) TradesSince(n int) []model.TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(p.trades) {
		return nil
	}
	return append([]model.TradeRecord(nil), p.trades[n:]...)
}

func (p *Portfolio) Snapshots() []model.PortfolioSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.PortfolioSnapshot(nil), p.snapshots...)
}

// Err is the fatal ledger error, nil while the ledger is sound.
func (p *Portfolio) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.corrupted
}
