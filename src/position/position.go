package position

import (
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/risk"
)

// Position is one open long spot trade. Identity fields are fixed at creation;
// price tracking state only moves through Update.
type Position struct {
	Instrument  string
	EntryPrice  decimal.Decimal
	Quantity    decimal.Decimal
	EntryTime   time.Time
	StrategyTag string

	trailing risk.TrailingPolicy

	currentPrice     decimal.Decimal
	unrealizedPnLPct decimal.Decimal
	maxProfitPct     decimal.Decimal
	maxLossPct       decimal.Decimal
	maxPriceSeen     decimal.Decimal
	trailingActive   bool
	trailingStop     decimal.Decimal
	lastUpdate       time.Time
}

// New opens a position marked at its entry price.
func New(instrument string, entryPrice, quantity decimal.Decimal, entryTime time.Time, strategyTag string, trailing risk.TrailingPolicy) *Position {
	return &Position{
		Instrument:   instrument,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		EntryTime:    entryTime,
		StrategyTag:  strategyTag,
		trailing:     trailing,
		currentPrice: entryPrice,
		maxPriceSeen: entryPrice,
		lastUpdate:   entryTime,
	}
}

// Update marks the position to price and advances the high-water marks and
// the trailing stop. The stop never lowers and never disarms.
func (p *Position) Update(price decimal.Decimal, now time.Time) {
	p.currentPrice = price
	p.lastUpdate = now
	p.unrealizedPnLPct = p.pnlAt(price)

	if p.unrealizedPnLPct.GreaterThan(p.maxProfitPct) {
		p.maxProfitPct = p.unrealizedPnLPct
	}
	if p.unrealizedPnLPct.LessThan(p.maxLossPct) {
		p.maxLossPct = p.unrealizedPnLPct
	}
	if price.GreaterThan(p.maxPriceSeen) {
		p.maxPriceSeen = price
	}

	p.ratchetTrailingStop()
}

func (p *Position) ratchetTrailingStop() {
	profitFromHigh := p.pnlAt(p.maxPriceSeen)

	if !p.trailingActive && profitFromHigh.GreaterThanOrEqual(p.trailing.ActivationPct) {
		p.trailingActive = true
		p.trailingStop = p.EntryPrice.Mul(p.trailing.FloorRatio)
	}
	if !p.trailingActive {
		return
	}

	candidate := p.maxPriceSeen.Mul(p.trailing.RetracementRatio)
	if candidate.GreaterThan(p.trailingStop) {
		p.trailingStop = candidate
	}
}

func (p *Position) pnlAt(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(p.EntryPrice)
}

// ShouldTrailingStop is true once the stop is armed and price is at or below it.
func (p *Position) ShouldTrailingStop() bool {
	return p.trailingActive && p.currentPrice.LessThanOrEqual(p.trailingStop)
}

func (p *Position) HoldingDuration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

func (p *Position) CurrentPrice() decimal.Decimal { return p.currentPrice }
func (p *Position) UnrealizedPnLPct() decimal.Decimal { return p.unrealizedPnLPct }
func (p *Position) MaxProfitPct() decimal.Decimal { return p.maxProfitPct }
func (p *Position) MaxLossPct() decimal.Decimal { return p.maxLossPct }
func (p *Position) MaxPriceSeen() decimal.Decimal { return p.maxPriceSeen }
func (p *Position) TrailingStopActivated() bool { return p.trailingActive }
func (p *Position) TrailingStopPrice() decimal.Decimal { return p.trailingStop }
func (p *Position) CostBasis() decimal.Decimal { return p.Quantity.Mul(p.EntryPrice) }
func (p *Position) MarketValue() decimal.Decimal { return p.Quantity.Mul(p.currentPrice) }
func (p *Position) UnrealizedPnLValue() decimal.Decimal { return p.MarketValue().Sub(p.CostBasis()) }

// View is a read-only copy of a position for reporting.
type View struct {
	Instrument            string          `json:"instrument"`
	StrategyTag           string          `json:"strategy_tag"`
	EntryPrice            decimal.Decimal `json:"entry_price"`
	Quantity              decimal.Decimal `json:"quantity"`
	EntryTime             time.Time       `json:"entry_time"`
	CurrentPrice          decimal.Decimal `json:"current_price"`
	MarketValue           decimal.Decimal `json:"market_value"`
	UnrealizedPnLPct      decimal.Decimal `json:"unrealized_pnl_pct"`
	MaxProfitPct          decimal.Decimal `json:"max_profit_pct"`
	MaxLossPct            decimal.Decimal `json:"max_loss_pct"`
	MaxPriceSeen          decimal.Decimal `json:"max_price_seen"`
	TrailingStopActivated bool            `json:"trailing_stop_activated"`
	TrailingStopPrice     decimal.Decimal `json:"trailing_stop_price"`
	HoldingHours          float64         `json:"holding_hours"`
	LastUpdate            time.Time       `json:"last_update"`
}

func (p *Position) View(now time.Time) View {
	return View{
		Instrument:            p.Instrument,
		StrategyTag:           p.StrategyTag,
		EntryPrice:            p.EntryPrice,
		Quantity:              p.Quantity,
		EntryTime:             p.EntryTime,
		CurrentPrice:          p.currentPrice,
		MarketValue:           p.MarketValue(),
		UnrealizedPnLPct:      p.unrealizedPnLPct,
		MaxProfitPct:          p.maxProfitPct,
		MaxLossPct:            p.maxLossPct,
		MaxPriceSeen:          p.maxPriceSeen,
		TrailingStopActivated: p.trailingActive,
		TrailingStopPrice:     p.trailingStop,
		HoldingHours:          p.HoldingDuration(now).Hours(),
		LastUpdate:            p.lastUpdate,
	}
}
