// Package portfolio is the capital ledger. It owns every open position and
// resting order, sizes and gates new entries, and closes positions when the
// exit evaluator says so. All methods are serialized by one mutex and every
// reader returns copies.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/execution"
	"momentumengine/src/exitrule"
	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/position"
	"momentumengine/src/risk"
)

type Portfolio struct {
	mu sync.Mutex

	policy    risk.Policy
	evaluator exitrule.Evaluator
	exec      execution.Executor
	log       *logrus.Entry
	runID     string
	mode      string

	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*position.Position
	book        *pending.Book
	trades      []model.TradeRecord
	snapshots   []model.PortfolioSnapshot
	corrupted   error
}

func New(initialCash decimal.Decimal, policy risk.Policy, exec execution.Executor, log *logrus.Entry) *Portfolio {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Portfolio{
		policy:      policy,
		evaluator:   exitrule.NewEvaluator(policy),
		exec:        exec,
		log:         log.WithField("component", "Portfolio"),
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*position.Position),
		book:        pending.NewBook(),
	}
}

// WithRun stamps every trade record and snapshot with a run id and mode.
func (p *Portfolio) WithRun(runID, mode string) *Portfolio {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
	p.mode = mode
	return p
}

func (p *Portfolio) Policy() risk.Policy { return p.policy }

func (p *Portfolio) positionValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}

func (p *Portfolio) totalValue() decimal.Decimal {
	return p.cash.Add(p.positionValue())
}

func (p *Portfolio) exposure() decimal.Decimal {
	total := p.totalValue()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return p.positionValue().Div(total)
}

func (p *Portfolio) availableCash() decimal.Decimal {
	return p.cash.Sub(p.book.Reserved())
}

func (p *Portfolio) sortedInstruments() []string {
	out := make([]string, 0, len(p.positions))
	for k := range p.positions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PositionSize is the quantity a signal of this strength buys at price.
func (p *Portfolio) PositionSize(price, strength decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionSize(price, strength)
}

func (p *Portfolio) positionSize(price, strength decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	multiplier := decimal.Min(strength.Div(p.policy.StrengthDivisor), p.policy.StrengthMultiplierCap)
	target := decimal.Min(p.policy.BasePositionPct.Mul(multiplier), p.policy.MaxPositionPct)
	if !target.IsPositive() {
		return decimal.Zero
	}
	return p.totalValue().Mul(target).Div(price)
}

// CanOpen reports whether an entry at price would be accepted now.
func (p *Portfolio) CanOpen(instrument string, price, strength decimal.Decimal) (bool, Rejection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, rej := p.canOpen(instrument, price, strength)
	return rej.OK(), rej
}

func (p *Portfolio) canOpen(instrument string, price, strength decimal.Decimal) (decimal.Decimal, Rejection) {
	if !price.IsPositive() {
		return decimal.Zero, Rejection{Code: RejectInvalidPrice, Detail: price.String()}
	}
	if _, ok := p.positions[instrument]; ok {
		return decimal.Zero, Rejection{Code: RejectAlreadyHeld}
	}
	if p.book.Has(instrument) {
		return decimal.Zero, Rejection{Code: RejectPendingExists}
	}

	qty := p.positionSize(price, strength)
	if !qty.IsPositive() {
		return decimal.Zero, Rejection{Code: RejectZeroSize, Detail: "strength " + strength.String()}
	}

	investment := qty.Mul(price)
	if investment.LessThan(p.policy.MinInvestment) {
		return decimal.Zero, Rejection{Code: RejectBelowMinimum, Detail: fmt.Sprintf("%s < %s", investment.StringFixed(2), p.policy.MinInvestment)}
	}

	required := investment.Mul(decimal.NewFromInt(1).Add(p.policy.SlippageLimit))
	available := p.availableCash()
	if required.GreaterThan(available) {
		return decimal.Zero, Rejection{Code: RejectInsufficientCash, Detail: fmt.Sprintf("need %s, have %s", required.StringFixed(2), available.StringFixed(2))}
	}

	total := p.totalValue()
	committed := p.positionValue().Add(p.book.Reserved()).Add(investment)
	if committed.Div(total).GreaterThan(p.policy.MaxTotalExposure) {
		return decimal.Zero, Rejection{Code: RejectExposure, Detail: fmt.Sprintf("%s > %s", committed.Div(total).StringFixed(4), p.policy.MaxTotalExposure)}
	}
	return qty, Rejection{}
}

// OpenRequest is an immediate entry at Price.
type OpenRequest struct {
	Instrument  string
	Price       decimal.Decimal
	Strength    decimal.Decimal
	StrategyTag string
	Reason      string
	Now         time.Time
}

// Open sizes, gates and executes an immediate entry. Rejections come back as
// *RejectedError.
func (p *Portfolio) Open(ctx context.Context, req OpenRequest) (model.TradeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.corrupted != nil {
		return model.TradeRecord{}, p.corrupted
	}
	return p.open(ctx, req)
}

func (p *Portfolio) open(ctx context.Context, req OpenRequest) (model.TradeRecord, error) {
	qty, rej := p.canOpen(req.Instrument, req.Price, req.Strength)
	if !rej.OK() {
		return model.TradeRecord{}, &RejectedError{Instrument: req.Instrument, Rejection: rej}
	}

	fill, err := p.exec.Buy(ctx, req.Instrument, qty, req.Price)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("open %s: %w", req.Instrument, err)
	}
	return p.settleBuy(req.Instrument, fill, req.StrategyTag, req.Reason, req.Now)
}

// settleBuy debits the fill and books the position.
func (p *Portfolio) settleBuy(instrument string, fill execution.Fill, tag, reason string, now time.Time) (model.TradeRecord, error) {
	cost := fill.Value()
	p.cash = p.cash.Sub(cost)
	pos := position.New(instrument, fill.Price, fill.Quantity, now, tag, p.policy.Trailing)
	p.positions[instrument] = pos

	trade := model.TradeRecord{
		RunID:       p.runID,
		Mode:        p.mode,
		Time:        now,
		Symbol:      instrument,
		Side:        model.TradeSideBuy,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		Value:       cost,
		StrategyTag: tag,
		Reason:      reason,
	}
	p.trades = append(p.trades, trade)

	p.log.WithFields(map[string]interface{}{
		"instrument": instrument,
		"price":      fill.Price.String(),
		"quantity":   fill.Quantity.String(),
		"cost":       cost.StringFixed(2),
		"cash":       p.cash.StringFixed(2),
		"strategy":   tag,
	}).Info("position opened")

	if err := p.verify("open " + instrument); err != nil {
		return trade, err
	}
	return trade, nil
}

// Close sells the whole position at about exitPrice. A partial fill leaves
// the unsold remainder open; a remainder below the venue minimum is written off.
func (p *Portfolio) Close(ctx context.Context, instrument string, exitPrice decimal.Decimal, now time.Time, reason exitrule.Reason) (model.TradeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.corrupted != nil {
		return model.TradeRecord{}, p.corrupted
	}
	return p.close(ctx, instrument, exitPrice, now, string(reason))
}

func (p *Portfolio) close(ctx context.Context, instrument string, exitPrice decimal.Decimal, now time.Time, reason string) (model.TradeRecord, error) {
	pos, ok := p.positions[instrument]
	if !ok {
		return model.TradeRecord{}, fmt.Errorf("close %s: %w", instrument, ErrNoPosition)
	}
	if !exitPrice.IsPositive() {
		return model.TradeRecord{}, fmt.Errorf("close %s: invalid exit price %s", instrument, exitPrice)
	}
	pos.Update(exitPrice, now)

	fill, err := p.exec.Sell(ctx, instrument, pos.Quantity, exitPrice)
	if errors.Is(err, execution.ErrBelowLimit) {
		// Dust under the venue minimum can never be sold; drop it from the book.
		delete(p.positions, instrument)
		p.log.WithFields(map[string]interface{}{
			"instrument": instrument,
			"quantity":   pos.Quantity.String(),
			"value":      pos.MarketValue().StringFixed(2),
		}).Warn("position below venue minimum written off as dust")
		return model.TradeRecord{}, fmt.Errorf("close %s: %w", instrument, err)
	}
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("close %s: %w", instrument, err)
	}
	remainder := pos.Quantity.Sub(fill.Quantity)

	proceeds := fill.Value()
	cost := fill.Quantity.Mul(pos.EntryPrice)
	pnlPct := decimal.Zero
	if pos.EntryPrice.IsPositive() {
		pnlPct = fill.Price.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	}

	p.cash = p.cash.Add(proceeds)
	if remainder.IsPositive() {
		pos.Quantity = remainder
		p.log.WithFields(map[string]interface{}{
			"instrument": instrument,
			"sold":       fill.Quantity.String(),
			"remaining":  remainder.String(),
		}).Warn("exit partially filled, keeping remainder open")
	} else {
		delete(p.positions, instrument)
	}

	trade := model.TradeRecord{
		RunID:        p.runID,
		Mode:         p.mode,
		Time:         now,
		Symbol:       instrument,
		Side:         model.TradeSideSell,
		Price:        fill.Price,
		Quantity:     fill.Quantity,
		Value:        proceeds,
		StrategyTag:  pos.StrategyTag,
		Reason:       reason,
		PnLPct:       pnlPct,
		PnLValue:     proceeds.Sub(cost),
		HoldingHours: pos.HoldingDuration(now).Hours(),
		MaxProfitPct: pos.MaxProfitPct(),
		MaxLossPct:   pos.MaxLossPct(),
	}
	p.trades = append(p.trades, trade)

	p.log.WithFields(map[string]interface{}{
		"instrument": instrument,
		"price":      fill.Price.String(),
		"reason":     reason,
		"pnlPct":     pnlPct.Mul(decimal.NewFromInt(100)).StringFixed(2),
		"pnlValue":   trade.PnLValue.StringFixed(2),
		"cash":       p.cash.StringFixed(2),
	}).Info("position closed")

	if err := p.verify("close " + instrument); err != nil {
		return trade, err
	}
	return trade, nil
}

// verify trips the fatal ledger flag when cash went negative.
func (p *Portfolio) verify(op string) error {
	if p.cash.IsNegative() {
		p.corrupted = &LedgerError{Op: op, Detail: "cash " + p.cash.String()}
		p.log.WithError(p.corrupted).Error("ledger invariant broken, halting portfolio")
		return p.corrupted
	}
	return nil
}

// ClosedPosition pairs an exit trade with the verdict that caused it.
type ClosedPosition struct {
	Trade    model.TradeRecord
	Decision exitrule.Decision
}

type MarkResult struct {
	Closed  []ClosedPosition
	Skipped []string // no price this tick
	Errors  []error
}

// MarkToMarket updates every position to its price, evaluates the exit rules
// and closes on a match. A failed close leaves the position open and is
// reported in Errors. Only a ledger violation is returned as error.
func (p *Portfolio) MarkToMarket(ctx context.Context, prices map[string]decimal.Decimal, now time.Time) (MarkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result MarkResult
	if p.corrupted != nil {
		return result, p.corrupted
	}

	for _, instrument := range p.sortedInstruments() {
		price, ok := prices[instrument]
		if !ok || !price.IsPositive() {
			result.Skipped = append(result.Skipped, instrument)
			continue
		}
		pos := p.positions[instrument]
		pos.Update(price, now)

		decision := p.evaluator.Evaluate(pos, now)
		if !decision.Exit {
			continue
		}
		trade, err := p.close(ctx, instrument, price, now, string(decision.Reason))
		if p.corrupted != nil {
			return result, p.corrupted
		}
		if err != nil {
			p.log.WithError(err).WithField("instrument", instrument).Warn("exit failed, keeping position")
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Closed = append(result.Closed, ClosedPosition{Trade: trade, Decision: decision})
	}
	return result, nil
}

// CloseAll liquidates every position at its price in prices, falling back to
// the last marked price.
func (p *Portfolio) CloseAll(ctx context.Context, prices map[string]decimal.Decimal, now time.Time, reason exitrule.Reason) (MarkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result MarkResult
	if p.corrupted != nil {
		return result, p.corrupted
	}

	for _, instrument := range p.sortedInstruments() {
		pos := p.positions[instrument]
		price, ok := prices[instrument]
		if !ok || !price.IsPositive() {
			price = pos.CurrentPrice()
		}
		trade, err := p.close(ctx, instrument, price, now, string(reason))
		if p.corrupted != nil {
			return result, p.corrupted
		}
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Closed = append(result.Closed, ClosedPosition{
			Trade:    trade,
			Decision: exitrule.Decision{Exit: true, Reason: reason, PnLPct: trade.PnLPct, Holding: pos.HoldingDuration(now)},
		})
	}
	return result, nil
}
