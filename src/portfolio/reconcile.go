package portfolio

import (
	"context"
	"fmt"
	"time"

	"momentumengine/src/execution"
	"momentumengine/src/model"
	"momentumengine/src/pending"
)

type ReconcileResult struct {
	Filled    []model.TradeRecord
	Cancelled []pending.Order
	Errors    []error
}

// ReconcilePending walks the resting orders. The venue report is read first
// so a fill wins over the timeout; an order that is due and not finished is
// cancelled remotely and pruned locally whatever the cancel returns.
func (p *Portfolio) ReconcilePending(ctx context.Context, now time.Time) (ReconcileResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result ReconcileResult
	if p.corrupted != nil {
		return result, p.corrupted
	}
	if p.book.Len() == 0 {
		return result, nil
	}
	exec, ok := p.exec.(execution.Contingent)
	if !ok {
		return result, fmt.Errorf("%w: %T", ErrNotContingent, p.exec)
	}

	for _, instrument := range p.book.Instruments() {
		order, _ := p.book.Get(instrument)
		log := p.log.WithFields(map[string]interface{}{
			"instrument": instrument,
			"orderId":    order.OrderID,
		})

		report, err := exec.OrderStatus(ctx, instrument, order.OrderID)
		if err != nil {
			log.WithError(err).Warn("pending order status unavailable")
			result.Errors = append(result.Errors, err)
		}

		if err == nil && report.State != execution.OrderOpen {
			if err := p.settleReport(order, report, now, &result); err != nil {
				return result, err
			}
			continue
		}

		if !order.IsDue(now) {
			continue
		}

		if cerr := exec.Cancel(ctx, instrument, order.OrderID); cerr != nil {
			log.WithError(cerr).Warn("cancel of expired order failed, pruning locally")
			result.Errors = append(result.Errors, fmt.Errorf("cancel %s/%s: %w", instrument, order.OrderID, cerr))
		}
		p.book.Remove(instrument)
		if err == nil && report.FilledQty.IsPositive() {
			trade, ferr := p.settlePartial(order, report, now)
			if ferr != nil {
				return result, ferr
			}
			result.Filled = append(result.Filled, trade)
		}
		_ = order.Expire(now)
		log.Info("pending order expired")
		result.Cancelled = append(result.Cancelled, *order)
	}
	return result, nil
}

// settleReport prunes order and applies its terminal venue state. The
// reservation is released before the real cost is debited.
func (p *Portfolio) settleReport(order *pending.Order, report execution.OrderReport, now time.Time, result *ReconcileResult) error {
	p.book.Remove(order.Instrument)

	if report.State == execution.OrderFilled {
		qty := report.FilledQty
		if !qty.IsPositive() {
			qty = order.Quantity
		}
		price := report.AvgPrice
		if !price.IsPositive() {
			price = order.LimitPrice
		}
		trade, err := p.settleBuy(order.Instrument, execution.Fill{Quantity: qty, Price: price}, order.StrategyTag, "pivot filled", now)
		_ = order.Fill(qty, price, now)
		result.Filled = append(result.Filled, trade)
		return err
	}

	if report.FilledQty.IsPositive() {
		trade, err := p.settlePartial(order, report, now)
		if err != nil {
			return err
		}
		result.Filled = append(result.Filled, trade)
	}
	if report.State == execution.OrderExpired {
		_ = order.Expire(now)
	} else {
		_ = order.Cancel(now, string(report.State))
	}
	p.log.WithFields(map[string]interface{}{
		"instrument": order.Instrument,
		"orderId":    order.OrderID,
		"state":      report.State,
	}).Info("pending order closed by venue")
	result.Cancelled = append(result.Cancelled, *order)
	return nil
}

// settlePartial books the filled part of an order that will not fill further.
// The order must already be out of the book.
func (p *Portfolio) settlePartial(order *pending.Order, report execution.OrderReport, now time.Time) (model.TradeRecord, error) {
	price := report.AvgPrice
	if !price.IsPositive() {
		price = order.LimitPrice
	}
	return p.settleBuy(order.Instrument, execution.Fill{Quantity: report.FilledQty, Price: price}, order.StrategyTag, "pivot partially filled", now)
}

// CancelPending cancels every resting order and prunes the book.
func (p *Portfolio) CancelPending(ctx context.Context, now time.Time, reason string) ReconcileResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result ReconcileResult
	exec, ok := p.exec.(execution.Contingent)
	for _, instrument := range p.book.Instruments() {
		order, _ := p.book.Get(instrument)
		if ok {
			if err := exec.Cancel(ctx, instrument, order.OrderID); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("cancel %s/%s: %w", instrument, order.OrderID, err))
			}
		}
		_ = order.Cancel(now, reason)
		p.book.Remove(instrument)
		result.Cancelled = append(result.Cancelled, *order)
	}
	return result
}
