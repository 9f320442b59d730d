package pending

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrDuplicate = errors.New("pending order already exists for instrument")

// Book holds at most one open order per instrument. Terminal orders are
// removed as soon as they are pruned.
type Book struct {
	orders map[string]*Order
}

func NewBook() *Book {
	return &Book{orders: make(map[string]*Order)}
}

func (b *Book) Add(o *Order) error {
	if _, ok := b.orders[o.Instrument]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, o.Instrument)
	}
	b.orders[o.Instrument] = o
	return nil
}

func (b *Book) Has(instrument string) bool {
	_, ok := b.orders[instrument]
	return ok
}

func (b *Book) Get(instrument string) (*Order, bool) {
	o, ok := b.orders[instrument]
	return o, ok
}

// Remove prunes the instrument's order, whatever its state.
func (b *Book) Remove(instrument string) {
	delete(b.orders, instrument)
}

func (b *Book) Len() int { return len(b.orders) }

// Reserved is the notional committed by every resting order.
func (b *Book) Reserved() decimal.Decimal {
	total := decimal.Zero
	for _, o := range b.orders {
		total = total.Add(o.Notional())
	}
	return total
}

// Instruments returns the book's keys sorted, so reconciliation is reproducible.
func (b *Book) Instruments() []string {
	out := make([]string, 0, len(b.orders))
	for k := range b.orders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies every order for reporting.
func (b *Book) Snapshot() []Order {
	out := make([]Order, 0, len(b.orders))
	for _, k := range b.Instruments() {
		out = append(out, *b.orders[k])
	}
	return out
}
