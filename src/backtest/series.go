package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/model"
	"momentumengine/src/signal"
	"momentumengine/src/strategy"
)

// Series is the replay's in-memory candle store, bars sorted by open time per
// instrument.
type Series struct {
	bars map[string][]model.Candle
}

func NewSeries(candles []model.Candle) *Series {
	s := &Series{bars: make(map[string][]model.Candle)}
	for _, c := range candles {
		symbol := strings.ToUpper(c.Symbol)
		s.bars[symbol] = append(s.bars[symbol], c)
	}
	for symbol, bars := range s.bars {
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Datetime.Before(bars[j].Datetime) })
		s.bars[symbol] = dedupe(bars)
	}
	return s
}

// dedupe keeps the last bar for each open time.
func dedupe(bars []model.Candle) []model.Candle {
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Datetime.Equal(b.Datetime) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *Series) Instruments() []string {
	out := make([]string, 0, len(s.bars))
	for symbol := range s.bars {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Timestamps is the sorted union of every bar open time.
func (s *Series) Timestamps() []time.Time {
	seen := make(map[int64]time.Time)
	for _, bars := range s.bars {
		for _, b := range bars {
			seen[b.Datetime.UnixNano()] = b.Datetime
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// BarAtOrBefore returns the last bar opened at or before t.
func (s *Series) BarAtOrBefore(instrument string, t time.Time) (model.Candle, bool) {
	bars := s.bars[instrument]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Datetime.After(t) })
	if i == 0 {
		return model.Candle{}, false
	}
	return bars[i-1], true
}

func (s *Series) CloseAtOrBefore(instrument string, t time.Time) (decimal.Decimal, bool) {
	bar, ok := s.BarAtOrBefore(instrument, t)
	if !ok {
		return decimal.Zero, false
	}
	return bar.Close, true
}

// NextBar returns the first bar opened strictly after t.
func (s *Series) NextBar(instrument string, after time.Time) (model.Candle, bool) {
	bars := s.bars[instrument]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Datetime.After(after) })
	if i == len(bars) {
		return model.Candle{}, false
	}
	return bars[i], true
}

func (s *Series) NextLow(instrument string, after time.Time) (decimal.Decimal, bool) {
	bar, ok := s.NextBar(instrument, after)
	if !ok {
		return decimal.Zero, false
	}
	return bar.Low, true
}

// PricesAt is the close of every instrument that has traded by t.
func (s *Series) PricesAt(t time.Time) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(s.bars))
	for symbol := range s.bars {
		if price, ok := s.CloseAtOrBefore(symbol, t); ok {
			prices[symbol] = price
		}
	}
	return prices
}

// Reprice references sig to the bar in force at now: entries buy at its close
// and pivots retrace it, looking ahead to the bar after it.
func (s *Series) Reprice(_ context.Context, sig signal.Signal, now time.Time) (signal.Signal, error) {
	bar, ok := s.BarAtOrBefore(strings.ToUpper(sig.Instrument()), now)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", strategy.ErrNoPrice, sig.Instrument(), now.Format(time.RFC3339))
	}
	return signal.Repriced(sig, bar.Close, signal.Bar{OpenTime: bar.Datetime, Open: bar.Open, Close: bar.Close}), nil
}
