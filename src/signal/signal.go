package signal

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names the detector that produced a signal. It doubles as the strategy
// tag on positions and trade records.
type Kind string

const (
	KindVolumeBreakout         Kind = "volume_breakout"
	KindMultiTimeframeMomentum Kind = "multi_timeframe_momentum"
	KindPullback               Kind = "pullback"
	KindSectorRotation         Kind = "sector_rotation"
)

// Bar is the candle the detector fired on.
type Bar struct {
	OpenTime time.Time
	Open     decimal.Decimal
	Close    decimal.Decimal
}

// Signal is a closed set: only the variants in this package implement it.
type Signal interface {
	Instrument() string
	Kind() Kind
	Strength() decimal.Decimal
	ReferencePrice() decimal.Decimal
	Bar() Bar
	DetectedAt() time.Time
	isSignal()
}

// Base carries the fields every variant shares.
type Base struct {
	Symbol    string
	Price     decimal.Decimal
	SignalBar Bar
	At        time.Time
}

func (b Base) Instrument() string { return b.Symbol }
func (b Base) ReferencePrice() decimal.Decimal { return b.Price }
func (b Base) Bar() Bar { return b.SignalBar }
func (b Base) DetectedAt() time.Time { return b.At }
func (Base) isSignal() {}

func (b Base) repriced(price decimal.Decimal, bar Bar) Base {
	b.Price = price
	b.SignalBar = bar
	return b
}

// Repriced returns a copy of sig referenced to the market at the moment it is
// acted on. Strength and detection time are unchanged.
func Repriced(sig Signal, price decimal.Decimal, bar Bar) Signal {
	switch s := sig.(type) {
	case VolumeBreakout:
		s.Base = s.Base.repriced(price, bar)
		return s
	case MultiTimeframeMomentum:
		s.Base = s.Base.repriced(price, bar)
		return s
	case Pullback:
		s.Base = s.Base.repriced(price, bar)
		return s
	case SectorRotation:
		s.Base = s.Base.repriced(price, bar)
		return s
	}
	return sig
}

// VolumeBreakout fires when volume spikes against its moving average.
type VolumeBreakout struct {
	Base
	VolumeRatio    decimal.Decimal
	PriceChangePct decimal.Decimal
}

func (VolumeBreakout) Kind() Kind { return KindVolumeBreakout }
func (s VolumeBreakout) Strength() decimal.Decimal { return s.VolumeRatio }

// MultiTimeframeMomentum lists the timeframes whose momentum agreed.
type MultiTimeframeMomentum struct {
	Base
	Timeframes []string
}

func (MultiTimeframeMomentum) Kind() Kind { return KindMultiTimeframeMomentum }
func (s MultiTimeframeMomentum) Strength() decimal.Decimal {
	return decimal.NewFromInt(int64(len(s.Timeframes)))
}

var pullbackCeiling = decimal.RequireFromString("0.08")

// Pullback is a shallow retracement inside an uptrend. Shallower pullbacks are stronger.
type Pullback struct {
	Base
	PullbackRatio decimal.Decimal
	RSI           decimal.Decimal
}

func (Pullback) Kind() Kind { return KindPullback }
func (s Pullback) Strength() decimal.Decimal {
	return pullbackCeiling.Sub(s.PullbackRatio).Mul(decimal.NewFromInt(100))
}

// SectorRotation is a coin leading a sector that outperforms the market.
type SectorRotation struct {
	Base
	Sector       string
	SectorReturn decimal.Decimal
	CoinReturn   decimal.Decimal
}

func (SectorRotation) Kind() Kind { return KindSectorRotation }
func (s SectorRotation) Strength() decimal.Decimal {
	return s.CoinReturn.Mul(decimal.NewFromInt(100))
}

// SortByStrength orders strongest first; ties break on instrument for determinism.
func SortByStrength(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		si, sj := signals[i].Strength(), signals[j].Strength()
		if !si.Equal(sj) {
			return si.GreaterThan(sj)
		}
		return signals[i].Instrument() < signals[j].Instrument()
	})
}

// Source delivers signals detected in the half-open window (from, to].
type Source interface {
	Signals(ctx context.Context, from, to time.Time) ([]Signal, error)
}
