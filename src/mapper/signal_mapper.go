package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"momentumengine/src/externalmodel"
	"momentumengine/src/signal"
)

var ErrUnknownSignalKind = errors.New("unknown signal kind")

// MapMomentumSignal converts a detector row into its signal variant. Missing
// optional metrics default to zero; a missing price or unknown kind is an error.
func MapMomentumSignal(row *externalmodel.MomentumSignal) (signal.Signal, error) {
	if row == nil {
		return nil, errors.New("nil momentum signal row")
	}
	if row.Symbol == "" {
		return nil, fmt.Errorf("signal %d has no symbol", row.ID)
	}
	if !row.Price.IsPositive() {
		return nil, fmt.Errorf("signal %d for %s has non-positive price %s", row.ID, row.Symbol, row.Price)
	}

	base := signal.Base{
		Symbol: strings.ToUpper(row.Symbol),
		Price:  row.Price,
		At:     row.DetectedAt.UTC(),
		SignalBar: signal.Bar{
			Open:  valueOr(row.BarOpen, row.Price, "bar_open", row),
			Close: valueOr(row.BarClose, row.Price, "bar_close", row),
		},
	}
	if row.BarOpenTime != nil {
		base.SignalBar.OpenTime = row.BarOpenTime.UTC()
	} else {
		base.SignalBar.OpenTime = base.At
	}

	switch signal.Kind(row.Kind) {
	case signal.KindVolumeBreakout:
		return signal.VolumeBreakout{
			Base:           base,
			VolumeRatio:    valueOr(row.VolumeRatio, decimal.Zero, "volume_ratio", row),
			PriceChangePct: valueOr(row.PriceChangePct, decimal.Zero, "price_change_pct", row),
		}, nil
	case signal.KindMultiTimeframeMomentum:
		return signal.MultiTimeframeMomentum{
			Base:       base,
			Timeframes: splitTimeframes(row.Timeframes),
		}, nil
	case signal.KindPullback:
		return signal.Pullback{
			Base:          base,
			PullbackRatio: valueOr(row.PullbackRatio, decimal.Zero, "pullback_ratio", row),
			RSI:           valueOr(row.RSI, decimal.Zero, "rsi", row),
		}, nil
	case signal.KindSectorRotation:
		return signal.SectorRotation{
			Base:         base,
			Sector:       row.Sector,
			SectorReturn: valueOr(row.SectorReturn, decimal.Zero, "sector_return", row),
			CoinReturn:   valueOr(row.CoinReturn, decimal.Zero, "coin_return", row),
		}, nil
	default:
		return nil, fmt.Errorf("%w %q for signal %d", ErrUnknownSignalKind, row.Kind, row.ID)
	}
}

// MapMomentumSignals maps a batch and skips rows that cannot be mapped.
func MapMomentumSignals(rows []externalmodel.MomentumSignal) []signal.Signal {
	out := make([]signal.Signal, 0, len(rows))
	for i := range rows {
		sig, err := MapMomentumSignal(&rows[i])
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"mapper": "MapMomentumSignals",
				"id":     rows[i].ID,
				"symbol": rows[i].Symbol,
			}).WithError(err).Warn("Skipping unmappable momentum signal")
			continue
		}
		out = append(out, sig)
	}
	return out
}

func valueOr(v decimal.NullDecimal, fallback decimal.Decimal, field string, row *externalmodel.MomentumSignal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	logger.WithFields(map[string]interface{}{
		"field": field,
		"id":    row.ID,
	}).Debug("Empty signal field, using fallback")
	return fallback
}

func splitTimeframes(raw string) []string {
	var out []string
	for _, tf := range strings.Split(raw, ",") {
		if tf = strings.TrimSpace(tf); tf != "" {
			out = append(out, tf)
		}
	}
	return out
}
