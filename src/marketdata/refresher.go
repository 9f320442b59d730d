// Package marketdata keeps the candle table current from Binance klines.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/model"
)

var ErrUnknownInterval = errors.New("unsupported kline interval")

// KlineAPI is the goex surface the refresher needs; *binance.Binance has it.
type KlineAPI interface {
	GetKlineRecords(currency goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error)
}

// CandleStore is satisfied by *repository.CandleRepository.
type CandleStore interface {
	LatestDatetime(ctx context.Context, symbol, interval string) (*time.Time, error)
	Upsert(ctx context.Context, candles []model.Candle) (int64, error)
}

type interval struct {
	period goex.KlinePeriod
	step   time.Duration
}

var intervals = map[string]interval{
	"1m":  {goex.KLINE_PERIOD_1MIN, time.Minute},
	"5m":  {goex.KLINE_PERIOD_5MIN, 5 * time.Minute},
	"15m": {goex.KLINE_PERIOD_15MIN, 15 * time.Minute},
	"30m": {goex.KLINE_PERIOD_30MIN, 30 * time.Minute},
	"1h":  {goex.KLINE_PERIOD_1H, time.Hour},
	"4h":  {goex.KLINE_PERIOD_4H, 4 * time.Hour},
	"1d":  {goex.KLINE_PERIOD_1DAY, 24 * time.Hour},
}

func lookupInterval(name string) (interval, error) {
	iv, ok := intervals[strings.ToLower(name)]
	if !ok {
		return interval{}, fmt.Errorf("%w: %q", ErrUnknownInterval, name)
	}
	return iv, nil
}

type Refresher struct {
	api   KlineAPI
	store CandleStore
	cfg   Config
	log   *logrus.Entry
	now   func() time.Time
}

func NewRefresher(cfg Config, store CandleStore, log *logrus.Entry) *Refresher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Refresher{
		store: store,
		cfg:   cfg,
		log:   log.WithField("component", "MarketData"),
		now:   time.Now,
	}
}

func newBinanceInstance(endpoint string) *binance.Binance {
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	return binance.NewWithConfig(&goex.APIConfig{
		HttpClient: &http.Client{Timeout: 30 * time.Second},
		Endpoint:   endpoint,
	})
}

// WithAPI swaps the kline source. Without one a Binance client is built on
// first use.
func (r *Refresher) WithAPI(api KlineAPI) *Refresher {
	r.api = api
	return r
}

// Instrument is the stored symbol for a base asset, e.g. BTC -> BTCUSDT.
func (r *Refresher) Instrument(base string) string {
	return strings.ToUpper(base + r.cfg.Quote)
}

// Refresh fetches new bars for every configured symbol. A failing symbol is
// logged and skipped; the errors are joined.
func (r *Refresher) Refresh(ctx context.Context) (int64, error) {
	var total int64
	var errs []error
	for _, base := range r.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.refreshSymbol(ctx, base)
		if err != nil {
			r.log.WithError(err).WithField("symbol", r.Instrument(base)).Warn("candle refresh failed")
			errs = append(errs, err)
			continue
		}
		total += n
	}

	r.log.WithFields(map[string]interface{}{
		"symbols":  len(r.cfg.Symbols),
		"upserted": total,
		"interval": r.cfg.Interval,
	}).Info("candles refreshed")
	return total, errors.Join(errs...)
}

// refreshSymbol restarts one bar before the newest stored bar, which may
// have been saved while still open.
func (r *Refresher) refreshSymbol(ctx context.Context, base string) (int64, error) {
	iv, err := lookupInterval(r.cfg.Interval)
	if err != nil {
		return 0, err
	}

	now := r.now().UTC()
	from := now.Add(-r.cfg.Lookback)
	latest, err := r.store.LatestDatetime(ctx, r.Instrument(base), r.cfg.Interval)
	if err != nil {
		return 0, fmt.Errorf("latest candle %s: %w", r.Instrument(base), err)
	}
	if latest != nil && latest.After(from) {
		from = latest.Add(-iv.step)
	}
	return r.Backfill(ctx, base, from, now)
}

// Backfill pages through [from, to] in Limit sized requests.
func (r *Refresher) Backfill(ctx context.Context, base string, from, to time.Time) (int64, error) {
	iv, err := lookupInterval(r.cfg.Interval)
	if err != nil {
		return 0, err
	}
	limit := r.cfg.Limit
	if limit <= 0 {
		limit = 1000
	}

	if r.api == nil {
		r.api = newBinanceInstance(r.cfg.Endpoint)
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: strings.ToUpper(base)}, goex.Currency{Symbol: strings.ToUpper(r.cfg.Quote)})
	var total int64
	for from.Before(to) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		const millis = 1000
		klines, err := r.api.GetKlineRecords(pair, iv.period, limit,
			goex.OptionalParameter{}.
				Optional("startTime", from.Unix()*millis).
				Optional("endTime", to.Unix()*millis),
		)
		if err != nil {
			return total, fmt.Errorf("klines %s: %w", pair.String(), err)
		}
		if len(klines) == 0 {
			break
		}

		candles := r.toCandles(base, klines)
		n, err := r.store.Upsert(ctx, candles)
		if err != nil {
			return total, err
		}
		total += n

		last := candles[len(candles)-1].Datetime
		if len(klines) < limit || !last.After(from) {
			break
		}
		from = last.Add(iv.step)
	}
	return total, nil
}

func (r *Refresher) toCandles(base string, klines []goex.Kline) []model.Candle {
	out := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, model.Candle{
			Symbol:   r.Instrument(base),
			Interval: r.cfg.Interval,
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		})
	}
	return out
}
