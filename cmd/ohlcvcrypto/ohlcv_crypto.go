package ohlcvcrypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
)

// CandleFetcher is satisfied by *marketdata.Refresher.
type CandleFetcher interface {
	Refresh(ctx context.Context) (int64, error)
	Backfill(ctx context.Context, base string, from, to time.Time) (int64, error)
}

type OHLCVCrypto struct {
	Log     *logger.Entry
	Config  *Config
	Symbols []string
	Data    CandleFetcher
	Now     func() time.Time
}

// Start resumes every symbol from its latest stored bar in AUTO_MODE, and
// otherwise backfills [START_DATE, END_DATE] clipped to now.
func (o *OHLCVCrypto) Start(ctx context.Context) (int64, error) {
	if o.Config.AutoMode {
		n, err := o.Data.Refresh(ctx)
		o.Log.WithField("rows", n).Info("OHLCV refresh finished")
		return n, err
	}

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	from, to := o.Config.StartDt.UTC(), o.Config.EndDt.UTC()
	if end := now().UTC(); to.After(end) {
		to = end
	}
	if !from.Before(to) {
		return 0, fmt.Errorf("START_DATE %s must be before END_DATE %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	symbols := o.Symbols
	if len(o.Config.Symbols) > 0 {
		symbols = o.Config.Symbols
	}

	var total int64
	var errs []error
	for _, base := range symbols {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := o.Data.Backfill(ctx, base, from, to)
		total += n
		if err != nil {
			o.Log.WithError(err).WithField("Symbol", base).Error("OHLCV backfill failed")
			errs = append(errs, fmt.Errorf("%s: %w", base, err))
			continue
		}
		o.Log.WithFields(logger.Fields{
			"Symbol": base,
			"Rows":   n,
			"From":   from.Format(time.RFC3339),
			"To":     to.Format(time.RFC3339),
		}).Info("OHLCV data inserted or updated in database")
	}
	return total, errors.Join(errs...)
}
