package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"momentumengine/src/database"
	"momentumengine/src/model"
)

// CandleRepository reads and writes OHLCV bars. Market data is the only
// writer; the drivers only read.
type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository() *CandleRepository {
	return &CandleRepository{db: database.MainDB}
}

func (r *CandleRepository) WithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// LoadRange returns every bar of interval with open time in [from, to] for the
// given symbols (all symbols when empty), ordered by symbol then time.
func (r *CandleRepository) LoadRange(ctx context.Context, symbols []string, interval string, from, to time.Time) ([]model.Candle, error) {
	q := r.db.WithContext(ctx).
		Where("bar_interval = ? AND datetime >= ? AND datetime <= ?", interval, from, to)
	if len(symbols) > 0 {
		q = q.Where("symbol IN ?", symbols)
	}

	var rows []model.Candle
	if err := q.Order("symbol ASC, datetime ASC").Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CandleRepository",
			"op":       "LoadRange",
			"interval": interval,
		}).WithError(err).Error("Failed to load candles")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "CandleRepository",
		"op":          "LoadRange",
		"interval":    interval,
		"from":        from.Format(time.RFC3339),
		"to":          to.Format(time.RFC3339),
		"rows_return": len(rows),
	}).Debug("Candles loaded")
	return rows, nil
}

// CandleAtOrBefore returns the last bar opened at or before t. (nil, nil) when none.
func (r *CandleRepository) CandleAtOrBefore(ctx context.Context, symbol, interval string, t time.Time) (*model.Candle, error) {
	var c model.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND datetime <= ?", symbol, interval, t).
		Order("datetime DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// LatestDatetime is the newest stored open time for symbol. (nil, nil) when
// the symbol has no bars yet.
func (r *CandleRepository) LatestDatetime(ctx context.Context, symbol, interval string) (*time.Time, error) {
	c, err := r.CandleAtOrBefore(ctx, symbol, interval, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || c == nil {
		return nil, err
	}
	t := c.Datetime
	return &t, nil
}

// Upsert inserts bars and refreshes OHLCV on (symbol, interval, datetime) conflicts.
func (r *CandleRepository) Upsert(ctx context.Context, candles []model.Candle) (int64, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "bar_interval"}, {Name: "datetime"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(&candles, 500)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Symbols lists the distinct symbols stored for interval.
func (r *CandleRepository) Symbols(ctx context.Context, interval string) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&model.Candle{}).
		Where("bar_interval = ?", interval).
		Distinct().
		Order("symbol ASC").
		Pluck("symbol", &out).Error
	return out, err
}
