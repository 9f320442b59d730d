package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"momentumengine/src/database"
	"momentumengine/src/model"
)

// TradeRepository persists the trade ledger. Rows are append-only.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) CreateBatch(ctx context.Context, trades []model.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&trades, 200).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TradeRepository",
			"op":    "CreateBatch",
			"count": len(trades),
		}).WithError(err).Error("Failed to persist trades")
		return err
	}
	return nil
}

// FindByRun returns a run's trades in ledger order.
func (r *TradeRepository) FindByRun(ctx context.Context, runID string) ([]model.TradeRecord, error) {
	var rows []model.TradeRecord
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("traded_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// FindLatest returns the newest trades of a mode, newest first.
func (r *TradeRepository) FindLatest(ctx context.Context, mode string, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.TradeRecord
	err := r.db.WithContext(ctx).
		Where("mode = ?", mode).
		Order("traded_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
