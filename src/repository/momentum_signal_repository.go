package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"momentumengine/src/database"
	"momentumengine/src/externalmodel"
)

// MomentumSignalRepository handles read-only access to the detector output
// stored in the read-only database.
type MomentumSignalRepository struct {
	db *gorm.DB
}

// NewMomentumSignalRepository uses the ReadOnlyDB connection by default.
func NewMomentumSignalRepository() *MomentumSignalRepository {
	logger.WithField("component", "MomentumSignalRepository").
		Info("Creating new MomentumSignalRepository with ReadOnlyDB")

	return &MomentumSignalRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *MomentumSignalRepository) WithDB(db *gorm.DB) *MomentumSignalRepository {
	return &MomentumSignalRepository{db: db}
}

// FindByID returns (nil, nil) if not found.
func (r *MomentumSignalRepository) FindByID(
	ctx context.Context,
	id uint,
) (*externalmodel.MomentumSignal, error) {

	var row externalmodel.MomentumSignal
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // not found is not an error
		}

		logger.WithFields(map[string]interface{}{
			"repo": "MomentumSignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch momentum signal by ID")

		return nil, err
	}
	return &row, nil
}

// FindBetween returns the signals detected in (from, to], oldest first.
// Backtests replay windows with it.
func (r *MomentumSignalRepository) FindBetween(
	ctx context.Context,
	from, to time.Time,
) ([]externalmodel.MomentumSignal, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "MomentumSignalRepository",
		"op":   "FindBetween",
		"from": from.Format(time.RFC3339),
		"to":   to.Format(time.RFC3339),
	}).Debug("Fetching momentum signals in window")

	var rows []externalmodel.MomentumSignal

	err := r.db.WithContext(ctx).
		Where("detected_at > ? AND detected_at <= ?", from, to).
		Order("detected_at ASC, id ASC").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "MomentumSignalRepository",
			"op":   "FindBetween",
		}).WithError(err).Error("Failed to fetch momentum signals in window")

		return nil, err
	}
	return rows, nil
}

// FindAfterID fetches signals with ID greater than lastID, oldest first.
// Live polling advances lastID with it.
func (r *MomentumSignalRepository) FindAfterID(
	ctx context.Context,
	lastID uint,
	limit int,
) ([]externalmodel.MomentumSignal, error) {

	if limit <= 0 {
		limit = 100 // default safety limit
	}

	var rows []externalmodel.MomentumSignal

	err := r.db.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "MomentumSignalRepository",
			"op":     "FindAfterID",
			"lastID": lastID,
			"limit":  limit,
		}).WithError(err).Error("Failed to fetch momentum signals after ID")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "MomentumSignalRepository",
		"op":          "FindAfterID",
		"lastID":      lastID,
		"limit":       limit,
		"rows_return": len(rows),
	}).Debug("Momentum signals after ID fetched")

	return rows, nil
}

// MaxID is the newest signal id, 0 when the table is empty. A live run
// starts polling from here so history is not replayed as fresh signals.
func (r *MomentumSignalRepository) MaxID(ctx context.Context) (uint, error) {
	var id int64
	err := r.db.WithContext(ctx).
		Model(&externalmodel.MomentumSignal{}).
		Select("COALESCE(MAX(id), 0)").
		Row().
		Scan(&id)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
