package repository

import (
	"context"

	"gorm.io/gorm"

	"momentumengine/src/database"
	"momentumengine/src/model"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{db: database.MainDB}
}

func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(ctx context.Context, snap *model.PortfolioSnapshot) error {
	return r.db.WithContext(ctx).Create(snap).Error
}

func (r *SnapshotRepository) CreateBatch(ctx context.Context, snaps []model.PortfolioSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&snaps, 500).Error
}

func (r *SnapshotRepository) FindByRun(ctx context.Context, runID string) ([]model.PortfolioSnapshot, error) {
	var rows []model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("taken_at ASC").
		Find(&rows).Error
	return rows, err
}
