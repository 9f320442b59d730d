package backtest

import (
	"context"

	"momentumengine/src/model"
	"momentumengine/src/repository"
)

type RepositoryStore struct {
	Trades    *repository.TradeRepository
	Snapshots *repository.SnapshotRepository
}

func NewRepositoryStore() *RepositoryStore {
	return &RepositoryStore{
		Trades:    repository.NewTradeRepository(),
		Snapshots: repository.NewSnapshotRepository(),
	}
}

func (s *RepositoryStore) SaveRun(ctx context.Context, trades []model.TradeRecord, snapshots []model.PortfolioSnapshot) error {
	if err := s.Trades.CreateBatch(ctx, trades); err != nil {
		return err
	}
	return s.Snapshots.CreateBatch(ctx, snapshots)
}
