package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"momentumengine/src/database"
	"momentumengine/src/model"
)

// ExceptionRepository handles persistence of engine exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service":    exc.Service,
		"module":     exc.Module,
		"method":     exc.Method,
		"instrument": exc.Instrument,
		"level":      exc.Level,
	}).Warn("Persisting engine exception")

	return r.db.WithContext(ctx).Create(exc).Error
}
