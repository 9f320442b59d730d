package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"momentumengine/src/externalmodel"
)

// ReadOnlyDB is the read-only connection used to read detector signals.
// The database user for this connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	db, err := Open(config.Driver, config.DatabaseURLReadOnly, config.GormLogLevel, true)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	// Check the table is really reachable.
	var count int64
	if err := db.Model(&externalmodel.MomentumSignal{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access momentum_signals: %w", err)
	}
	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] momentum_signals reachable")

	ReadOnlyDB = db
	return nil
}
