package db

import (
	"tradeflow/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.StrategyAccount{},
		&models.OpenOrder{},
		&models.PendingOrder{},
		&models.Trade{},
		&models.Position{},
	)
}
