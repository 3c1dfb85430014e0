package db

import (
	types "github.com/calegray/cardflow-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.CardContext{},
		&types.ResponseRecord{},
	)
}
