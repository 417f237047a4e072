package database

import (
	"fmt"

	"wavely/internal/middleware"
	"wavely/internal/models"

	"gorm.io/gorm"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Follow{},
		&models.Wave{},
		&models.WaveLike{},
		&models.Notification{},
		&models.DeviceToken{},
	}
}

// indexes that AutoMigrate cannot express through struct tags.
var postMigrate = []string{
	"CREATE INDEX IF NOT EXISTS idx_waves_feed ON waves (created_at DESC, id DESC)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_inbox ON notifications (recipient_id, created_at DESC)",
}

// Migrate brings the schema up to date.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	for _, stmt := range postMigrate {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}
	middleware.Logger.Info("Database migration completed")
	return nil
}
