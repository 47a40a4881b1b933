package database

import (
	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Email uniqueness lives here as a unique index; concurrent registrations
// for the same address are arbitrated by the database, not the application.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.LoginToken{},
		&models.CacheEntry{},
	)
}
