package testutil

import (
	"testing"

	"creditchat/backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB returns an isolated in-memory database migrated with the full schema.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Model{},
		&models.Bot{},
		&models.Session{},
		&models.ChatTurn{},
		&models.CreditEntry{},
	)
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
