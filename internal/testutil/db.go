package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"github.com/kursadbilgin/inventory-notifier/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with all migrations
// applied. The pool is pinned to one connection so the database lives as
// long as the test and concurrent callers serialize the way row locks would.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("closing test database: %v", err)
		}
	})

	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t *testing.T, db *gorm.DB, username string, status domain.UserStatus) int64 {
	t.Helper()

	u := &domain.User{
		Username:    username,
		DisplayName: username,
		Status:      status,
	}
	if err := repository.NewGormUserRepo(db).Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %q: %v", username, err)
	}
	return u.ID
}
