package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"gorm.io/gorm"
)

// The users table is owned by the inventory's account module. Creating it
// here only matters for standalone deployments and tests; AutoMigrate leaves
// an existing table alone apart from missing columns.
func createUsersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.UserModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_users_status ON users (status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_users_status`).Error
		},
	}
}
