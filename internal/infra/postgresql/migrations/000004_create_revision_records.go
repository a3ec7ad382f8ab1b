package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"gorm.io/gorm"
)

func createRevisionRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_revision_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RevisionRecordModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_revisions_entity ON revision_records (entity_type, entity_id, id DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RevisionRecordModel{})
		},
	}
}
