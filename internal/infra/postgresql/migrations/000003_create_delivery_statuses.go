package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryStatusesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery_statuses",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryStatusModel{}); err != nil {
				return err
			}
			// feed/recent pages walk (user_id, notification_id); the badge
			// counters only touch the partial indexes.
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_user_notification ON delivery_statuses (user_id, notification_id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_unacked ON delivery_statuses (user_id) WHERE is_acknowledged = FALSE`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_unread ON delivery_statuses (user_id) WHERE is_read = FALSE`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryStatusModel{})
		},
	}
}
