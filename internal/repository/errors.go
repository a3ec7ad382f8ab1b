package repository

import (
	"errors"
	"fmt"

	"github.com/kursadbilgin/inventory-notifier/internal/domain"
	"gorm.io/gorm"
)

// storageError maps driver failures onto the domain taxonomy.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
