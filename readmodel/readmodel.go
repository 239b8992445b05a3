package readmodel

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/ledger/models"
)

// AccountRepository is the read-model collaborator. The write side uses it
// only for the duplicate-account check and to enumerate active accounts; the
// projection worker owns all writes to it.
type AccountRepository interface {
	Exists(ctx context.Context, accountID string) (bool, error)
	FindByID(ctx context.Context, accountID string) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	FindAll(ctx context.Context) ([]models.Account, error)
}

// GormAccountRepository implements AccountRepository using GORM.
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GORM account repository.
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Exists reports whether a read-model row exists for the account.
func (r *GormAccountRepository) Exists(ctx context.Context, accountID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("account_id = ?", accountID).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "failed to check account existence")
	}
	return count > 0, nil
}

// FindByID returns the account row, or nil when none exists.
func (r *GormAccountRepository) FindByID(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load account")
	}
	return &account, nil
}

// Save upserts the account row.
func (r *GormAccountRepository) Save(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return errors.Wrap(err, "failed to save account")
	}
	return nil
}

// FindAll returns all read-model accounts.
func (r *GormAccountRepository) FindAll(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Order("account_id ASC").Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}
	return accounts, nil
}
