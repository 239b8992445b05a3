package snapshots

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/ledger/models"
)

// Store persists balance checkpoints, one per account. Snapshots are pure
// caches: losing one only raises the cost of the next aggregate load.
type Store interface {
	// Latest returns the account's snapshot, or nil when none exists.
	Latest(ctx context.Context, accountID string) (*models.AccountSnapshot, error)

	// Save upserts the account's snapshot. Concurrent saves for the same
	// account are last-writer-wins; a stale snapshot is harmless.
	Save(ctx context.Context, snapshot *models.AccountSnapshot) error
}

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM snapshot store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Latest returns the account's snapshot, or nil when none exists.
func (s *GormStore) Latest(ctx context.Context, accountID string) (*models.AccountSnapshot, error) {
	var snapshot models.AccountSnapshot
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load snapshot")
	}
	return &snapshot, nil
}

// Save upserts the account's snapshot.
func (s *GormStore) Save(ctx context.Context, snapshot *models.AccountSnapshot) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "snapshot_date", "updated_at"}),
		}).
		Create(snapshot).Error
	if err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}
	return nil
}
