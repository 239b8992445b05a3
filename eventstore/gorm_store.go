package eventstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/ledger/domain"
	"example.com/backstage/services/ledger/models"
)

// GormEventStore implements EventStore on a relational database via GORM.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store.
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append commits a single event atomically.
func (s *GormEventStore) Append(ctx context.Context, event *domain.Event, expectedVersion int64) error {
	return s.AppendInTx(ctx, func(batch Batch) error {
		return batch.Append(event, expectedVersion)
	})
}

// AppendInTx runs fn against a batch backed by one database transaction.
func (s *GormEventStore) AppendInTx(ctx context.Context, fn func(batch Batch) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormBatch{tx: tx})
	})
}

type gormBatch struct {
	tx *gorm.DB
}

func (b *gormBatch) Append(event *domain.Event, expectedVersion int64) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	// Ordering check against the latest stored event. Events staged earlier
	// in this batch are already visible inside the transaction.
	var last models.Event
	err := b.tx.Where("account_id = ?", event.AccountID).
		Order("event_date DESC").
		Limit(1).
		Take(&last).Error
	switch {
	case err == nil:
		if !event.EventDate.After(last.EventDate) {
			return domain.ErrOutOfOrderEvent
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First event for the account.
	default:
		return errors.Wrap(err, "failed to read last event")
	}

	// Compare-and-swap on the per-account version counter.
	if err := b.bumpStreamVersion(event.AccountID, expectedVersion); err != nil {
		return err
	}

	row := models.Event{
		AccountID:     event.AccountID,
		EventType:     event.Type,
		Amount:        event.Amount,
		EventDate:     event.EventDate,
		Status:        string(domain.StatusPending),
		Version:       expectedVersion + 1,
		CorrelationID: event.Metadata.CorrelationID,
		CausationID:   event.Metadata.CausationID,
		UserID:        event.Metadata.UserID,
		SchemaVersion: string(event.Metadata.SchemaVersion),
	}
	if err := b.tx.Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to save event")
	}

	event.ID = row.ID
	event.Version = row.Version
	event.Status = domain.StatusPending

	log.Info().
		Str("accountID", event.AccountID).
		Str("eventType", event.Type).
		Int64("version", event.Version).
		Msg("Event appended")

	return nil
}

func (b *gormBatch) bumpStreamVersion(accountID string, expectedVersion int64) error {
	var stream models.AccountStream
	err := b.tx.Where("account_id = ?", accountID).Take(&stream).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if expectedVersion != 0 {
			return domain.ErrConcurrencyConflict
		}
		stream = models.AccountStream{AccountID: accountID, Version: 1}
		if err := b.tx.Create(&stream).Error; err != nil {
			// A concurrent writer created the stream row first.
			return domain.ErrConcurrencyConflict
		}
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to read account stream")
	}

	if stream.Version != expectedVersion {
		return domain.ErrConcurrencyConflict
	}

	res := b.tx.Model(&models.AccountStream{}).
		Where("account_id = ? AND version = ?", accountID, expectedVersion).
		Update("version", expectedVersion+1)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update account stream")
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrencyConflict
	}

	return nil
}

func validateEvent(event *domain.Event) error {
	if event.AccountID == "" {
		return errors.Wrap(domain.ErrInvalidEvent, "account id is empty")
	}
	if event.EventDate.IsZero() {
		return errors.Wrap(domain.ErrInvalidEvent, "event date is not set")
	}
	if event.Metadata.UserID == "" {
		return errors.Wrap(domain.ErrInvalidEvent, "metadata user id is empty")
	}
	if !domain.KnownSchemaVersion(event.Metadata.SchemaVersion) {
		return errors.Wrap(domain.ErrInvalidEvent, "unknown schema version")
	}
	return nil
}

// EventsAfter returns the account's events after since, ascending.
func (s *GormEventStore) EventsAfter(ctx context.Context, accountID string, since time.Time) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("account_id = ? AND event_date > ?", accountID, since).
		Order("event_date ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}
	return toDomainEvents(rows), nil
}

// AllEvents returns the account's full stream, ascending.
func (s *GormEventStore) AllEvents(ctx context.Context, accountID string) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("event_date ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}
	return toDomainEvents(rows), nil
}

// EventsByCorrelationID returns the events of one logical transaction.
func (s *GormEventStore) EventsByCorrelationID(ctx context.Context, correlationID string) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("event_date ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get events by correlation id")
	}
	return toDomainEvents(rows), nil
}

// EventsByUserID returns a user's events, most recent first.
func (s *GormEventStore) EventsByUserID(ctx context.Context, userID string) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("event_date DESC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get events by user id")
	}
	return toDomainEvents(rows), nil
}

// CountEventsAfter counts the account's events after since.
func (s *GormEventStore) CountEventsAfter(ctx context.Context, accountID string, since time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("account_id = ? AND event_date > ?", accountID, since).
		Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "failed to count events")
	}
	return count, nil
}

// EventByID returns the stored event, or nil when none exists.
func (s *GormEventStore) EventByID(ctx context.Context, eventID int64) (*domain.Event, error) {
	var row models.Event
	err := s.db.WithContext(ctx).Where("id = ?", eventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get event")
	}
	events := toDomainEvents([]models.Event{row})
	return &events[0], nil
}

// StreamVersion returns the account's current version counter.
func (s *GormEventStore) StreamVersion(ctx context.Context, accountID string) (int64, error) {
	var stream models.AccountStream
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&stream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read account stream")
	}
	return stream.Version, nil
}

// MarkStatus records the projection outcome of an event.
func (s *GormEventStore) MarkStatus(ctx context.Context, eventID int64, status domain.EventStatus, procErr string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"error":      nil,
		"updated_at": time.Now(),
	}
	if procErr != "" {
		updates["error"] = procErr
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", eventID).
		Updates(updates).Error; err != nil {
		return errors.Wrap(err, "failed to mark event status")
	}
	return nil
}

func toDomainEvents(rows []models.Event) []domain.Event {
	events := make([]domain.Event, len(rows))
	for i, row := range rows {
		events[i] = domain.Event{
			ID:        row.ID,
			AccountID: row.AccountID,
			Type:      row.EventType,
			Amount:    row.Amount,
			EventDate: row.EventDate,
			Status:    domain.EventStatus(row.Status),
			Error:     row.Error,
			Version:   row.Version,
			Metadata: domain.EventMetadata{
				CorrelationID: row.CorrelationID,
				CausationID:   row.CausationID,
				UserID:        row.UserID,
				SchemaVersion: domain.SchemaVersion(row.SchemaVersion),
			},
		}
	}
	return events
}
