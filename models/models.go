package models

import (
	"time"
)

// Event is an account event row. Rows are append-only; only Status and Error
// are updated in place, by the projection worker.
type Event struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID     string    `gorm:"index:idx_events_account_date,priority:1;not null" json:"account_id"`
	EventType     string    `gorm:"not null" json:"event_type"`
	Amount        *float64  `json:"amount"`
	EventDate     time.Time `gorm:"index:idx_events_account_date,priority:2;not null" json:"event_date"`
	Status        string    `gorm:"index;not null" json:"status"`
	Version       int64     `gorm:"not null" json:"version"`
	CorrelationID string    `gorm:"index;not null" json:"correlation_id"`
	CausationID   *string   `json:"causation_id"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	SchemaVersion string    `gorm:"not null" json:"schema_version"`
	Error         *string   `json:"error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccountStream holds the per-account optimistic-lock version counter. Every
// append must win a compare-and-swap on this row's Version.
type AccountStream struct {
	AccountID string    `gorm:"primaryKey" json:"account_id"`
	Version   int64     `gorm:"not null" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountSnapshot is a cached balance checkpoint. Deleting snapshots never
// changes a computed balance, only recomputation cost.
type AccountSnapshot struct {
	AccountID    string    `gorm:"primaryKey" json:"account_id"`
	Balance      float64   `gorm:"not null" json:"balance"`
	SnapshotDate time.Time `gorm:"not null" json:"snapshot_date"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Account is the read-model row kept eventually consistent with the event
// stream by the projection worker.
type Account struct {
	AccountID     string    `gorm:"primaryKey" json:"account_id"`
	Balance       float64   `gorm:"not null" json:"balance"`
	LastEventDate time.Time `json:"last_event_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
