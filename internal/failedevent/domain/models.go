package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// FailedEventStatus is the retry lifecycle state.
type FailedEventStatus string

const (
	FailedEventStatusPending    FailedEventStatus = "pending"
	FailedEventStatusProcessing FailedEventStatus = "processing"
	FailedEventStatusResolved   FailedEventStatus = "resolved"
	FailedEventStatusAbandoned  FailedEventStatus = "abandoned"
)

var (
	ErrInvalidTenant  = errors.New("failedevent: invalid tenant")
	ErrInvalidPayload = errors.New("failedevent: payload is required")
)

// FailedEvent preserves an event whose dispatch failed, with enough
// context to replay it. Nothing is dropped: an event either lands in
// the ledger or lands here.
type FailedEvent struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	TenantID          snowflake.ID      `gorm:"not null;index"`
	EventType         string            `gorm:"type:text;not null;index"`
	Payload           datatypes.JSON    `gorm:"type:jsonb;not null"`
	ErrorMessage      string            `gorm:"type:text;not null"`
	ErrorTrace        string            `gorm:"type:text"`
	RetryCount        int               `gorm:"not null;default:0"`
	MaxRetries        int               `gorm:"not null;default:3"`
	Status            FailedEventStatus `gorm:"type:text;not null;index:ix_failed_events_status_failed_at,priority:1"`
	OriginalMessageID string            `gorm:"type:text"`
	DLQMessageID      string            `gorm:"type:text"`
	FailedAt          time.Time         `gorm:"not null;index:ix_failed_events_status_failed_at,priority:2"`
	LastRetryAt       *time.Time
	ResolvedAt        *time.Time
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FailedEvent) TableName() string { return "failed_events" }

// CaptureInput records one failed dispatch.
type CaptureInput struct {
	TenantID          snowflake.ID
	EventType         string
	Payload           []byte
	ErrorMessage      string
	ErrorTrace        string
	OriginalMessageID string
	DLQMessageID      string
}

type Service interface {
	Capture(ctx context.Context, input CaptureInput) (*FailedEvent, error)
	// ClaimForRetry atomically selects due pending rows, marks them
	// processing and bumps their retry count.
	ClaimForRetry(ctx context.Context, batchSize int) ([]FailedEvent, error)
	MarkResolved(ctx context.Context, id snowflake.ID) error
	// MarkRetryFailed returns the row to pending, or abandons it once
	// the retry budget is spent.
	MarkRetryFailed(ctx context.Context, id snowflake.ID, errorMessage string) error
	List(ctx context.Context, tenantID snowflake.ID, status FailedEventStatus, limit int) ([]FailedEvent, error)
}
