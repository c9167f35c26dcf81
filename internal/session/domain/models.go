package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SessionStatus is the lifecycle state of a tracked visitor session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusInactive   SessionStatus = "inactive"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusClosed     SessionStatus = "closed"
)

var (
	ErrInvalidTenant  = errors.New("session: invalid tenant")
	ErrInvalidSession = errors.New("session: session id is required")
)

// ActiveSession aggregates per-session emissions as events stream in.
// LastEventAt is monotonic: a late event can raise it but an out of
// order one never lowers it.
type ActiveSession struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	TenantID        snowflake.ID      `gorm:"not null;uniqueIndex:ux_sessions_tenant_session,priority:1"`
	SessionID       string            `gorm:"type:text;not null;uniqueIndex:ux_sessions_tenant_session,priority:2"`
	Status          SessionStatus     `gorm:"type:text;not null;index"`
	FirstEventAt    time.Time         `gorm:"not null"`
	LastEventAt     time.Time         `gorm:"not null;index"`
	EventCount      int64             `gorm:"not null;default:0"`
	TotalEmissionsG decimal.Decimal   `gorm:"type:numeric(24,6);not null;default:0"`
	Breakdown       datatypes.JSONMap `gorm:"type:jsonb"`
	// FirstConversionAt is set once, by the first conversion event the
	// session sees.
	FirstConversionAt *time.Time
	LastProcessedAt   *time.Time
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ActiveSession) TableName() string { return "active_sessions" }

// TrackInput is one event's contribution to a session.
type TrackInput struct {
	SessionID      string
	EventType      string
	EmissionsGrams decimal.Decimal
	EventAt        time.Time
	Conversion     bool
}

type Service interface {
	// Track folds one event into its session, creating or reopening
	// the session as needed.
	Track(ctx context.Context, tenantID snowflake.ID, input TrackInput) error
	// SweepIdle moves idle sessions to inactive and inactive sessions
	// past the grace period to closed. Returns how many rows changed.
	SweepIdle(ctx context.Context, batchSize int) (int, error)
	Get(ctx context.Context, tenantID snowflake.ID, sessionID string) (*ActiveSession, error)
	List(ctx context.Context, tenantID snowflake.ID, status SessionStatus, limit int) ([]ActiveSession, error)
}
