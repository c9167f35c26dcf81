package dedup

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ProcessedEvent is the idempotence marker for a dispatched event. The
// unique reference key guarantees each logical emission is accounted at
// most once per tenant, no matter how often the queue redelivers it.
type ProcessedEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	TenantID      snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_processed_events_reference,priority:1"`
	EventType     string            `gorm:"type:text;not null;index"`
	ReferenceID   string            `gorm:"type:text;not null;uniqueIndex:ux_processed_events_reference,priority:2"`
	ReferenceType string            `gorm:"type:text;not null;uniqueIndex:ux_processed_events_reference,priority:3"`
	KgCO2Emitted  decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb"`
	ProcessedAt   time.Time         `gorm:"not null"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProcessedEvent) TableName() string { return "processed_events" }
