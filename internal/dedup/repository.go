package dedup

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertTx writes the idempotence marker inside the caller's
// transaction. It returns false when a marker with the same reference
// already exists, which is the duplicate-delivery signal.
func (r *Repository) InsertTx(ctx context.Context, tx *gorm.DB, marker *ProcessedEvent) (bool, error) {
	if marker.ProcessedAt.IsZero() {
		marker.ProcessedAt = time.Now().UTC()
	}
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO processed_events (
			id, tenant_id, event_type, reference_id, reference_type,
			kg_co2_emitted, metadata, processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, reference_id, reference_type) DO NOTHING`,
		marker.ID,
		marker.TenantID,
		marker.EventType,
		marker.ReferenceID,
		marker.ReferenceType,
		marker.KgCO2Emitted,
		marker.Metadata,
		marker.ProcessedAt,
		marker.ProcessedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByReference returns the existing marker for the reference key, or
// nil when the event has not been processed yet.
func (r *Repository) FindByReference(ctx context.Context, tenantID snowflake.ID, referenceID, referenceType string) (*ProcessedEvent, error) {
	var marker ProcessedEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reference_id = ? AND reference_type = ?", tenantID, referenceID, referenceType).
		First(&marker).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &marker, nil
}

// ListByTenant returns the most recent markers for a tenant.
func (r *Repository) ListByTenant(ctx context.Context, tenantID snowflake.ID, eventType string, limit int) ([]ProcessedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	var markers []ProcessedEvent
	if err := query.Order("processed_at DESC, id DESC").Limit(limit).Find(&markers).Error; err != nil {
		return nil, err
	}
	return markers, nil
}
