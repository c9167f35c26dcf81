package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores hashed ingestion credentials scoped to a tenant.
type APIKey struct {
	ID               snowflake.ID   `gorm:"primaryKey"`
	TenantID         snowflake.ID   `gorm:"column:tenant_id;not null;uniqueIndex:ux_api_keys_tenant_key_id,priority:1"`
	KeyID            string         `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_api_keys_tenant_key_id,priority:2"`
	Name             string         `gorm:"type:text;not null"`
	Scopes           pq.StringArray `gorm:"type:text[];not null"`
	KeyHash          string         `gorm:"column:key_hash;type:text;not null;index:ix_api_keys_key_hash"`
	IsActive         bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt       *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt        *time.Time     `gorm:"column:expires_at"`
	RotatedFromKeyID *string        `gorm:"column:rotated_from_key_id;type:text"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// HasScope reports whether the key carries the given scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
