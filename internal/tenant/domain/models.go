package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tenant is an isolated carbon accounting customer. Every API key,
// ledger row and session hangs off exactly one tenant.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug"`
	IsActive  bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }
