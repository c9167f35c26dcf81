package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType classifies ledger postings.
type TransactionType string

const (
	TransactionTypeEmission TransactionType = "emission"
	TransactionTypeOffset   TransactionType = "offset"
)

// CarbonBalance is the single running account per tenant.
// TotalEmissionsKg only ever grows; offsets reduce BalanceKg but never
// the emissions total.
type CarbonBalance struct {
	ID                snowflake.ID    `gorm:"primaryKey"`
	TenantID          snowflake.ID    `gorm:"not null;uniqueIndex:ux_carbon_balances_tenant"`
	TotalEmissionsKg  decimal.Decimal `gorm:"type:numeric(24,6);not null;default:0"`
	TotalOffsetsKg    decimal.Decimal `gorm:"type:numeric(24,6);not null;default:0"`
	BalanceKg         decimal.Decimal `gorm:"type:numeric(24,6);not null;default:0"`
	TransactionCount  int64           `gorm:"not null;default:0"`
	LastTransactionAt *time.Time
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CarbonBalance) TableName() string { return "carbon_balances" }

// CarbonTransaction is the append-only ledger line. Emission amounts
// are positive, offset amounts negative, and balance_after always
// equals balance_before plus amount.
type CarbonTransaction struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	TenantID        snowflake.ID      `gorm:"not null;index:ix_carbon_transactions_tenant_created,priority:1"`
	Type            TransactionType   `gorm:"type:text;not null;index"`
	EventType       string            `gorm:"type:text;index"`
	AmountKg        decimal.Decimal   `gorm:"type:numeric(24,6);not null"`
	BalanceBeforeKg decimal.Decimal   `gorm:"type:numeric(24,6);not null"`
	BalanceAfterKg  decimal.Decimal   `gorm:"type:numeric(24,6);not null"`
	ReferenceID     string            `gorm:"type:text;not null"`
	ReferenceType   string            `gorm:"type:text;not null"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_carbon_transactions_tenant_created,priority:2"`
}

// TableName sets the database table name.
func (CarbonTransaction) TableName() string { return "carbon_transactions" }
