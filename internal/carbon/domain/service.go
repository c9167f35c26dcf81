package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTenant       = errors.New("carbon: invalid tenant")
	ErrInvalidAmount       = errors.New("carbon: amount must be positive")
	ErrInvalidReference    = errors.New("carbon: reference id and type are required")
	ErrInsufficientBalance = errors.New("carbon: offset exceeds current balance")
)

// RecordOutcome reports what an emission dispatch did to the ledger.
type RecordOutcome struct {
	Recorded      bool
	Duplicate     bool
	TransactionID snowflake.ID
	BalanceKg     decimal.Decimal
}

// OffsetInput describes a carbon offset purchase applied to a balance.
type OffsetInput struct {
	AmountKg      decimal.Decimal
	Provider      string
	CertificateID string
	PricePerKg    decimal.Decimal
	Currency      string
	Notes         string
}

// BalanceSummary is the read model returned by the balance endpoint.
type BalanceSummary struct {
	TenantID          snowflake.ID    `json:"tenant_id"`
	TotalEmissionsKg  decimal.Decimal `json:"total_emissions_kg"`
	TotalOffsetsKg    decimal.Decimal `json:"total_offsets_kg"`
	BalanceKg         decimal.Decimal `json:"balance_kg"`
	TransactionCount  int64           `json:"transaction_count"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	Type      TransactionType
	EventType string
	Since     time.Time
	Until     time.Time
	Limit     int
}

type Service interface {
	// RecordEmission applies a processed event to the tenant ledger
	// exactly once. Redelivery of an already-recorded reference is a
	// no-op reported through the outcome, not an error.
	RecordEmission(ctx context.Context, tenantID snowflake.ID, eventType string, result processor.Result) (RecordOutcome, error)
	RecordOffset(ctx context.Context, tenantID snowflake.ID, input OffsetInput) (*CarbonTransaction, error)
	Summary(ctx context.Context, tenantID snowflake.ID) (*BalanceSummary, error)
	ListTransactions(ctx context.Context, tenantID snowflake.ID, filter TransactionFilter) ([]CarbonTransaction, error)
}
