package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/carbon/domain"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindBalanceForUpdate locks the tenant balance row for the duration of
// the caller's transaction. Returns nil when the tenant has no balance
// row yet.
func (r *Repository) FindBalanceForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (*domain.CarbonBalance, error) {
	var balance domain.CarbonBalance
	lockStart := time.Now()
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&balance).Error
	obsmetrics.Pipeline().ObserveLockWait(obsmetrics.LockResourceCarbonBalance, time.Since(lockStart))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// CreateBalanceTx seeds the tenant balance row. The insert is
// idempotent on the tenant unique index, so racing first events for a
// new tenant never abort each other's transaction.
func (r *Repository) CreateBalanceTx(ctx context.Context, tx *gorm.DB, balance *domain.CarbonBalance) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoNothing: true,
		}).
		Create(balance).Error
}

func (r *Repository) UpdateBalanceTx(ctx context.Context, tx *gorm.DB, balance *domain.CarbonBalance) error {
	return tx.WithContext(ctx).
		Model(&domain.CarbonBalance{}).
		Where("id = ?", balance.ID).
		Updates(map[string]any{
			"total_emissions_kg":  balance.TotalEmissionsKg,
			"total_offsets_kg":    balance.TotalOffsetsKg,
			"balance_kg":          balance.BalanceKg,
			"transaction_count":   balance.TransactionCount,
			"last_transaction_at": balance.LastTransactionAt,
			"updated_at":          balance.UpdatedAt,
		}).Error
}

func (r *Repository) InsertTransactionTx(ctx context.Context, tx *gorm.DB, txn *domain.CarbonTransaction) error {
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *Repository) GetBalance(ctx context.Context, tenantID snowflake.ID) (*domain.CarbonBalance, error) {
	var balance domain.CarbonBalance
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&balance).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *Repository) ListTransactions(ctx context.Context, tenantID snowflake.ID, filter domain.TransactionFilter) ([]domain.CarbonTransaction, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at < ?", filter.Until)
	}

	var transactions []domain.CarbonTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
