package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/carbon/domain"
	"github.com/evergrid/carbonledger/internal/carbon/repository"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/dedup"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  *repository.Repository
	Dedup *dedup.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  *repository.Repository
	dedup *dedup.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("carbon.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		dedup: p.Dedup,
	}
}

// RecordEmission writes the idempotence marker, the balance update and
// the ledger transaction in a single database transaction. Either all
// three land or none do, so a crash mid-dispatch never leaves a marker
// without its ledger entry.
func (s *Service) RecordEmission(ctx context.Context, tenantID snowflake.ID, eventType string, result processor.Result) (domain.RecordOutcome, error) {
	if tenantID == 0 {
		return domain.RecordOutcome{}, domain.ErrInvalidTenant
	}
	referenceID := strings.TrimSpace(result.ReferenceID)
	referenceType := strings.TrimSpace(result.ReferenceType)
	if referenceID == "" || referenceType == "" {
		return domain.RecordOutcome{}, domain.ErrInvalidReference
	}
	if result.KgCO2Emitted.IsNegative() {
		return domain.RecordOutcome{}, domain.ErrInvalidAmount
	}

	outcome := domain.RecordOutcome{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		inserted, err := s.dedup.InsertTx(ctx, tx, &dedup.ProcessedEvent{
			ID:            s.genID.Generate(),
			TenantID:      tenantID,
			EventType:     eventType,
			ReferenceID:   referenceID,
			ReferenceType: referenceType,
			KgCO2Emitted:  result.KgCO2Emitted,
			Metadata:      datatypes.JSONMap(result.Metadata),
			ProcessedAt:   now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome.Duplicate = true
			return nil
		}

		balance, err := s.lockOrCreateBalance(ctx, tx, tenantID, now)
		if err != nil {
			return err
		}

		balanceBefore := balance.BalanceKg
		balance.TotalEmissionsKg = balance.TotalEmissionsKg.Add(result.KgCO2Emitted)
		balance.BalanceKg = balance.BalanceKg.Add(result.KgCO2Emitted)
		balance.TransactionCount++
		balance.LastTransactionAt = &now
		balance.UpdatedAt = now
		if err := s.repo.UpdateBalanceTx(ctx, tx, balance); err != nil {
			return err
		}

		txn := &domain.CarbonTransaction{
			ID:              s.genID.Generate(),
			TenantID:        tenantID,
			Type:            domain.TransactionTypeEmission,
			EventType:       eventType,
			AmountKg:        result.KgCO2Emitted,
			BalanceBeforeKg: balanceBefore,
			BalanceAfterKg:  balance.BalanceKg,
			ReferenceID:     referenceID,
			ReferenceType:   referenceType,
			Metadata:        datatypes.JSONMap(result.Metadata),
			CreatedAt:       now,
		}
		if err := s.repo.InsertTransactionTx(ctx, tx, txn); err != nil {
			return err
		}

		outcome.Recorded = true
		outcome.TransactionID = txn.ID
		outcome.BalanceKg = balance.BalanceKg
		return nil
	})
	if err != nil {
		return domain.RecordOutcome{}, err
	}

	if outcome.Recorded {
		grams, _ := result.KgCO2Emitted.Mul(decimal.NewFromInt(1000)).Float64()
		obsmetrics.Pipeline().AddEmissionGrams(eventType, grams)
	}
	return outcome, nil
}

func (s *Service) RecordOffset(ctx context.Context, tenantID snowflake.ID, input domain.OffsetInput) (*domain.CarbonTransaction, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if !input.AmountKg.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var txn *domain.CarbonTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		balance, err := s.repo.FindBalanceForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if balance == nil || input.AmountKg.GreaterThan(balance.BalanceKg) {
			return domain.ErrInsufficientBalance
		}

		balanceBefore := balance.BalanceKg
		balance.TotalOffsetsKg = balance.TotalOffsetsKg.Add(input.AmountKg)
		balance.BalanceKg = balance.BalanceKg.Sub(input.AmountKg)
		balance.TransactionCount++
		balance.LastTransactionAt = &now
		balance.UpdatedAt = now
		if err := s.repo.UpdateBalanceTx(ctx, tx, balance); err != nil {
			return err
		}

		id := s.genID.Generate()
		referenceID := strings.TrimSpace(input.CertificateID)
		if referenceID == "" {
			referenceID = fmt.Sprintf("offset_%s", id)
		}

		metadata := datatypes.JSONMap{
			"provider":       input.Provider,
			"certificate_id": input.CertificateID,
		}
		if input.PricePerKg.IsPositive() {
			metadata["price_per_kg"] = input.PricePerKg.String()
			metadata["total_cost"] = input.PricePerKg.Mul(input.AmountKg).String()
			metadata["currency"] = input.Currency
		}
		if input.Notes != "" {
			metadata["notes"] = input.Notes
		}

		txn = &domain.CarbonTransaction{
			ID:              id,
			TenantID:        tenantID,
			Type:            domain.TransactionTypeOffset,
			AmountKg:        input.AmountKg.Neg(),
			BalanceBeforeKg: balanceBefore,
			BalanceAfterKg:  balance.BalanceKg,
			ReferenceID:     referenceID,
			ReferenceType:   "carbon_offset",
			Metadata:        metadata,
			CreatedAt:       now,
		}
		return s.repo.InsertTransactionTx(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) Summary(ctx context.Context, tenantID snowflake.ID) (*domain.BalanceSummary, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	balance, err := s.repo.GetBalance(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &domain.BalanceSummary{
			TenantID:         tenantID,
			TotalEmissionsKg: decimal.Zero,
			TotalOffsetsKg:   decimal.Zero,
			BalanceKg:        decimal.Zero,
		}, nil
	}
	return &domain.BalanceSummary{
		TenantID:          balance.TenantID,
		TotalEmissionsKg:  balance.TotalEmissionsKg,
		TotalOffsetsKg:    balance.TotalOffsetsKg,
		BalanceKg:         balance.BalanceKg,
		TransactionCount:  balance.TransactionCount,
		LastTransactionAt: balance.LastTransactionAt,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, tenantID snowflake.ID, filter domain.TransactionFilter) ([]domain.CarbonTransaction, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListTransactions(ctx, tenantID, filter)
}

func (s *Service) lockOrCreateBalance(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, now time.Time) (*domain.CarbonBalance, error) {
	balance, err := s.repo.FindBalanceForUpdate(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}

	seed := &domain.CarbonBalance{
		ID:               s.genID.Generate(),
		TenantID:         tenantID,
		TotalEmissionsKg: decimal.Zero,
		TotalOffsetsKg:   decimal.Zero,
		BalanceKg:        decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateBalanceTx(ctx, tx, seed); err != nil {
		return nil, err
	}

	// Re-read under lock: a concurrent first event for this tenant may
	// have won the seed insert.
	balance, err = s.repo.FindBalanceForUpdate(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return balance, nil
}
