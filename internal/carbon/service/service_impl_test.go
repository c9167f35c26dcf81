package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/carbon/domain"
	"github.com/evergrid/carbonledger/internal/carbon/repository"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/dedup"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// SQLite does not speak FOR UPDATE; drop the locking clause before
	// the SQL is built.
	stripLocks := func(d *gorm.DB) {
		delete(d.Statement.Clauses, "FOR UPDATE")
		if sql := d.Statement.SQL.String(); strings.Contains(sql, "FOR UPDATE") {
			rewritten := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			rewritten = strings.ReplaceAll(rewritten, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(rewritten)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", stripLocks)
	db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", stripLocks)

	require.NoError(t, db.AutoMigrate(
		&dedup.ProcessedEvent{},
		&domain.CarbonBalance{},
		&domain.CarbonTransaction{},
	))
	return db
}

func newTestService(t *testing.T, name string) (domain.Service, *gorm.DB, *clock.FakeClock, snowflake.ID) {
	t.Helper()
	db := newTestDB(t, name)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.NewRepository(db),
		Dedup: dedup.NewRepository(db),
	})
	return svc, db, fake, node.Generate()
}

func emissionResult(referenceID, amount string) processor.Result {
	return processor.Result{
		KgCO2Emitted:  decimal.RequireFromString(amount),
		ReferenceID:   referenceID,
		ReferenceType: "internet_web_page_view",
		Metadata:      map[string]any{"page_url": "https://example.com"},
	}
}

func TestRecordEmission_FirstDeliveryRecords(t *testing.T) {
	svc, db, _, tenantID := newTestService(t, "carbon_record")
	ctx := context.Background()

	outcome, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "0.5"))
	require.NoError(t, err)
	assert.True(t, outcome.Recorded)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, "0.5", outcome.BalanceKg.String())

	var balance domain.CarbonBalance
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&balance).Error)
	assert.Equal(t, "0.5", balance.TotalEmissionsKg.String())
	assert.Equal(t, int64(1), balance.TransactionCount)
	require.NotNil(t, balance.LastTransactionAt)
}

func TestRecordEmission_DuplicateDeliveryIsNoOp(t *testing.T) {
	svc, db, _, tenantID := newTestService(t, "carbon_duplicate")
	ctx := context.Background()

	first, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "0.5"))
	require.NoError(t, err)
	require.True(t, first.Recorded)

	second, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "0.5"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Recorded)

	var balance domain.CarbonBalance
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&balance).Error)
	assert.Equal(t, "0.5", balance.BalanceKg.String())
	assert.Equal(t, int64(1), balance.TransactionCount)

	var txCount int64
	require.NoError(t, db.Model(&domain.CarbonTransaction{}).Where("tenant_id = ?", tenantID).Count(&txCount).Error)
	assert.Equal(t, int64(1), txCount)
}

func TestRecordEmission_LedgerChainBalances(t *testing.T) {
	svc, db, _, tenantID := newTestService(t, "carbon_chain")
	ctx := context.Background()

	_, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "0.25"))
	require.NoError(t, err)
	_, err = svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-2", "0.75"))
	require.NoError(t, err)

	var txns []domain.CarbonTransaction
	require.NoError(t, db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&txns).Error)
	require.Len(t, txns, 2)

	for _, txn := range txns {
		assert.True(t, txn.BalanceAfterKg.Equal(txn.BalanceBeforeKg.Add(txn.AmountKg)), txn.ReferenceID)
	}
	assert.True(t, txns[1].BalanceBeforeKg.Equal(txns[0].BalanceAfterKg))
	assert.Equal(t, "1", txns[1].BalanceAfterKg.String())
}

func TestRecordEmission_Validation(t *testing.T) {
	svc, _, _, tenantID := newTestService(t, "carbon_validation")
	ctx := context.Background()

	_, err := svc.RecordEmission(ctx, 0, "internet_web", emissionResult("evt-1", "0.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	missingRef := emissionResult("", "0.5")
	_, err = svc.RecordEmission(ctx, tenantID, "internet_web", missingRef)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	negative := emissionResult("evt-neg", "-1")
	_, err = svc.RecordEmission(ctx, tenantID, "internet_web", negative)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestRecordOffset_ReducesBalanceNotEmissions(t *testing.T) {
	svc, db, _, tenantID := newTestService(t, "carbon_offset")
	ctx := context.Background()

	_, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "10"))
	require.NoError(t, err)

	txn, err := svc.RecordOffset(ctx, tenantID, domain.OffsetInput{
		AmountKg:      decimal.RequireFromString("4"),
		Provider:      "goldstandard",
		CertificateID: "GS-123",
		PricePerKg:    decimal.RequireFromString("0.02"),
		Currency:      "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeOffset, txn.Type)
	assert.Equal(t, "-4", txn.AmountKg.String())
	assert.Equal(t, "GS-123", txn.ReferenceID)
	assert.Equal(t, "carbon_offset", txn.ReferenceType)
	assert.Equal(t, "0.08", txn.Metadata["total_cost"])

	var balance domain.CarbonBalance
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&balance).Error)
	assert.Equal(t, "6", balance.BalanceKg.String())
	assert.Equal(t, "10", balance.TotalEmissionsKg.String())
	assert.Equal(t, "4", balance.TotalOffsetsKg.String())
}

func TestRecordOffset_InsufficientBalance(t *testing.T) {
	svc, _, _, tenantID := newTestService(t, "carbon_offset_short")
	ctx := context.Background()

	// No balance row yet.
	_, err := svc.RecordOffset(ctx, tenantID, domain.OffsetInput{AmountKg: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "2"))
	require.NoError(t, err)

	_, err = svc.RecordOffset(ctx, tenantID, domain.OffsetInput{AmountKg: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.RecordOffset(ctx, tenantID, domain.OffsetInput{AmountKg: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreateBalanceTx_SeedRaceIsNoOp(t *testing.T) {
	db := newTestDB(t, "carbon_seed_race")
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.NewRepository(db)
	ctx := context.Background()
	tenantID := node.Generate()

	seed := func() *domain.CarbonBalance {
		return &domain.CarbonBalance{
			ID:               node.Generate(),
			TenantID:         tenantID,
			TotalEmissionsKg: decimal.Zero,
			TotalOffsetsKg:   decimal.Zero,
			BalanceKg:        decimal.Zero,
		}
	}

	require.NoError(t, repo.CreateBalanceTx(ctx, db, seed()))
	// The losing side of a first-event race must not abort its unit.
	require.NoError(t, repo.CreateBalanceTx(ctx, db, seed()))

	var count int64
	require.NoError(t, db.Model(&domain.CarbonBalance{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordEmission_SeededBalanceRowIsReused(t *testing.T) {
	svc, db, _, tenantID := newTestService(t, "carbon_seeded")
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	require.NoError(t, db.Create(&domain.CarbonBalance{
		ID:               node.Generate(),
		TenantID:         tenantID,
		TotalEmissionsKg: decimal.Zero,
		TotalOffsetsKg:   decimal.Zero,
		BalanceKg:        decimal.Zero,
	}).Error)

	outcome, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "0.5"))
	require.NoError(t, err)
	assert.True(t, outcome.Recorded)

	var count int64
	require.NoError(t, db.Model(&domain.CarbonBalance{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSummary_EmptyTenant(t *testing.T) {
	svc, _, _, tenantID := newTestService(t, "carbon_summary")

	summary, err := svc.Summary(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, summary.TenantID)
	assert.True(t, summary.BalanceKg.IsZero())
	assert.Equal(t, int64(0), summary.TransactionCount)
	assert.Nil(t, summary.LastTransactionAt)
}

func TestListTransactions_FilterByType(t *testing.T) {
	svc, _, _, tenantID := newTestService(t, "carbon_list")
	ctx := context.Background()

	_, err := svc.RecordEmission(ctx, tenantID, "internet_web", emissionResult("evt-1", "5"))
	require.NoError(t, err)
	_, err = svc.RecordOffset(ctx, tenantID, domain.OffsetInput{AmountKg: decimal.NewFromInt(1)})
	require.NoError(t, err)

	offsets, err := svc.ListTransactions(ctx, tenantID, domain.TransactionFilter{Type: domain.TransactionTypeOffset})
	require.NoError(t, err)
	require.Len(t, offsets, 1)
	assert.Equal(t, domain.TransactionTypeOffset, offsets[0].Type)

	all, err := svc.ListTransactions(ctx, tenantID, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
