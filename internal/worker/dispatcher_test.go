package worker

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	carbonrepo "github.com/evergrid/carbonledger/internal/carbon/repository"
	carbonservice "github.com/evergrid/carbonledger/internal/carbon/service"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/dedup"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	sessionservice "github.com/evergrid/carbonledger/internal/session/service"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newDispatcherHarness(t *testing.T, name string) (*Dispatcher, *gorm.DB, snowflake.ID) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

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
		&carbondomain.CarbonBalance{},
		&carbondomain.CarbonTransaction{},
		&sessiondomain.ActiveSession{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	carbonSvc := carbonservice.NewService(carbonservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  carbonrepo.NewRepository(db),
		Dedup: dedup.NewRepository(db),
	})
	sessionSvc := sessionservice.NewService(sessionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Cfg:   config.Config{},
	})
	registry := processor.NewDefaultRegistry(processor.Params{Log: log})

	return NewDispatcher(log, registry, carbonSvc, sessionSvc), db, node.Generate()
}

func webEnvelope(tenantID snowflake.ID, eventID string) queue.Envelope {
	payload := map[string]any{
		"event":      "page_view",
		"event_id":   eventID,
		"session_id": "s-1",
		"page_url":   "https://example.com",
	}
	raw, _ := json.Marshal(payload)
	return queue.Envelope{
		MessageID: "msg-" + eventID,
		TenantID:  tenantID.String(),
		EventType: processor.EventTypeInternetWeb,
		Payload:   raw,
		QueuedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_RecordsLedgerAndSession(t *testing.T) {
	dispatcher, db, tenantID := newDispatcherHarness(t, "dispatch_record")
	ctx := context.Background()

	outcome, err := dispatcher.Dispatch(ctx, webEnvelope(tenantID, "evt-1"))
	require.NoError(t, err)
	assert.True(t, outcome.Recorded)
	assert.True(t, outcome.KgCO2.IsPositive())

	var balance carbondomain.CarbonBalance
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&balance).Error)
	assert.True(t, balance.BalanceKg.Equal(outcome.KgCO2))

	var session sessiondomain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ? AND session_id = ?", tenantID, "s-1").First(&session).Error)
	assert.Equal(t, int64(1), session.EventCount)
	// Session totals are grams, the ledger is kilograms.
	assert.True(t, session.TotalEmissionsG.Equal(outcome.KgCO2.Mul(decimal.NewFromInt(1000))))
}

func TestDispatch_RedeliveryIsDuplicate(t *testing.T) {
	dispatcher, db, tenantID := newDispatcherHarness(t, "dispatch_duplicate")
	ctx := context.Background()

	first, err := dispatcher.Dispatch(ctx, webEnvelope(tenantID, "evt-1"))
	require.NoError(t, err)
	require.True(t, first.Recorded)

	second, err := dispatcher.Dispatch(ctx, webEnvelope(tenantID, "evt-1"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Recorded)

	// The duplicate must not touch the session either.
	var session sessiondomain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Equal(t, int64(1), session.EventCount)
}

func TestDispatch_InvalidTenant(t *testing.T) {
	dispatcher, _, tenantID := newDispatcherHarness(t, "dispatch_bad_tenant")

	envelope := webEnvelope(tenantID, "evt-1")
	envelope.TenantID = "not-a-number"

	_, err := dispatcher.Dispatch(context.Background(), envelope)
	assert.Error(t, err)
}

func TestDispatch_UnknownEventType(t *testing.T) {
	dispatcher, _, tenantID := newDispatcherHarness(t, "dispatch_unknown")

	envelope := webEnvelope(tenantID, "evt-1")
	envelope.EventType = "quantum_compute"

	_, err := dispatcher.Dispatch(context.Background(), envelope)
	assert.ErrorIs(t, err, processor.ErrNoProcessor)
}

func TestDispatch_ValidationFailureSurfaces(t *testing.T) {
	dispatcher, _, tenantID := newDispatcherHarness(t, "dispatch_invalid_payload")

	envelope := webEnvelope(tenantID, "evt-1")
	envelope.Payload = json.RawMessage(`{"session_id":"s-1"}`)

	_, err := dispatcher.Dispatch(context.Background(), envelope)
	assert.True(t, processor.IsValidationError(err))
}
