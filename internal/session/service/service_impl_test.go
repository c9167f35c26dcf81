package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/session/domain"
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

	require.NoError(t, db.AutoMigrate(&domain.ActiveSession{}))
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
		Cfg: config.Config{
			SessionIdleTimeout: 15 * time.Second,
			SessionCloseGrace:  5 * time.Second,
		},
	})
	return svc, db, fake, node.Generate()
}

func grams(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTrack_CreatesAndAggregates(t *testing.T) {
	svc, db, fake, tenantID := newTestService(t, "session_track")
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("100.5"),
		EventAt:        fake.Now(),
	}))
	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_ads",
		EmissionsGrams: grams("9.5"),
		EventAt:        fake.Now().Add(5 * time.Second),
	}))

	var session domain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ? AND session_id = ?", tenantID, "s-1").First(&session).Error)
	assert.Equal(t, domain.SessionStatusActive, session.Status)
	assert.Equal(t, int64(2), session.EventCount)
	assert.Equal(t, "110", session.TotalEmissionsG.String())
	assert.Equal(t, "100.5", session.Breakdown["internet_web"])
	assert.Equal(t, "9.5", session.Breakdown["internet_ads"])
}

func TestTrack_LastEventAtIsMonotonic(t *testing.T) {
	svc, db, fake, tenantID := newTestService(t, "session_monotonic")
	ctx := context.Background()
	start := fake.Now()

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        start,
	}))

	// An out of order event must not move last_event_at backwards.
	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        start.Add(-time.Minute),
	}))

	var session domain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Equal(t, int64(2), session.EventCount)
	assert.True(t, session.LastEventAt.Equal(start))
}

func TestSweepIdle_Lifecycle(t *testing.T) {
	svc, db, fake, tenantID := newTestService(t, "session_sweep")
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        fake.Now(),
	}))

	// Still fresh, nothing to demote.
	changed, err := svc.SweepIdle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	// Past the idle timeout the session goes inactive.
	fake.Advance(16 * time.Second)
	changed, err = svc.SweepIdle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	var session domain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Equal(t, domain.SessionStatusInactive, session.Status)
	assert.Nil(t, session.LastProcessedAt)

	// Past idle plus grace it closes and records the sweep time.
	fake.Advance(5 * time.Second)
	changed, err = svc.SweepIdle(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Equal(t, domain.SessionStatusClosed, session.Status)
	require.NotNil(t, session.LastProcessedAt)
}

func TestTrack_ReopensClosedSession(t *testing.T) {
	svc, db, fake, tenantID := newTestService(t, "session_reopen")
	ctx := context.Background()

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        fake.Now(),
	}))

	fake.Advance(30 * time.Second)
	_, err := svc.SweepIdle(ctx, 10)
	require.NoError(t, err)
	_, err = svc.SweepIdle(ctx, 10)
	require.NoError(t, err)

	var session domain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	require.Equal(t, domain.SessionStatusClosed, session.Status)

	// A late event reopens the same row instead of creating a sibling.
	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("2"),
		EventAt:        fake.Now(),
	}))

	var count int64
	require.NoError(t, db.Model(&domain.ActiveSession{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Equal(t, domain.SessionStatusActive, session.Status)
	assert.Equal(t, int64(2), session.EventCount)
}

func TestTrack_FirstConversionIsSetOnce(t *testing.T) {
	svc, db, fake, tenantID := newTestService(t, "session_conversion")
	ctx := context.Background()
	start := fake.Now()

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        start,
	}))

	var session domain.ActiveSession
	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	assert.Nil(t, session.FirstConversionAt)

	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        start.Add(10 * time.Second),
		Conversion:     true,
	}))

	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	require.NotNil(t, session.FirstConversionAt)
	first := *session.FirstConversionAt

	// A later conversion must not move the timestamp.
	require.NoError(t, svc.Track(ctx, tenantID, domain.TrackInput{
		SessionID:      "s-1",
		EventType:      "internet_web",
		EmissionsGrams: grams("1"),
		EventAt:        start.Add(20 * time.Second),
		Conversion:     true,
	}))

	require.NoError(t, db.Where("tenant_id = ?", tenantID).First(&session).Error)
	require.NotNil(t, session.FirstConversionAt)
	assert.True(t, session.FirstConversionAt.Equal(first))
}

func TestTrack_Validation(t *testing.T) {
	svc, _, fake, tenantID := newTestService(t, "session_validation")
	ctx := context.Background()

	err := svc.Track(ctx, 0, domain.TrackInput{SessionID: "s-1", EventAt: fake.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	err = svc.Track(ctx, tenantID, domain.TrackInput{SessionID: "  ", EventAt: fake.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}
