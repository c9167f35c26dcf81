package dedup

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ProcessedEvent{}))
	return db
}

func marker(node *snowflake.Node, tenantID snowflake.ID, referenceID string) *ProcessedEvent {
	return &ProcessedEvent{
		ID:            node.Generate(),
		TenantID:      tenantID,
		EventType:     "internet_web",
		ReferenceID:   referenceID,
		ReferenceType: "internet_web_page_view",
		KgCO2Emitted:  decimal.RequireFromString("0.1398"),
		Metadata:      datatypes.JSONMap{"page_url": "https://example.com"},
	}
}

func TestInsertTx_DuplicateReferenceIsNoOp(t *testing.T) {
	db := newTestDB(t, "dedup_duplicate")
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := NewRepository(db)
	tenantID := node.Generate()
	ctx := context.Background()

	inserted, err := repo.InsertTx(ctx, db, marker(node, tenantID, "evt-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same reference, fresh row ID: the marker must not double up.
	inserted, err = repo.InsertTx(ctx, db, marker(node, tenantID, "evt-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int64
	require.NoError(t, db.Model(&ProcessedEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInsertTx_ScopedByTenantAndReferenceType(t *testing.T) {
	db := newTestDB(t, "dedup_scope")
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := NewRepository(db)
	ctx := context.Background()

	tenantA := node.Generate()
	tenantB := node.Generate()

	inserted, err := repo.InsertTx(ctx, db, marker(node, tenantA, "evt-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same reference under another tenant is a distinct event.
	inserted, err = repo.InsertTx(ctx, db, marker(node, tenantB, "evt-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same reference ID but a different reference type is distinct too.
	other := marker(node, tenantA, "evt-1")
	other.ReferenceType = "internet_web_click"
	inserted, err = repo.InsertTx(ctx, db, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestFindByReference(t *testing.T) {
	db := newTestDB(t, "dedup_find")
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := node.Generate()

	_, err = repo.InsertTx(ctx, db, marker(node, tenantID, "evt-9"))
	require.NoError(t, err)

	found, err := repo.FindByReference(ctx, tenantID, "evt-9", "internet_web_page_view")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "0.1398", found.KgCO2Emitted.String())

	missing, err := repo.FindByReference(ctx, tenantID, "evt-10", "internet_web_page_view")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByTenant_FilterAndLimit(t *testing.T) {
	db := newTestDB(t, "dedup_list")
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := NewRepository(db)
	ctx := context.Background()
	tenantID := node.Generate()

	for i := 0; i < 3; i++ {
		m := marker(node, tenantID, "evt-list-"+string(rune('a'+i)))
		if i == 2 {
			m.EventType = "travel_emissions"
		}
		_, err := repo.InsertTx(ctx, db, m)
		require.NoError(t, err)
	}

	all, err := repo.ListByTenant(ctx, tenantID, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	travel, err := repo.ListByTenant(ctx, tenantID, "travel_emissions", 10)
	require.NoError(t, err)
	assert.Len(t, travel, 1)
}
