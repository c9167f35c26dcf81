package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/evergrid/carbonledger/internal/apikey/domain"
	tenantdomain "github.com/evergrid/carbonledger/internal/tenant/domain"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	defaultTenantSlug = "main"
	bootstrapKeyName  = "bootstrap"
)

// EnsureDefaultTenant seeds the default tenant and its bootstrap API
// key so a fresh deployment can ingest events immediately.
func EnsureDefaultTenant(db *gorm.DB, log *zap.Logger) error {
	return ensure(db, log, 0)
}

// EnsureDefaultTenantWithID seeds the default tenant under a fixed ID,
// for deployments that pin the tenant across environments.
func EnsureDefaultTenantWithID(db *gorm.DB, log *zap.Logger, tenantID int64) error {
	return ensure(db, log, tenantID)
}

func ensure(db *gorm.DB, log *zap.Logger, tenantID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenantTx(ctx, tx, node, tenantID)
		if err != nil {
			return err
		}
		return ensureBootstrapKeyTx(ctx, tx, node, log, tenant.ID)
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID int64) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := tx.WithContext(ctx).Where("slug = ?", defaultTenantSlug).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := node.Generate()
	if tenantID != 0 {
		id = snowflake.ID(tenantID)
	}
	now := time.Now().UTC()
	tenant = tenantdomain.Tenant{
		ID:        id,
		Name:      defaultTenantName,
		Slug:      defaultTenantSlug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func ensureBootstrapKeyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, log *zap.Logger, tenantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	id := node.Generate()
	keyID := apikeydomain.NewKeyID(id)
	plain, hash, err := apikeydomain.GenerateKey(keyID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := apikeydomain.APIKey{
		ID:       id,
		TenantID: tenantID,
		KeyID:    keyID,
		Name:     bootstrapKeyName,
		Scopes: pq.StringArray{
			apikeydomain.ScopeEventsWrite,
			apikeydomain.ScopeLedgerRead,
			apikeydomain.ScopeKeysAdmin,
		},
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
		return err
	}

	// Printed once at first boot; rotate it before going to production.
	log.Info("seeded bootstrap api key",
		zap.String("tenant_id", tenantID.String()),
		zap.String("key_id", keyID),
		zap.String("api_key", plain),
	)
	return nil
}
