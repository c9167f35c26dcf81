package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/evergrid/carbonledger/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("tenant_id = ? AND key_id = ?", key.TenantID, key.KeyID).
		Updates(map[string]any{
			"name":                key.Name,
			"scopes":              key.Scopes,
			"key_hash":            key.KeyHash,
			"is_active":           key.IsActive,
			"updated_at":          key.UpdatedAt,
			"last_used_at":        key.LastUsedAt,
			"expires_at":          key.ExpiresAt,
			"rotated_from_key_id": key.RotatedFromKeyID,
		}).Error
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, keyID string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND key_id = ?", tenantID, keyID).
		First(&key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
