package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/evergrid/carbonledger/internal/apikey/domain"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/tenantctx"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKeyRotationGracePeriod = 24 * time.Hour

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  apikeydomain.Repository
	genID *snowflake.Node
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		clock: p.Clock,
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}

	return resp, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{apikeydomain.ScopeEventsWrite}
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := apikeydomain.NewKeyID(id)
	plain, hash, err := apikeydomain.GenerateKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		TenantID:  tenantID,
		KeyID:     keyID,
		Name:      name,
		Scopes:    pq.StringArray(scopes),
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

func (s *Service) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, tenantID, trimmed)
		if err != nil {
			return err
		}
		if current == nil || !current.IsActive || s.isExpired(current.ExpiresAt) {
			return apikeydomain.ErrNotFound
		}

		now := s.clock.Now()
		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		nextKeyID := apikeydomain.NewKeyID(id)
		plain, hash, err := apikeydomain.GenerateKey(nextKeyID)
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               id,
			TenantID:         tenantID,
			KeyID:            nextKeyID,
			Name:             current.Name,
			Scopes:           current.Scopes,
			KeyHash:          hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, tenantID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	return s.repo.Update(ctx, s.db, key)
}

func (s *Service) Validate(ctx context.Context, raw string, scope string) (*apikeydomain.APIKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, apikeydomain.KeyPrefix) {
		return nil, apikeydomain.ErrUnauthorized
	}

	hash := apikeydomain.HashAPIKey(trimmed)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikeydomain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, apikeydomain.ErrUnauthorized
	}
	if !key.IsActive || s.isExpired(key.ExpiresAt) {
		return nil, apikeydomain.ErrUnauthorized
	}
	if scope != "" && !key.HasScope(scope) {
		return nil, apikeydomain.ErrForbidden
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		s.log.Warn("failed to record api key usage", zap.Error(err))
	}

	return key, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return 0, apikeydomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func (s *Service) toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Scopes:           key.Scopes,
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func (s *Service) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return s.clock.Now().After(*expiresAt)
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
