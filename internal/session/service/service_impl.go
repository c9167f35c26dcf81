package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/session/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	idleTimeout time.Duration
	closeGrace  time.Duration
}

func NewService(p Params) domain.Service {
	idle := p.Cfg.SessionIdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	grace := p.Cfg.SessionCloseGrace
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("session.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		idleTimeout: idle,
		closeGrace:  grace,
	}
}

func (s *Service) Track(ctx context.Context, tenantID snowflake.ID, input domain.TrackInput) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return domain.ErrInvalidSession
	}

	eventAt := input.EventAt
	if eventAt.IsZero() {
		eventAt = s.clock.Now()
	}
	eventAt = eventAt.UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		var session domain.ActiveSession
		lockStart := time.Now()
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
			First(&session).Error
		obsmetrics.Pipeline().ObserveLockWait(obsmetrics.LockResourceSessionByID, time.Since(lockStart))
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}

		if err == gorm.ErrRecordNotFound {
			created := &domain.ActiveSession{
				ID:              s.genID.Generate(),
				TenantID:        tenantID,
				SessionID:       sessionID,
				Status:          domain.SessionStatusActive,
				FirstEventAt:    eventAt,
				LastEventAt:     eventAt,
				EventCount:      1,
				TotalEmissionsG: input.EmissionsGrams,
				Breakdown:       breakdownWith(nil, input.EventType, input.EmissionsGrams),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if input.Conversion {
				created.FirstConversionAt = &eventAt
			}
			return tx.WithContext(ctx).Create(created).Error
		}

		lastEventAt := session.LastEventAt
		if eventAt.After(lastEventAt) {
			lastEventAt = eventAt
		}

		status := session.Status
		if status == domain.SessionStatusInactive || status == domain.SessionStatusClosed {
			s.log.Debug("reopening session on late event",
				zap.String("session_id", sessionID),
				zap.String("previous_status", string(status)),
			)
			status = domain.SessionStatusActive
		}

		updates := map[string]any{
			"status":            status,
			"last_event_at":     lastEventAt,
			"event_count":       session.EventCount + 1,
			"total_emissions_g": session.TotalEmissionsG.Add(input.EmissionsGrams),
			"breakdown":         breakdownWith(session.Breakdown, input.EventType, input.EmissionsGrams),
			"updated_at":        now,
		}
		if input.Conversion && session.FirstConversionAt == nil {
			updates["first_conversion_at"] = eventAt
		}
		return tx.WithContext(ctx).
			Model(&domain.ActiveSession{}).
			Where("id = ?", session.ID).
			Updates(updates).Error
	})
}

// SweepIdle runs the two lifecycle demotions. Rows held by a
// concurrent sweep are skipped rather than waited on.
func (s *Service) SweepIdle(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := s.clock.Now()

	deactivated, err := s.demote(ctx, batchSize,
		domain.SessionStatusActive,
		domain.SessionStatusInactive,
		now.Add(-s.idleTimeout),
		now,
	)
	if err != nil {
		return deactivated, err
	}

	closed, err := s.demote(ctx, batchSize,
		domain.SessionStatusInactive,
		domain.SessionStatusClosed,
		now.Add(-s.idleTimeout-s.closeGrace),
		now,
	)
	return deactivated + closed, err
}

func (s *Service) demote(
	ctx context.Context,
	batchSize int,
	from, to domain.SessionStatus,
	idleBefore, now time.Time,
) (int, error) {
	changed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []snowflake.ID
		lockStart := time.Now()
		err := tx.WithContext(ctx).Raw(
			`SELECT id
			 FROM active_sessions
			 WHERE status = ?
			   AND last_event_at < ?
			 ORDER BY last_event_at ASC, id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			from,
			idleBefore,
			batchSize,
		).Scan(&ids).Error
		obsmetrics.Pipeline().ObserveLockWait(obsmetrics.LockResourceSessions, time.Since(lockStart))
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		updates := map[string]any{
			"status":     to,
			"updated_at": now,
		}
		if to == domain.SessionStatusClosed {
			updates["last_processed_at"] = now
		}
		result := tx.WithContext(ctx).
			Model(&domain.ActiveSession{}).
			Where("id IN ?", ids).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		changed = int(result.RowsAffected)
		return nil
	})
	return changed, err
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, sessionID string) (*domain.ActiveSession, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	var session domain.ActiveSession
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, strings.TrimSpace(sessionID)).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, status domain.SessionStatus, limit int) ([]domain.ActiveSession, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var sessions []domain.ActiveSession
	if err := query.Order("last_event_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func breakdownWith(current datatypes.JSONMap, eventType string, grams decimal.Decimal) datatypes.JSONMap {
	next := datatypes.JSONMap{}
	for key, value := range current {
		next[key] = value
	}
	if eventType == "" {
		return next
	}
	existing := decimal.Zero
	if raw, ok := next[eventType]; ok {
		if str, ok := raw.(string); ok {
			if parsed, err := decimal.NewFromString(str); err == nil {
				existing = parsed
			}
		}
	}
	next[eventType] = existing.Add(grams).String()
	return next
}
