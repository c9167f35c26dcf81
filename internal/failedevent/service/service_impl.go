package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/clock"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/failedevent/domain"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
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
	Cfg   config.Config
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cooldown   time.Duration
	maxRetries int
}

func NewService(p Params) domain.Service {
	cooldown := p.Cfg.RetryCooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	maxRetries := p.Cfg.MaxEventRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("failedevent.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cooldown:   cooldown,
		maxRetries: maxRetries,
	}
}

func (s *Service) Capture(ctx context.Context, input domain.CaptureInput) (*domain.FailedEvent, error) {
	if input.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if len(input.Payload) == 0 {
		return nil, domain.ErrInvalidPayload
	}

	now := s.clock.Now()
	if messageID := strings.TrimSpace(input.OriginalMessageID); messageID != "" {
		reopened, err := s.reopen(ctx, input, messageID, now)
		if err != nil {
			return nil, err
		}
		if reopened != nil {
			return reopened, nil
		}
	}

	failed := &domain.FailedEvent{
		ID:                s.genID.Generate(),
		TenantID:          input.TenantID,
		EventType:         input.EventType,
		Payload:           datatypes.JSON(input.Payload),
		ErrorMessage:      truncateError(input.ErrorMessage),
		ErrorTrace:        input.ErrorTrace,
		MaxRetries:        s.maxRetries,
		Status:            domain.FailedEventStatusPending,
		OriginalMessageID: input.OriginalMessageID,
		DLQMessageID:      input.DLQMessageID,
		FailedAt:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.WithContext(ctx).Create(failed).Error; err != nil {
		return nil, err
	}

	s.log.Warn("captured failed event",
		zap.String("failed_event_id", failed.ID.String()),
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("event_type", input.EventType),
		zap.String("error", failed.ErrorMessage),
	)
	return failed, nil
}

// reopen folds a repeat failure of the same source message back into
// its existing row, so the retry budget survives the requeue cycle
// instead of resetting with every fresh capture.
func (s *Service) reopen(ctx context.Context, input domain.CaptureInput, messageID string, now time.Time) (*domain.FailedEvent, error) {
	var existing domain.FailedEvent
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND original_message_id = ?", input.TenantID, messageID).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"error_message": truncateError(input.ErrorMessage),
		"updated_at":    now,
	}
	switch existing.Status {
	case domain.FailedEventStatusAbandoned:
		// Out of budget, stays parked for an operator.
	case domain.FailedEventStatusResolved:
		if existing.RetryCount >= existing.MaxRetries {
			updates["status"] = domain.FailedEventStatusAbandoned
			s.log.Error("abandoning failed event after max retries",
				zap.String("failed_event_id", existing.ID.String()),
				zap.Int("retry_count", existing.RetryCount),
			)
		} else {
			updates["status"] = domain.FailedEventStatusPending
			updates["resolved_at"] = nil
		}
	default:
		// Already pending or claimed; just record the newest error.
	}

	if err := s.db.WithContext(ctx).
		Model(&domain.FailedEvent{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.findByID(ctx, existing.ID)
}

func (s *Service) findByID(ctx context.Context, id snowflake.ID) (*domain.FailedEvent, error) {
	var row domain.FailedEvent
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ClaimForRetry selects due rows with SKIP LOCKED so competing
// schedulers never retry the same event twice. A processing row whose
// claim went stale (the claimer crashed before settling it) becomes
// claimable again after the cool-down, or is abandoned outright when
// its retry budget is already spent.
func (s *Service) ClaimForRetry(ctx context.Context, batchSize int) ([]domain.FailedEvent, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := s.clock.Now()
	dueBefore := now.Add(-s.cooldown)

	var claimed []domain.FailedEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Model(&domain.FailedEvent{}).
			Where("status = ? AND last_retry_at < ? AND retry_count >= max_retries",
				domain.FailedEventStatusProcessing, dueBefore).
			Updates(map[string]any{
				"status":     domain.FailedEventStatusAbandoned,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		var rows []domain.FailedEvent
		lockStart := time.Now()
		err := tx.WithContext(ctx).Raw(
			`SELECT *
			 FROM failed_events
			 WHERE retry_count < max_retries
			   AND failed_at < ?
			   AND (
			         (status = ? AND (last_retry_at IS NULL OR last_retry_at < ?))
			      OR (status = ? AND last_retry_at < ?)
			   )
			 ORDER BY failed_at ASC, id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			dueBefore,
			domain.FailedEventStatusPending,
			dueBefore,
			domain.FailedEventStatusProcessing,
			dueBefore,
			batchSize,
		).Scan(&rows).Error
		obsmetrics.Pipeline().ObserveLockWait(obsmetrics.LockResourceFailedEvents, time.Since(lockStart))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if err := tx.WithContext(ctx).
			Model(&domain.FailedEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":        domain.FailedEventStatusProcessing,
				"retry_count":   gorm.Expr("retry_count + 1"),
				"last_retry_at": now,
				"updated_at":    now,
			}).Error; err != nil {
			return err
		}

		for i := range rows {
			rows[i].Status = domain.FailedEventStatusProcessing
			rows[i].RetryCount++
			rows[i].LastRetryAt = &now
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Service) MarkResolved(ctx context.Context, id snowflake.ID) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).
		Model(&domain.FailedEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.FailedEventStatusResolved,
			"resolved_at": now,
			"updated_at":  now,
		}).Error
}

func (s *Service) MarkRetryFailed(ctx context.Context, id snowflake.ID, errorMessage string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var failed domain.FailedEvent
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&failed).Error; err != nil {
			return err
		}

		status := domain.FailedEventStatusPending
		if failed.RetryCount >= failed.MaxRetries {
			status = domain.FailedEventStatusAbandoned
			s.log.Error("abandoning failed event after max retries",
				zap.String("failed_event_id", id.String()),
				zap.Int("retry_count", failed.RetryCount),
			)
		}

		return tx.WithContext(ctx).
			Model(&domain.FailedEvent{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":        status,
				"error_message": truncateError(errorMessage),
				"updated_at":    now,
			}).Error
	})
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, status domain.FailedEventStatus, limit int) ([]domain.FailedEvent, error) {
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
	var rows []domain.FailedEvent
	if err := query.Order("failed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

const maxErrorMessageBytes = 2000

func truncateError(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxErrorMessageBytes {
		return message
	}
	cut := maxErrorMessageBytes
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
