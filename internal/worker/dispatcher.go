package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome reports what dispatching one envelope did.
type Outcome struct {
	Recorded  bool
	Duplicate bool
	KgCO2     decimal.Decimal
}

// Dispatcher runs the process-and-record pipeline for one envelope.
// First deliveries and retry re-enqueues both arrive here through the
// queue consumer, so the two paths stay behaviorally identical.
type Dispatcher struct {
	log      *zap.Logger
	registry *processor.Registry
	carbon   carbondomain.Service
	sessions sessiondomain.Service
}

func NewDispatcher(
	log *zap.Logger,
	registry *processor.Registry,
	carbon carbondomain.Service,
	sessions sessiondomain.Service,
) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("worker.dispatcher"),
		registry: registry,
		carbon:   carbon,
		sessions: sessions,
	}
}

// Dispatch computes the emission and applies it to the tenant ledger.
// Session tracking runs after the ledger commit and never fails the
// dispatch: a lost session update is recoverable, a lost emission is
// not.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope queue.Envelope) (Outcome, error) {
	tenantID, err := parseTenantID(envelope.TenantID)
	if err != nil {
		return Outcome{}, err
	}

	proc, err := d.registry.Get(envelope.EventType)
	if err != nil {
		return Outcome{}, err
	}

	result, err := proc.Process(ctx, envelope.Payload)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := d.carbon.RecordEmission(ctx, tenantID, envelope.EventType, result)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.Duplicate {
		return Outcome{Duplicate: true}, nil
	}

	d.trackSession(ctx, tenantID, envelope, result)
	return Outcome{Recorded: true, KgCO2: result.KgCO2Emitted}, nil
}

func (d *Dispatcher) trackSession(ctx context.Context, tenantID snowflake.ID, envelope queue.Envelope, result processor.Result) {
	sessionID := sessionIDFromPayload(envelope.Payload)
	if sessionID == "" {
		return
	}

	eventAt := envelope.QueuedAt
	if eventAt.IsZero() {
		eventAt = time.Now().UTC()
	}

	err := d.sessions.Track(ctx, tenantID, sessiondomain.TrackInput{
		SessionID:      sessionID,
		EventType:      envelope.EventType,
		EmissionsGrams: result.KgCO2Emitted.Mul(decimal.NewFromInt(1000)),
		EventAt:        eventAt,
		Conversion:     strings.HasSuffix(result.ReferenceType, "_conversion"),
	})
	if err != nil {
		d.log.Warn("session tracking failed",
			zap.String("session_id", sessionID),
			zap.String("event_type", envelope.EventType),
			zap.Error(err),
		)
	}
}

func parseTenantID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(value), nil
}

func sessionIDFromPayload(payload json.RawMessage) string {
	var fields struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	return fields.SessionID
}
