package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evergrid/carbonledger/internal/clock"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/queue"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Sessions  sessiondomain.Service
	Failed    faileddomain.Service
	Publisher queue.Publisher
	Broker    *queue.Broker `optional:"true"`
	Config    Config        `optional:"true"`
}

// Scheduler drives the background sweeps: re-enqueueing failed events,
// draining the dead letter queue and closing idle sessions. The sweeps
// never run event processing themselves; recovered events go back onto
// the primary queue for the worker pool.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	sessions  sessiondomain.Service
	failed    faileddomain.Service
	publisher queue.Publisher
	broker    *queue.Broker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Sessions == nil || p.Failed == nil || p.Publisher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		sessions:  p.Sessions,
		failed:    p.Failed,
		publisher: p.Publisher,
		broker:    p.Broker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	pipeMetrics := obsmetrics.Pipeline()
	pipeMetrics.IncJobRun(name)

	err := fn(ctx)
	pipeMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		pipeMetrics.IncJobTimeout(name)
	}
	pipeMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"retry_failed", s.isJobEnabled("retry_failed"), func(ctx context.Context) error {
			return s.runJob(ctx, "retry_failed", s.cfg.JobTimeout, s.RetryFailedEventsJob)
		}},
		{"drain_dlq", s.isJobEnabled("drain_dlq") && s.broker != nil, func(ctx context.Context) error {
			return s.runJob(ctx, "drain_dlq", s.cfg.JobTimeout, s.DrainDeadLettersJob)
		}},
		{"close_sessions", s.isJobEnabled("close_sessions"), func(ctx context.Context) error {
			return s.runJob(ctx, "close_sessions", s.cfg.JobTimeout, s.CloseSessionsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
