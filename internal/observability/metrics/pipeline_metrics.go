package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultProcessed = "processed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"

	BatchDeferredReasonSkipLockedEmpty = "skip_locked_empty"
)

const (
	LockResourceCarbonBalance = "carbon_balances_by_tenant"
	LockResourceFailedEvents  = "failed_events_for_retry"
	LockResourceSessions      = "sessions_for_close"
	LockResourceSessionByID   = "session_by_id"
)

// PipelineMetrics captures ingestion pipeline health signals.
type PipelineMetrics struct {
	eventsIngested   *prometheus.CounterVec
	eventsProcessed  *prometheus.CounterVec
	queuePublished   *prometheus.CounterVec
	queueDeadLetter  *prometheus.CounterVec
	emissionGrams    *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	batchProcessed   *prometheus.CounterVec
	batchDeferred    *prometheus.CounterVec
	dbLockWait       *prometheus.HistogramVec
	rateLimitAllowed *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec
	lockWaitObserver map[string]prometheus.Observer
}

// Config carries the constant labels applied to every pipeline metric.
type Config struct {
	ServiceName string
	Environment string
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "carbonledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eventsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_events_ingested_total",
		Help:        "Events accepted at the front door by type.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	eventsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_events_processed_total",
		Help:        "Worker event outcomes by type and result.",
		ConstLabels: constLabels,
	}, []string{"event_type", "result"})
	queuePublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_queue_published_total",
		Help:        "Messages published to the event queue.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	queueDeadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_queue_dead_letter_total",
		Help:        "Messages routed to the dead letter queue.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	emissionGrams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_emission_grams_total",
		Help:        "Grams of CO2e recorded to the ledger by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "carbonledger_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to protect sweep freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts that threaten sweep SLAs.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_scheduler_batch_processed_total",
		Help:        "Scheduler batch items processed to gauge sweep throughput.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	batchDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_scheduler_batch_deferred_total",
		Help:        "Scheduler batch deferrals by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "carbonledger_db_lock_wait_seconds",
		Help:        "DB lock wait time for SELECT FOR UPDATE contention.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})
	rateLimitAllowed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_rate_limit_allowed_total",
		Help:        "Ingest requests admitted by the rate limiter.",
		ConstLabels: constLabels,
	}, []string{"endpoint"})
	rateLimitDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "carbonledger_rate_limit_denied_total",
		Help:        "Ingest requests rejected by the rate limiter.",
		ConstLabels: constLabels,
	}, []string{"endpoint", "reason"})

	registerer.MustRegister(
		eventsIngested,
		eventsProcessed,
		queuePublished,
		queueDeadLetter,
		emissionGrams,
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		batchDeferred,
		dbLockWait,
		rateLimitAllowed,
		rateLimitDenied,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceCarbonBalance: dbLockWait.WithLabelValues(LockResourceCarbonBalance),
		LockResourceFailedEvents:  dbLockWait.WithLabelValues(LockResourceFailedEvents),
		LockResourceSessions:      dbLockWait.WithLabelValues(LockResourceSessions),
		LockResourceSessionByID:   dbLockWait.WithLabelValues(LockResourceSessionByID),
	}

	return &PipelineMetrics{
		eventsIngested:   eventsIngested,
		eventsProcessed:  eventsProcessed,
		queuePublished:   queuePublished,
		queueDeadLetter:  queueDeadLetter,
		emissionGrams:    emissionGrams,
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		batchProcessed:   batchProcessed,
		batchDeferred:    batchDeferred,
		dbLockWait:       dbLockWait,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
		lockWaitObserver: lockWaitObserver,
	}
}

// IncEventIngested increments the front door acceptance counter.
func (m *PipelineMetrics) IncEventIngested(eventType string) {
	if m == nil || m.eventsIngested == nil {
		return
	}
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

// IncEventProcessed records a worker outcome for an event type.
func (m *PipelineMetrics) IncEventProcessed(eventType, result string) {
	if m == nil || m.eventsProcessed == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(eventType, result).Inc()
}

// IncQueuePublished increments the publish counter for a queue.
func (m *PipelineMetrics) IncQueuePublished(queue string) {
	if m == nil || m.queuePublished == nil {
		return
	}
	m.queuePublished.WithLabelValues(queue).Inc()
}

// IncQueueDeadLetter increments the dead letter counter for a queue.
func (m *PipelineMetrics) IncQueueDeadLetter(queue string) {
	if m == nil || m.queueDeadLetter == nil {
		return
	}
	m.queueDeadLetter.WithLabelValues(queue).Inc()
}

// AddEmissionGrams accumulates recorded grams by event type.
func (m *PipelineMetrics) AddEmissionGrams(eventType string, grams float64) {
	if m == nil || m.emissionGrams == nil || grams < 0 {
		return
	}
	m.emissionGrams.WithLabelValues(eventType).Add(grams)
}

// IncJobRun increments the run counter for a scheduler job.
func (m *PipelineMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *PipelineMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *PipelineMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *PipelineMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobError(err)).Inc()
}

// IncBatchProcessed adds processed item counts for a job and resource.
func (m *PipelineMetrics) IncBatchProcessed(job, resource string, count int) {
	if m == nil || m.batchProcessed == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// IncBatchDeferred increments the deferral counter for a job.
func (m *PipelineMetrics) IncBatchDeferred(job, reason string) {
	if m == nil || m.batchDeferred == nil {
		return
	}
	m.batchDeferred.WithLabelValues(job, reason).Inc()
}

// ObserveLockWait records time spent waiting on a row lock.
func (m *PipelineMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil || m.dbLockWait == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// IncRateLimitAllowed increments the rate limit allow counter.
func (m *PipelineMetrics) IncRateLimitAllowed(endpoint string) {
	if m == nil || m.rateLimitAllowed == nil {
		return
	}
	m.rateLimitAllowed.WithLabelValues(endpoint).Inc()
}

// IncRateLimitDenied increments the rate limit deny counter.
func (m *PipelineMetrics) IncRateLimitDenied(endpoint, reason string) {
	if m == nil || m.rateLimitDenied == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(endpoint, reason).Inc()
}

// ClassifyJobError maps an error to a low-cardinality reason label.
func ClassifyJobError(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobReasonDBLockTimeout
		case "40001":
			return JobReasonSerializationFailure
		case "23505":
			return JobReasonUniqueViolation
		}
	}
	return JobReasonUnknown
}
