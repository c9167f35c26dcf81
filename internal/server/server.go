package server

import (
	"context"
	"net/http"
	"time"

	apikeydomain "github.com/evergrid/carbonledger/internal/apikey/domain"
	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	"github.com/evergrid/carbonledger/internal/config"
	"github.com/evergrid/carbonledger/internal/dedup"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	"github.com/evergrid/carbonledger/internal/ingest"
	obslogging "github.com/evergrid/carbonledger/internal/observability/logging"
	obstracing "github.com/evergrid/carbonledger/internal/observability/tracing"
	"github.com/evergrid/carbonledger/internal/processor"
	"github.com/evergrid/carbonledger/internal/queue"
	"github.com/evergrid/carbonledger/internal/ratelimit"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogging.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	apiKeySvc     apikeydomain.Service
	ingestSvc     ingest.Service
	carbonSvc     carbondomain.Service
	sessionSvc    sessiondomain.Service
	failedSvc     faileddomain.Service
	registry      *processor.Registry
	dedupRepo     *dedup.Repository
	ingestLimiter *ratelimit.IngestLimiter
	broker        *queue.Broker
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	APIKeySvc  apikeydomain.Service
	IngestSvc  ingest.Service
	CarbonSvc  carbondomain.Service
	SessionSvc sessiondomain.Service
	FailedSvc  faileddomain.Service
	Registry   *processor.Registry
	DedupRepo  *dedup.Repository

	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
	Broker        *queue.Broker            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		apiKeySvc:     p.APIKeySvc,
		ingestSvc:     p.IngestSvc,
		carbonSvc:     p.CarbonSvc,
		sessionSvc:    p.SessionSvc,
		failedSvc:     p.FailedSvc,
		registry:      p.Registry,
		dedupRepo:     p.DedupRepo,
		ingestLimiter: p.IngestLimiter,
		broker:        p.Broker,
	}

	svc.registerEventRoutes()
	svc.registerLedgerRoutes()
	svc.registerAPIKeyRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerEventRoutes() {
	v1 := s.engine.Group("/v1")

	events := v1.Group("/events")
	events.Use(s.APIKeyRequired(apikeydomain.ScopeEventsWrite))
	events.Use(s.RateLimited("events"))
	events.POST("", s.SubmitEvent)
	events.POST("/batch", s.SubmitBatch)

	v1.GET("/event-types", s.ListEventTypes)
}

func (s *Server) registerLedgerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.APIKeyRequired(apikeydomain.ScopeLedgerRead))

	v1.GET("/balance", s.GetBalance)
	v1.GET("/transactions", s.ListTransactions)
	v1.POST("/offsets", s.CreateOffset)
	v1.GET("/sessions", s.ListSessions)
	v1.GET("/sessions/:session_id", s.GetSession)
	v1.GET("/processed-events", s.ListProcessedEvents)
	v1.GET("/failed-events", s.ListFailedEvents)
}

func (s *Server) registerAPIKeyRoutes() {
	keys := s.engine.Group("/v1/api-keys")
	keys.Use(s.APIKeyRequired(apikeydomain.ScopeKeysAdmin))

	keys.GET("", s.ListAPIKeys)
	keys.POST("", s.CreateAPIKey)
	keys.POST("/:key_id/rotate", s.RotateAPIKey)
	keys.DELETE("/:key_id", s.RevokeAPIKey)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
