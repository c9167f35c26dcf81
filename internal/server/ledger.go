package server

import (
	"net/http"
	"strconv"
	"time"

	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GetBalance returns the tenant's carbon account summary.
func (s *Server) GetBalance(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	summary, err := s.carbonSvc.Summary(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListTransactions returns ledger lines, newest first.
func (s *Server) ListTransactions(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	filter := carbondomain.TransactionFilter{
		Type:      carbondomain.TransactionType(c.Query("type")),
		EventType: c.Query("event_type"),
		Limit:     queryInt(c, "limit", 100),
	}
	if since, ok := queryTime(c, "since"); ok {
		filter.Since = since
	}
	if until, ok := queryTime(c, "until"); ok {
		filter.Until = until
	}

	transactions, err := s.carbonSvc.ListTransactions(c.Request.Context(), tenantID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

type offsetRequest struct {
	AmountKg      decimal.Decimal `json:"amount_kg" binding:"required"`
	Provider      string          `json:"provider"`
	CertificateID string          `json:"certificate_id"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes"`
}

// CreateOffset applies a purchased offset against the balance.
func (s *Server) CreateOffset(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	var request offsetRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	txn, err := s.carbonSvc.RecordOffset(c.Request.Context(), tenantID, carbondomain.OffsetInput{
		AmountKg:      request.AmountKg,
		Provider:      request.Provider,
		CertificateID: request.CertificateID,
		PricePerKg:    request.PricePerKg,
		Currency:      request.Currency,
		Notes:         request.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// ListSessions returns tracked sessions, most recently active first.
func (s *Server) ListSessions(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	sessions, err := s.sessionSvc.List(
		c.Request.Context(),
		tenantID,
		sessiondomain.SessionStatus(c.Query("status")),
		queryInt(c, "limit", 100),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) GetSession(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	session, err := s.sessionSvc.Get(c.Request.Context(), tenantID, c.Param("session_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if session == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListProcessedEvents returns recent idempotence markers.
func (s *Server) ListProcessedEvents(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	markers, err := s.dedupRepo.ListByTenant(
		c.Request.Context(),
		tenantID,
		c.Query("event_type"),
		queryInt(c, "limit", 100),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed_events": markers})
}

// ListFailedEvents returns captured dispatch failures for inspection.
func (s *Server) ListFailedEvents(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	failed, err := s.failedSvc.List(
		c.Request.Context(),
		tenantID,
		faileddomain.FailedEventStatus(c.Query("status")),
		queryInt(c, "limit", 100),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed_events": failed})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return parsed
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
