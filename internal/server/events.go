package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/evergrid/carbonledger/internal/ingest"
	"github.com/evergrid/carbonledger/internal/tenantctx"
	"github.com/gin-gonic/gin"
)

func (s *Server) tenantFromRequest(c *gin.Context) (snowflake.ID, bool) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok || tenantID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return tenantID, true
}

func (s *Server) apiKeyIDFromRequest(c *gin.Context) string {
	return c.GetString(contextAPIKeyIDKey)
}

// SubmitEvent validates and enqueues a single emission event.
func (s *Server) SubmitEvent(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	var request ingest.EventRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.Set("event_type", request.EventType)

	receipt, err := s.ingestSvc.SubmitEvent(c.Request.Context(), tenantID, s.apiKeyIDFromRequest(c), request)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// SubmitBatch validates and enqueues a batch. Invalid entries are
// reported back but never block the rest of the batch.
func (s *Server) SubmitBatch(c *gin.Context) {
	tenantID, ok := s.tenantFromRequest(c)
	if !ok {
		return
	}

	var body struct {
		Events []ingest.EventRequest `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	receipt, err := s.ingestSvc.SubmitBatch(c.Request.Context(), tenantID, s.apiKeyIDFromRequest(c), body.Events)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// ListEventTypes returns the event types this deployment can process.
func (s *Server) ListEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"event_types": s.registry.EventTypes()})
}
