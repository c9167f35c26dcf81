package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	obsmetrics "github.com/evergrid/carbonledger/internal/observability/metrics"
	"github.com/evergrid/carbonledger/internal/tenantctx"
	"github.com/gin-gonic/gin"
)

const (
	contextTenantIDKey = "tenant_id"
	contextAPIKeyIDKey = "api_key_id"
)

// APIKeyRequired authenticates requests with a bearer API key carrying
// the given scope. Tenant identity comes solely from the api_keys
// table, never from request parameters.
func (s *Server) APIKeyRequired(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Validate(c.Request.Context(), parts[1], scope)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), key.TenantID)
		c.Set(contextTenantIDKey, key.TenantID)
		c.Set(contextAPIKeyIDKey, key.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimited applies the per-tenant ingest token bucket. Requests run
// unlimited when no limiter is configured.
func (s *Server) RateLimited(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.ingestLimiter.AllowTenant(c.Request.Context(), tenantID.String())
		if err != nil {
			// Redis being down must not take ingestion with it.
			s.log.Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !result.Allowed {
			obsmetrics.Pipeline().IncRateLimitDenied(endpoint, "tenant_bucket")
			if result.RetryAfter > 0 {
				c.Header("Retry-After", formatSeconds(result.RetryAfter))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}

		obsmetrics.Pipeline().IncRateLimitAllowed(endpoint)
		c.Next()
	}
}

func formatSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
