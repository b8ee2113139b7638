package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/realvest/internal/observability/context"
	"github.com/smallbiznis/realvest/internal/observability/logger"
	"github.com/smallbiznis/realvest/internal/usercontext"
	"go.uber.org/zap"
)

const (
	HeaderUserID             = "X-User-ID"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// UserContext resolves the acting owner from the X-User-ID header. Session
// handling lives in front of this service.
func (s *Server) UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithUserID(ctx, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// MutationRateLimit spends one token of the owner's write bucket on every
// non-read request. It is a no-op without redis.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.guard == nil || isReadMethod(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		userID, ok := usercontext.UserIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.guard.AllowMutation(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("mutation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result.Limit > 0 {
			c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			s.obsMetrics.RecordRateLimited(ctx, normalizeRoute(c))
			logger.FromContext(ctx).Warn("mutation rate limit exceeded",
				zap.String("route", normalizeRoute(c)),
			)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func normalizeRoute(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	route := strings.TrimSpace(c.FullPath())
	if route == "" {
		route = strings.TrimSpace(c.Request.URL.Path)
	}
	if route == "" {
		route = "unknown"
	}
	return route
}
