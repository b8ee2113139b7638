package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func tracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := gin.New()
	r.Use(GinMiddleware(tp))
	r.GET("/api/portfolio", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{}})
	})
	r.POST("/api/pipeline/deals/:id/move", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid_position: position -3 for deal 99"))
		c.AbortWithStatus(http.StatusBadRequest)
	})
	r.PUT("/api/watchlist/:id", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTooManyRequests)
	})
	r.GET("/api/analytics/market", func(c *gin.Context) {
		_ = c.Error(errors.New("query failed: select from properties"))
		c.AbortWithStatus(http.StatusInternalServerError)
	})
	return r, recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func serve(r *gin.Engine, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
}

func TestGinMiddlewareTagsResourceAndMutation(t *testing.T) {
	r, recorder := tracedEngine(t)
	serve(r, http.MethodGet, "/api/portfolio")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/portfolio", spans[0].Name())
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "portfolio", attrs[AttrResource].AsString())
	assert.False(t, attrs[AttrMutation].AsBool())
	assert.Equal(t, int64(http.StatusOK), attrs["http.status_code"].AsInt64())
	_, limited := attrs[AttrRateLimited]
	assert.False(t, limited)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareRecordsClientErrorCode(t *testing.T) {
	r, recorder := tracedEngine(t)
	serve(r, http.MethodPost, "/api/pipeline/deals/1/move")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "pipeline", attrs[AttrResource].AsString())
	assert.True(t, attrs[AttrMutation].AsBool())
	assert.Equal(t, "invalid_position", attrs[AttrErrorCode].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareFlagsRateLimitAndServerErrors(t *testing.T) {
	r, recorder := tracedEngine(t)
	serve(r, http.MethodPut, "/api/watchlist/5")
	serve(r, http.MethodGet, "/api/analytics/market")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.True(t, spanAttrs(spans[0])[AttrRateLimited].AsBool())

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	require.Len(t, failed.Events(), 1)
	_, tagged := spanAttrs(failed)[AttrErrorCode]
	assert.False(t, tagged)
}

func TestResourceOf(t *testing.T) {
	assert.Equal(t, "pipeline", resourceOf("/api/pipeline/deals/:id/move"))
	assert.Equal(t, "health", resourceOf("/health"))
	assert.Equal(t, "unknown", resourceOf("unknown"))
	assert.Equal(t, "unknown", resourceOf("/"))
}
