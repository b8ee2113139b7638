package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/realvest/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "realvest/http"

// Span attributes set on every API request.
const (
	AttrResource    = attribute.Key("realvest.resource")
	AttrMutation    = attribute.Key("realvest.mutation")
	AttrRateLimited = attribute.Key("realvest.rate_limited")
	AttrErrorCode   = attribute.Key("realvest.error_code")
)

// GinMiddleware instruments inbound HTTP requests. A nil provider uses the
// global one.
func GinMiddleware(tp trace.TracerProvider) gin.HandlerFunc {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)

		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			AttrResource.String(resourceOf(route)),
			AttrMutation.Bool(isMutation(method)),
		)...)
		if status == http.StatusTooManyRequests {
			span.SetAttributes(AttrRateLimited.Bool(true))
		}

		lastErr := c.Errors.Last()
		if lastErr == nil || lastErr.Err == nil {
			return
		}
		safeErr := SafeError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			span.RecordError(safeErr)
			span.SetStatus(codes.Error, "request error")
			return
		}
		// client errors keep the span status unset
		span.SetAttributes(AttrErrorCode.String(safeErr.Error()))
	}
}

// resourceOf maps a route template to its API area, e.g.
// "/api/pipeline/deals/:id/move" to "pipeline".
func resourceOf(route string) string {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		return parts[1]
	}
	if parts[0] == "" {
		return "unknown"
	}
	return parts[0]
}

func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
