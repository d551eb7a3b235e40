package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/scriptrunner-backend/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"
)

// AttachTraceContext stores trace and request ids on the request context and
// echoes them back. An active span's trace id wins over a generated one.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := strings.TrimSpace(c.GetHeader(HeaderTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		span.SetAttributes(attribute.String("http.request_id", reqID))

		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(HeaderTraceID, traceID)
		c.Writer.Header().Set(HeaderRequestID, reqID)
		c.Next()
	}
}
