package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/instabidslabs/instabids-cloud/pkg/telemetry/correlation"
)

const correlationHeader = "X-Correlation-ID"

// Correlation seeds every request context with a correlation ID, honoring one
// supplied by the caller. Events raised during the request inherit it, so a
// bid acceptance can be traced through the outbox into the workflow.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(correlationHeader); incoming != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, incoming)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(correlationHeader, cid)
		c.Next()
	}
}
