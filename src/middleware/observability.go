package middleware

import (
	"strconv"
	"time"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	ctxRequestIDKey = "request_id"
)

// RequestID reuses an upstream X-Request-ID or generates a new one.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Header(RequestIDHeader, id)
		ctx.Set(ctxRequestIDKey, id)
		ctx.Next()
	}
}

func GetRequestID(ctx *gin.Context) string {
	return ctx.GetString(ctxRequestIDKey)
}

// RequestLogger logs every request and records the HTTP metrics.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		elapsed := time.Since(start)

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := ctx.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, ctx.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, ctx.Request.Method).Observe(elapsed.Seconds())

		ev := logging.Info()
		switch {
		case status >= 500:
			ev = logging.Error()
		case status >= 400:
			ev = logging.Warn()
		}
		ev = ev.Str("request_id", GetRequestID(ctx)).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", status).
			Dur("latency", elapsed)
		if u := CurrentUser(ctx); u != nil {
			ev = ev.Int("user_id", u.UserID)
		}
		if len(ctx.Errors) > 0 {
			ev = ev.Str("errors", ctx.Errors.String())
		}
		ev.Msg("request")
	}
}
