package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ddworken/analytics-ingest/internal/database"
)

type loggedResponseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *loggedResponseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	if r.responseData.status == 0 {
		r.responseData.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.responseData.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func byteCountToString(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMG"[exp])
}

type Middleware func(http.Handler) http.Handler

// mergeMiddlewares runs the given middlewares with the first one outermost.
func mergeMiddlewares(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

type contextKey int

const requestLoggerKey contextKey = iota

// requestLogger returns the logger withLogging attached to ctx, or fallback.
func requestLogger(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if l, ok := ctx.Value(requestLoggerKey).(logrus.FieldLogger); ok {
		return l
	}
	return fallback
}

// withLogging tags each request with an ID, traces it and logs one line when it completes.
// Panics are logged and re-raised.
func withLogging(logger logrus.FieldLogger, s *statsd.Client) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			var responseData loggedResponseData
			lrw := loggingResponseWriter{
				ResponseWriter: rw,
				responseData:   &responseData,
			}
			requestID := uuid.NewString()
			rw.Header().Set("X-Request-Id", requestID)
			reqLogger := logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     r.Method,
				"origin":     getOrigin(r),
			})

			start := time.Now()
			span, ctx := tracer.StartSpanFromContext(
				r.Context(),
				"http.request",
				tracer.ResourceName(r.Method+" "+r.URL.Path),
				tracer.SpanType(ext.SpanTypeWeb),
				tracer.ServiceName(database.ServiceName),
				tracer.Tag("request_id", requestID),
			)
			defer span.Finish()

			defer func() {
				if err := recover(); err != nil {
					reqLogger.WithFields(logrus.Fields{
						"duration": time.Since(start).String(),
						"panic":    err,
					}).Error("request panicked")
					panic(err)
				}
			}()

			ctx = context.WithValue(ctx, requestLoggerKey, reqLogger)
			h.ServeHTTP(&lrw, r.WithContext(ctx))

			duration := time.Since(start)
			span.SetTag(ext.HTTPCode, strconv.Itoa(responseData.status))
			reqLogger.WithFields(logrus.Fields{
				"status":   responseData.status,
				"duration": duration.String(),
				"size":     byteCountToString(responseData.size),
			}).Info("request completed")
			if s != nil {
				tags := []string{"status:" + strconv.Itoa(responseData.status)}
				s.Distribution("analytics.request_duration", float64(duration.Microseconds())/1_000, tags, 1.0)
				s.Incr("analytics.request", tags, 1.0)
			}
		})
	}
}

type guardResponseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (g *guardResponseWriter) Write(b []byte) (int, error) {
	g.wrote = true
	return g.ResponseWriter.Write(b)
}

func (g *guardResponseWriter) WriteHeader(statusCode int) {
	g.wrote = true
	g.ResponseWriter.WriteHeader(statusCode)
}

// withPanicGuard is the last defence from a panic. It logs it and answers with the generic
// server error so the client still gets a JSON body with CORS headers. A response that has
// already started is left alone, and http.ErrAbortHandler is passed on to net/http.
func withPanicGuard(logger logrus.FieldLogger) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			grw := &guardResponseWriter{ResponseWriter: rw}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Errorf("panic: %v", rec)
				if !grw.wrote {
					writeError(rw, logger, http.StatusInternalServerError, internalErrorMessage)
				}
			}()
			h.ServeHTTP(grw, r)
		})
	}
}
