// Package logging provides structured logging utilities.
package logging

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// NewLogger creates a new zerolog logger writing JSON to stdout.
func NewLogger(serviceName string, level string) zerolog.Logger {
	return newLogger(os.Stdout, serviceName, level)
}

// NewPrettyLogger creates a logger with pretty console output (for development).
func NewPrettyLogger(serviceName string, level string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}, serviceName, level)
}

// New picks the JSON or console logger from a format name ("json" or "pretty").
func New(serviceName, level, format string) zerolog.Logger {
	if format == "pretty" {
		return NewPrettyLogger(serviceName, level)
	}
	return NewLogger(serviceName, level)
}

func newLogger(w io.Writer, serviceName, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// RequestLogger returns a Gin middleware for HTTP request logging. It also
// stores a request-scoped logger in the request context.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := logger.With().Str("requestId", requestID).Logger()
		c.Request = c.Request.WithContext(ContextWithLogger(c.Request.Context(), reqLogger))

		c.Next()

		statusCode := c.Writer.Status()
		event := reqLogger.Info()
		switch {
		case statusCode >= 500:
			event = reqLogger.Error()
		case statusCode >= 400:
			event = reqLogger.Warn()
		}

		event.
			Str("type", "http_request").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", statusCode).
			Str("clientIp", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Int("bodySize", c.Writer.Size())

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			event.Str("userId", userID)
		}
		if len(c.Errors) > 0 {
			event.Str("error", c.Errors.String())
		}

		event.Msg("HTTP request")
	}
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}

// GRPCLogger returns a gRPC unary server interceptor for request logging.
func GRPCLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ContextWithLogger(ctx, logger), req)

		code := grpcCode(err)
		event := logger.Debug()
		if code != codes.OK {
			event = logger.Error().Err(err)
		}
		event.
			Str("type", "grpc_request").
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}

// GRPCStreamLogger returns a gRPC stream server interceptor for request logging.
func GRPCStreamLogger(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)

		code := grpcCode(err)
		event := logger.Debug()
		if code != codes.OK && code != codes.Canceled {
			event = logger.Error().Err(err)
		}
		event.
			Str("type", "grpc_stream").
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("gRPC stream")

		return err
	}
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// LoggerFromContext extracts the logger from context. It returns fallback
// when the context carries none.
func LoggerFromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l == nil || l.GetLevel() == zerolog.Disabled {
		return fallback
	}
	return *l
}

// ArticleLogger creates a logger for one edit of an article.
func ArticleLogger(logger zerolog.Logger, slug string, userID int64) zerolog.Logger {
	return logger.With().
		Str("slug", slug).
		Str("userId", strconv.FormatInt(userID, 10)).
		Logger()
}
