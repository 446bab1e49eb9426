// Package health reports backend readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kneutral-org/articlelock/internal/logging"
)

// Probe checks one backend. A nil error means the backend is usable.
type Probe func(ctx context.Context) error

// Checker runs named probes and publishes their status. The overall service
// ("") is SERVING only while every probe passes.
type Checker struct {
	server  *health.Server
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	probes map[string]Probe
	failed map[string]bool
}

// NewChecker creates a checker with no probes.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		server:  health.NewServer(),
		logger:  logger.With().Str("component", "health").Logger(),
		timeout: 2 * time.Second,
		probes:  make(map[string]Probe),
		failed:  make(map[string]bool),
	}
}

// Register adds a probe under a gRPC service name such as "articlelock.LockStore".
func (c *Checker) Register(service string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[service] = probe
	c.server.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// Refresh runs every probe once and updates the published statuses.
// It reports whether all probes passed.
func (c *Checker) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	healthy := true
	for service, probe := range c.probes {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := probe(probeCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if !c.failed[service] {
				c.logger.Warn().Err(err).Str("probe", service).Msg("health probe failing")
			}
		} else if c.failed[service] {
			c.logger.Info().Str("probe", service).Msg("health probe recovered")
		}
		c.failed[service] = err != nil
		c.server.SetServingStatus(service, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", overall)
	return healthy
}

// Run refreshes on every interval until ctx is done, then marks every
// service NOT_SERVING.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// NewServer creates a gRPC server with logging interceptors and the health
// service registered.
func NewServer(checker *Checker, logger zerolog.Logger, maxMessageSize int) *grpc.Server {
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.UnaryInterceptor(logging.GRPCLogger(logger)),
		grpc.StreamInterceptor(logging.GRPCStreamLogger(logger)),
	)
	healthpb.RegisterHealthServer(srv, checker.server)
	return srv
}
