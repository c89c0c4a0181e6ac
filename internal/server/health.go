package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the agent.
const ServiceName = "lark-agent"

// Prober checks that the remote tool server is reachable.
type Prober interface {
	Probe(ctx context.Context) (int, error)
}

// HealthServer exposes grpc.health.v1.Health and keeps the agent's status in
// line with the remote tool server.
type HealthServer struct {
	health   *health.Server
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthServer creates a HealthServer. Both services start NOT_SERVING
// until the first probe completes.
func NewHealthServer(prober Prober, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{
		health:   h,
		prober:   prober,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Run probes immediately and then on every interval until ctx is done, after
// which all services report NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs a single probe and updates the serving status.
func (h *HealthServer) ProbeOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	tools, err := h.prober.Probe(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("tool server probe failed", zap.Error(err))
	} else {
		h.logger.Debug("tool server probe ok", zap.Int("tools", tools))
	}

	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}
