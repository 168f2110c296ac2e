package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
	"google.golang.org/grpc"
	healthgrpc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FeedService is the health service name reporting the market data connection
const FeedService = "chartsync.feed"

// HealthServer exposes the feed connection state over the standard gRPC health protocol.
// The feed service is SERVING only while the connection is open
type HealthServer struct {
	health *healthgrpc.Server
	grpc   *grpc.Server
	log    *logger.Logger
}

// NewHealthServer creates a health server reporting NOT_SERVING until the feed connects
func NewHealthServer(log *logger.Logger) *HealthServer {
	if log == nil {
		log = logger.NewNop()
	}
	h := &HealthServer{
		health: healthgrpc.NewServer(),
		grpc:   grpc.NewServer(),
		log:    log.WithFields(logger.NewField("component", "health")),
	}
	h.health.SetServingStatus(FeedService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(h.grpc, h.health)
	return h
}

// Observe updates the feed status. It is meant to be passed to feed.Manager.WatchStatus
func (h *HealthServer) Observe(state models.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == models.StateConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(FeedService, status)
	h.log.Debug("feed health updated", logger.NewField("state", state.String()), logger.NewField("status", status.String()))
}

// Serve answers health checks on lis until ctx is done
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		h.log.Info("health server listening", logger.NewField("addr", lis.Addr().String()))
		errCh <- h.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on the given port and serves until ctx is done
func (h *HealthServer) ListenAndServe(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return h.Serve(ctx, lis)
}
