package dependencies

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"vidgen/internal/studio"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service that follows the credential gate.
const ServiceName = "vidgen"

// Rpc exposes grpc.health.v1 so probes can tell whether the studio can
// generate. The overall ("") service is always SERVING while the listener is up.
type Rpc struct {
	port   string
	server *grpc.Server
	health *health.Server
	logger *log.Logger

	mu      sync.Mutex
	lis     net.Listener
	serving bool
}

func NewRpc(port string) *Rpc {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Rpc{
		port:   port,
		server: s,
		health: h,
		logger: log.With("component", "rpc"),
	}
}

// Start blocks serving on the configured port.
func (r *Rpc) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprint(":", r.port))
	if err != nil {
		return fmt.Errorf("error listening for rpc: %w", err)
	}
	return r.Serve(lis)
}

func (r *Rpc) Serve(lis net.Listener) error {
	r.mu.Lock()
	r.lis = lis
	r.mu.Unlock()

	r.logger.Info("grpc health listening", "addr", lis.Addr().String())
	return r.server.Serve(lis)
}

// Observe tracks a controller snapshot. Only credential changes touch the
// health server.
func (r *Rpc) Observe(s studio.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.HasCredential == r.serving {
		return
	}
	r.serving = s.HasCredential

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.HasCredential {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.health.SetServingStatus(ServiceName, status)
	r.logger.Debug("health status changed", "service", ServiceName, "status", status.String())
}

func (r *Rpc) Close(ctx context.Context) error {
	r.health.Shutdown()

	done := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.server.Stop()
		return ctx.Err()
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		r.server.Stop()
		return fmt.Errorf("grpc graceful stop timed out")
	}
}
