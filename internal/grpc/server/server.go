package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported by the health service alongside the empty
// (whole server) name.
const ServiceName = "autoscrip.Provisioning"

type Config struct {
	Enabled bool      `mapstructure:"enabled"`
	Port    int       `mapstructure:"port"`
	TLS     TLSConfig `mapstructure:"tls"`
}

// Server exposes grpc.health.v1.Health so load balancers and orchestrators
// can probe the process.
type Server struct {
	port       int
	tlsConfig  TLSConfig
	health     *health.Server
	mu         sync.Mutex
	grpcServer *grpc.Server
}

func NewServer(cfg Config) *Server {
	return &Server{
		port:      cfg.Port,
		tlsConfig: cfg.TLS,
		health:    health.NewServer(),
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	slog.Info("Starting gRPC server", "port", s.port, "tls", s.tlsConfig.Enabled)
	return s.Serve(lis)
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	var opts []grpc.ServerOption
	if s.tlsConfig.Enabled {
		creds, err := loadServerCredentials(s.tlsConfig)
		if err != nil {
			lis.Close()
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, s.health)
	s.SetServing(true)

	s.mu.Lock()
	s.grpcServer = srv
	s.mu.Unlock()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// SetServing flips the reported health of the server and the
// provisioning service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping gRPC server")
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		slog.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		slog.Warn("gRPC server stop timeout, forcing shutdown")
		srv.Stop()
	}
	return nil
}

func (s *Server) StopWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Stop(ctx)
}
