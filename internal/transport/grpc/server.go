// Package grpc exposes the bridge's liveness over the standard gRPC health
// protocol.
package grpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

type ServerConfig struct {
	Address string
}

type Server struct {
	server  *grpc.Server
	monitor *HealthMonitor
	config  ServerConfig
	lis     net.Listener
}

func NewServer(bus domain.EventBus, status StatusReader, config ServerConfig) *Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(),
			RecoveryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(),
			StreamRecoveryInterceptor(),
		),
	)

	monitor := NewHealthMonitor(health.NewServer(), bus, status)
	healthpb.RegisterHealthServer(server, monitor.Health())
	reflection.Register(server)

	return &Server{
		server:  server,
		monitor: monitor,
		config:  config,
	}
}

// Listen binds the configured address; Serve then uses it. Calling Start
// does both.
func (s *Server) Listen() (net.Addr, error) {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, err
	}
	s.lis = lis
	return lis.Addr(), nil
}

func (s *Server) Serve() error {
	s.monitor.Start()
	return s.server.Serve(s.lis)
}

func (s *Server) Start() error {
	if s.lis == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	return s.Serve()
}

func (s *Server) Stop() {
	s.monitor.Stop()
	s.server.GracefulStop()
}
