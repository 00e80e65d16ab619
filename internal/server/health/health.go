// Package health exposes the standard gRPC health service and keeps its status
// in sync with database reachability.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the storage backend. The empty name
// reflects overall server health and follows it.
const Service = "msgstore.Storage"

// Pinger is implemented by *postgres.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor pings the database periodically and publishes the result.
type Monitor struct {
	db       Pinger
	srv      *health.Server
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	serving  bool
}

// NewMonitor returns a monitor publishing into a fresh health server.
// Both services start as NOT_SERVING until the first successful ping.
func NewMonitor(db Pinger, interval time.Duration, log *zap.Logger) *Monitor {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	timeout := interval / 2
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Monitor{db: db, srv: srv, interval: interval, timeout: timeout, log: log}
}

// Check pings once and updates the published status.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.db.Ping(ctx)
	ok := err == nil
	if ok != m.serving {
		if ok {
			m.log.Info("database reachable")
		} else {
			m.log.Warn("database unreachable", zap.Error(err))
		}
	}
	m.serving = ok

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	m.srv.SetServingStatus("", st)
	m.srv.SetServingStatus(Service, st)
	return ok
}

// Run checks immediately and then every interval until ctx is done, after
// which both services are marked NOT_SERVING for good.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.srv.Shutdown()
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// HealthServer returns the underlying health implementation.
func (m *Monitor) HealthServer() healthpb.HealthServer { return m.srv }

// NewServer builds a gRPC server serving the monitor's health service.
func NewServer(m *Monitor, log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, m.srv)
	return s
}
