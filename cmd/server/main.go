// Command msgstore-server applies the schema, opens the stores and serves the
// gRPC health endpoint until interrupted.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/msgstore/internal/config"
	"github.com/and161185/msgstore/internal/migrate"
	"github.com/and161185/msgstore/internal/server/health"
	"github.com/and161185/msgstore/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations and keeps the storage health service up.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("health_addr", cfg.HealthAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DSN(), logger.Named("migrate"))
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	st, err := storage.Open(ctx, cfg, logger.Named("storage"))
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer st.Close()

	if peers, err := st.Network.GetList(ctx); err != nil {
		logger.Warn("load federation directory", zap.Error(err))
	} else {
		logger.Info("federation directory loaded", zap.Int("servers", len(peers)))
	}

	mon := health.NewMonitor(st.DB, cfg.HealthInterval, logger.Named("health"))
	go mon.Run(ctx)

	s := health.NewServer(mon, logger.Named("grpc"))
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HealthAddr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		st.Close()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
