package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/repository"
	"github.com/joseph-ayodele/ocr-fusion/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "listen address (overrides server.grpc_addr)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err == nil {
		if *addr != "" {
			cfg.Server.GRPCAddr = *addr
		}
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.LoggingInterceptor(logger)))
	// Health service
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	// Run store health is reported on the health service when one is configured
	if cfg.Store.DSN != "" {
		store, err := repository.Open(ctx, repository.FromConfig(cfg.Store), logger)
		if err != nil {
			logger.Error("opening run store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		go watchStore(ctx, store, hs)
	}

	fuser := fusion.NewFuser(fusion.WithLogger(logger), fusion.WithWeights(cfg.Fusion.Weights))
	server.RegisterFusionServer(grpcServer, server.NewFusionService(fuser, logger))
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("gRPC serving", "addr", lis.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("grpc serve", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("shutting down...")
	hs.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		logger.Warn("graceful stop timed out, forcing")
		grpcServer.Stop()
	}
	logger.Info("stopped")
}

// watchStore flips the overall health status with the run store's reachability.
func watchStore(ctx context.Context, store *repository.Store, hs *health.Server) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := healthpb.HealthCheckResponse_SERVING
			if err := store.HealthCheck(ctx, 3*time.Second); err != nil {
				st = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus("", st)
		}
	}
}
