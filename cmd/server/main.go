package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/segtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment variables
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port")
	flag.StringVar(&cfg.Server.GRPCPort, "grpc-port", cfg.Server.GRPCPort, "gRPC port, empty to disable")
	flag.StringVar(&cfg.Recorder.ServiceName, "service", cfg.Recorder.ServiceName, "Segment name")
	flag.StringVar(&cfg.Emitter.Kind, "emitter", cfg.Emitter.Kind, "Emitter: udp, http, log or none")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Emitter.DrainTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
