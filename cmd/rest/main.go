package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"itinerary-collab-be/internal/bootstrap"
	"itinerary-collab-be/internal/config"
	"itinerary-collab-be/internal/server"
	"itinerary-collab-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.App.JwtSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer, err := tracer.InitTracer(context.Background(), cfg.App)
	if err != nil {
		log.Printf("Warning: %v (tracing disabled)", err)
	}
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	defer container.Close()

	// 3. Start Background Services
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Snapshot consumer failed to start: %v", err)
	}

	// 4. Initialize Server
	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// closing sockets makes every client leave its session, which saves
		// the last snapshot of each document
		container.WebSocketHub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return container.Registry.Drain(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped: %v", err)
	}
}
