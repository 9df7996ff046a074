package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/order-reconciler/internal/api"
	"github.com/ignite/order-reconciler/internal/app"
	"github.com/ignite/order-reconciler/internal/config"
	"github.com/ignite/order-reconciler/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: Run 'lsof -i' to find the blocking process", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	withWorker := flag.Bool("worker", false, "also run the scheduled import and build loop in this process")
	flag.Parse()

	log.Println("Starting order reconciler API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	h := api.NewHandlers(a.Pipeline)
	if a.Banned != nil {
		h.SetBanned(a.Banned, a.BannedCache)
	}
	var s3Client api.BucketHeader
	if a.S3 != nil {
		s3Client = a.S3
	}
	hc := api.NewHealthChecker(a.DB, a.Redis, s3Client, cfg.Export.Bucket, a.Pipeline)
	router := api.SetupRoutes(h, hc, api.RouteOptions{
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        a.Metrics.Handler(),
	})
	if cfg.Server.APIToken == "" {
		log.Println("WARNING: server.api_token is empty, /api routes are unauthenticated")
	}

	if *withWorker {
		go worker.NewBuildScheduler(a.Pipeline, cfg.Worker.Interval()).Start(ctx)
		log.Println("Build scheduler started in-process")
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// A build invocation runs up to its soft limit plus one chunk.
		WriteTimeout: cfg.Build.SoftLimit() + 2*time.Minute,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
