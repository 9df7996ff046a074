package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/order-reconciler/internal/app"
	"github.com/ignite/order-reconciler/internal/config"
	"github.com/ignite/order-reconciler/internal/pipeline"
	"github.com/ignite/order-reconciler/internal/worker"
)

// noImports runs the build step only.
type noImports struct{ p *pipeline.Pipeline }

func (n noImports) Tick(ctx context.Context) (pipeline.Outcome, error) { return n.p.Build(ctx) }

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("Starting order reconciler worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	var cycler worker.Cycler = a.Pipeline
	if !cfg.Worker.RunImports {
		cycler = noImports{a.Pipeline}
	}
	go worker.NewBuildScheduler(cycler, cfg.Worker.Interval()).Start(ctx)
	log.Printf("Build scheduler started (imports=%t)", cfg.Worker.RunImports)

	if a.DB != nil {
		go worker.NewEventRetentionWorker(a.DB, cfg.Worker.EventRetention()).Start(ctx)
		log.Println("Event retention worker started")
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	log.Println("Worker stopped")
}
