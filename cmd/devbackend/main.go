package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"sustainamind/carbontrack/internal/app"
	"sustainamind/carbontrack/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := app.NewDevBackend(cfg)
	if err != nil {
		log.Fatalf("create dev backend: %v", err)
	}

	if err := d.Run(ctx); err != nil {
		log.Fatalf("run dev backend: %v", err)
	}
}
