package main

import (
	"context"
	"log"
	"os"
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

	a, err := app.New(cfg)
	if err != nil {
		stop()
		log.Fatalf("create app: %v", err)
	}

	code := run(ctx, a, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err := a.Close(); err != nil {
		log.Printf("close app: %v", err)
	}
	stop()
	os.Exit(code)
}
