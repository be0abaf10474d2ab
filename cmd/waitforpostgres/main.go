package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"sustainamind/carbontrack/internal/session"
)

// waitforpostgres blocks until the session database answers, then optionally
// creates the session table so the first client start does not race on it.
func main() {
	timeout := flag.Duration("timeout", 60*time.Second, "how long to wait")
	initSchema := flag.Bool("init-schema", false, "create the session table once reachable")
	namespace := flag.String("namespace", "default", "session namespace used for -init-schema")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("TEST_POSTGRES_DSN")
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL or TEST_POSTGRES_DSN is required")
		os.Exit(2)
	}
	if *timeout <= 0 {
		fmt.Fprintf(os.Stderr, "invalid -timeout: %s\n", *timeout)
		os.Exit(2)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := waitReady(db, *timeout, 2*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("postgres ready")

	if *initSchema {
		if _, err := session.NewPostgresKV(db, *namespace); err != nil {
			fmt.Fprintf(os.Stderr, "init session schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("session schema ready")
	}
}

func waitReady(db *sql.DB, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
		}
		time.Sleep(interval)
	}
}
