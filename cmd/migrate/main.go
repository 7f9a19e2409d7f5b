package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"livex/config"
	"livex/pkg/database"
	"livex/pkg/logger"
)

const usage = `
livex - event log database tool

Usage:
  migrate [command]

Commands:
  up          Apply the embedded event log migrations
  status      Check the database connection
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	l := logger.New(cfg.LogMode)
	defer l.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL, l)
	if err != nil {
		l.Errorf("connect: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	switch flag.Arg(0) {
	case "up":
		if err := database.ApplyMigrations(ctx, pool, l); err != nil {
			l.Errorf("migrate up: %v", err)
			os.Exit(1)
		}
		l.Infof("migrations applied")
	case "status":
		if err := database.HealthCheck(ctx, pool); err != nil {
			l.Errorf("database unhealthy: %v", err)
			os.Exit(1)
		}
		l.Infof("database reachable")
	default:
		flag.Usage()
		os.Exit(2)
	}
}
