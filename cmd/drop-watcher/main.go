package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tonkilo/internal/config"
	"tonkilo/internal/storage"
	"tonkilo/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	var db *storage.DB
	if strings.TrimSpace(cfg.LedgerPath) != "" {
		db, err = storage.Open(cfg.LedgerPath)
		must(err)
		defer db.Close()
	}

	svc := watcher.NewService(db, cfg)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
