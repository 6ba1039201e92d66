package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wei/internal/config"
	"wei/internal/erp"
	"wei/internal/extract"
	"wei/internal/listener"
	"wei/internal/llm"
	"wei/internal/pipeline"
	"wei/internal/reconcile"
	"wei/internal/refdata"
	"wei/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	client := llm.NewClient(cfg, log)
	ref := refdata.NewCache(cfg, log)
	orch := extract.NewOrchestrator(client, cfg, log)
	engine := reconcile.NewEngine(client, cfg, log)
	sched := pipeline.NewScheduler(db, cfg, ref, orch, engine, erp.NewClient(cfg, log), erp.NewLogExecutor(log), log)

	svc := listener.NewService(db, cfg, sched, log)
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
