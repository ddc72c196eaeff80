package main

import (
	"context"
	"log"

	"custodia/internal/app"
	"custodia/internal/config"
	httpinfra "custodia/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to init: %v", err)
	}

	srv := httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Store:       a.Store,
		Register:    a.Register,
		Pipeline:    a.Pipeline,
		Reconcile:   a.Reconcile,
		Ledger:      a.Ledger,
		Custody:     a.Custody,
		Attempts:    a.Attempts,
		AdminAPIKey: cfg.AdminAPIKey,
	})
	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
