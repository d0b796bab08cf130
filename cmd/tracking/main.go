package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/aegisawareness/phishsim/internal/repository/postgres"
	"github.com/aegisawareness/phishsim/internal/tracking"
)

// The tracking service is deployed separately from the admin API: it is the
// only internet-facing surface, it carries no authentication, and it must
// stay up for the whole window a campaign's emails are live in inboxes.
func main() {
	log.Println("[Tracking] Starting tracking endpoints...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("[Tracking] Failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("[Tracking] Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("[Tracking] Connected to database")

	handler := tracking.NewHandler(postgres.NewResultRepo(db), cfg.Tracking.DefaultRedirectURL)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Tracking.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Tracking] Listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("[Tracking] Listener failed: %v", err)
	case sig := <-sigCh:
		log.Printf("[Tracking] Received %v, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Tracking] Shutdown error: %v", err)
	}
	log.Println("[Tracking] Stopped")
}
