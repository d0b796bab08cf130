package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisawareness/phishsim/internal/api"
	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/aegisawareness/phishsim/internal/dispatch"
	"github.com/aegisawareness/phishsim/internal/repository/postgres"
	"github.com/aegisawareness/phishsim/internal/service/analytics"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/aegisawareness/phishsim/internal/service/template"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("[Server] Starting admin API...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("[Server] Failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("[Server] Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("[Server] Connected to database")

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("[Server] Invalid redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	templateRepo := postgres.NewTemplateRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	resultRepo := postgres.NewResultRepo(db)
	userDir := postgres.NewUserDirectory(db)
	statsRepo := postgres.NewStatsRepo(db)
	queue := dispatch.NewQueue(rdb)

	templateSvc := template.NewService(templateRepo)
	campaignSvc := campaign.NewService(campaignRepo, resultRepo, userDir, templateRepo, queue)
	analyticsSvc := analytics.NewService(statsRepo, cfg.Compliance)

	srv := api.NewServer(cfg.Server, templateSvc, campaignSvc, analyticsSvc)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("[Server] Listener failed: %v", err)
	case sig := <-sigCh:
		log.Printf("[Server] Received %v, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}
