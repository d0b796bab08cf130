package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/aegisawareness/phishsim/internal/dispatch"
	"github.com/aegisawareness/phishsim/internal/mailer"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/aegisawareness/phishsim/internal/repository/postgres"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("[Worker] Starting dispatch worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("[Worker] Failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("[Worker] Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("[Worker] Connected to database")

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("[Worker] Invalid redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[Worker] Failed to connect to redis: %v", err)
	}
	log.Println("[Worker] Connected to redis")

	sesMailer, err := mailer.NewSESMailer(ctx, cfg.SES.Region, cfg.SES.ConfigSet)
	if err != nil {
		log.Fatalf("[Worker] Failed to init SES: %v", err)
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	resultRepo := postgres.NewResultRepo(db)
	templateRepo := postgres.NewTemplateRepo(db)
	userDir := postgres.NewUserDirectory(db)

	queue := dispatch.NewQueue(rdb)
	lifecycle := campaign.NewService(campaignRepo, resultRepo, userDir, templateRepo, queue)

	engine := dispatch.NewEngine(dispatch.EngineConfig{
		Queue:     queue,
		Limiter:   dispatch.NewGlobalLimiter(rdb, cfg.Dispatch.GlobalRatePerMinute),
		Campaigns: campaignRepo,
		Results:   resultRepo,
		Templates: templateRepo,
		Companies: userDir,
		Lifecycle: lifecycle,
		Mailer:    sesMailer,
		Tracker:   &render.Tracker{BaseURL: cfg.Tracking.BaseURL},

		SendTimeout:  cfg.SES.Timeout(),
		PollInterval: cfg.Dispatch.PollInterval(),
		MaxRetries:   cfg.Dispatch.MaxJobRetries,
	})

	engine.Start()
	log.Printf("[Worker] Dispatch engine running (global cap %d/min)", cfg.Dispatch.GlobalRatePerMinute)

	// Heartbeat so operators can see queue depth in the logs.
	hbCtx, hbCancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if n, err := queue.Len(hbCtx); err == nil {
					log.Printf("[Worker] Heartbeat: %d job(s) queued", n)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[Worker] Received %v, shutting down...", sig)

	hbCancel()
	engine.Stop()
	log.Println("[Worker] Stopped")
}
