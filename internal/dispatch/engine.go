package dispatch

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/mailer"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/google/uuid"
)

// SendItem is one unsent result row joined with its recipient.
type SendItem struct {
	ResultID  uuid.UUID
	Token     string
	Recipient domain.Recipient
}

// CampaignSource provides the campaign reads the engine needs. The worker
// crosses tenants, so lookups are unscoped.
type CampaignSource interface {
	GetAny(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	// Status is the cheap per-send liveness check for cancellation.
	Status(ctx context.Context, id uuid.UUID) (domain.CampaignStatus, error)
}

// ResultSource provides the result reads and writes the engine needs.
type ResultSource interface {
	ListUnsent(ctx context.Context, campaignID uuid.UUID) ([]SendItem, error)
	// MarkSent stamps email_sent_at if not already set.
	MarkSent(ctx context.Context, resultID uuid.UUID, at time.Time) (bool, error)
	UnsentCount(ctx context.Context, campaignID uuid.UUID) (int, error)
}

// TemplateSource loads the campaign's template without tenant scoping.
type TemplateSource interface {
	GetAny(ctx context.Context, id uuid.UUID) (*domain.Template, error)
}

// CompanySource resolves the company name used in template bindings.
type CompanySource interface {
	CompanyName(ctx context.Context, id uuid.UUID) (string, error)
}

// Lifecycle is the slice of the campaign service the engine drives:
// auto-launching due campaigns and completing finished ones.
type Lifecycle interface {
	LaunchDue(ctx context.Context) (int, error)
	Complete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Engine is the background dispatch worker. One Engine runs per worker
// process; the Redis queue and rate limiter coordinate across processes.
type Engine struct {
	queue     *Queue
	limiter   *GlobalLimiter
	campaigns CampaignSource
	results   ResultSource
	templates TemplateSource
	companies CompanySource
	lifecycle Lifecycle
	mailer    mailer.Mailer

	personalizer *render.Personalizer
	tracker      *render.Tracker

	sendTimeout  time.Duration
	pollInterval time.Duration
	maxRetries   int

	rng    *rand.Rand
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Queue     *Queue
	Limiter   *GlobalLimiter
	Campaigns CampaignSource
	Results   ResultSource
	Templates TemplateSource
	Companies CompanySource
	Lifecycle Lifecycle
	Mailer    mailer.Mailer
	Tracker   *render.Tracker

	SendTimeout  time.Duration
	PollInterval time.Duration
	MaxRetries   int
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:        cfg.Queue,
		limiter:      cfg.Limiter,
		campaigns:    cfg.Campaigns,
		results:      cfg.Results,
		templates:    cfg.Templates,
		companies:    cfg.Companies,
		lifecycle:    cfg.Lifecycle,
		mailer:       cfg.Mailer,
		personalizer: render.NewPersonalizer(),
		tracker:      cfg.Tracker,
		sendTimeout:  cfg.SendTimeout,
		pollInterval: cfg.PollInterval,
		maxRetries:   cfg.MaxRetries,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the job loop and the scheduler loop.
func (e *Engine) Start() {
	log.Printf("[DispatchEngine] Starting (poll %s, send timeout %s)", e.pollInterval, e.sendTimeout)
	e.wg.Add(2)
	go e.jobLoop()
	go e.schedulerLoop()
}

// Stop signals both loops and waits for them to drain.
func (e *Engine) Stop() {
	log.Printf("[DispatchEngine] Stopping...")
	e.cancel()
	e.wg.Wait()
	log.Printf("[DispatchEngine] Stopped")
}

func (e *Engine) jobLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		job, err := e.queue.Dequeue(e.ctx, e.pollInterval)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			log.Printf("[DispatchEngine] Dequeue failed: %v", err)
			time.Sleep(e.pollInterval)
			continue
		}
		if job == nil {
			continue
		}
		e.processJob(e.ctx, *job)
	}
}

// schedulerLoop auto-launches scheduled campaigns whose time has arrived.
func (e *Engine) schedulerLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			n, err := e.lifecycle.LaunchDue(e.ctx)
			if err != nil {
				log.Printf("[DispatchEngine] Scheduler pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[DispatchEngine] Auto-launched %d due campaign(s)", n)
			}
		}
	}
}

// processJob sends every unsent email for one campaign, then either
// completes the campaign or requeues the remainder.
func (e *Engine) processJob(ctx context.Context, job Job) {
	c, err := e.campaigns.GetAny(ctx, job.CampaignID)
	if err != nil {
		log.Printf("[DispatchEngine] Campaign %s load failed: %v", job.CampaignID, err)
		return
	}
	if c.Status != domain.CampaignStatusRunning {
		log.Printf("[DispatchEngine] Campaign %s is %s, skipping job", c.ID, c.Status)
		return
	}

	tmpl, err := e.templates.GetAny(ctx, c.TemplateID)
	if err != nil {
		log.Printf("[DispatchEngine] Campaign %s template load failed: %v", c.ID, err)
		return
	}
	companyName, err := e.companies.CompanyName(ctx, c.CompanyID)
	if err != nil {
		log.Printf("[DispatchEngine] Campaign %s company lookup failed: %v", c.ID, err)
		companyName = ""
	}

	items, err := e.results.ListUnsent(ctx, c.ID)
	if err != nil {
		log.Printf("[DispatchEngine] Campaign %s unsent listing failed: %v", c.ID, err)
		return
	}

	interval := sendInterval(c.Settings.SendRatePerHour)
	log.Printf("[DispatchEngine] Campaign %s: %d unsent, interval %s (attempt %d)",
		c.ID, len(items), interval, job.Attempt)

	sent, failed := 0, 0
	for i, item := range items {
		if ctx.Err() != nil {
			return
		}

		// Cancellation check before every send. Already-sent emails keep
		// tracking; we just stop producing new ones.
		status, err := e.campaigns.Status(ctx, c.ID)
		if err != nil {
			log.Printf("[DispatchEngine] Campaign %s status check failed: %v", c.ID, err)
			return
		}
		if status != domain.CampaignStatusRunning {
			log.Printf("[DispatchEngine] Campaign %s became %s mid-batch, stopping after %d sends",
				c.ID, status, sent)
			return
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return
		}

		if err := e.sendOne(ctx, c, tmpl, companyName, item); err != nil {
			log.Printf("[DispatchEngine] Send to %s failed: %v", item.Recipient.Email, err)
			failed++
		} else {
			sent++
		}

		if i < len(items)-1 {
			delay := interval
			if c.Settings.RandomizeSendTimes {
				delay += jitterDelay(e.rng)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}

	e.finishJob(ctx, job, c.ID, sent, failed)
}

func (e *Engine) finishJob(ctx context.Context, job Job, campaignID uuid.UUID, sent, failed int) {
	remaining, err := e.results.UnsentCount(ctx, campaignID)
	if err != nil {
		log.Printf("[DispatchEngine] Campaign %s unsent count failed: %v", campaignID, err)
		return
	}
	if remaining == 0 {
		if ok, err := e.lifecycle.Complete(ctx, campaignID); err != nil {
			log.Printf("[DispatchEngine] Campaign %s completion failed: %v", campaignID, err)
		} else if ok {
			log.Printf("[DispatchEngine] Campaign %s completed (%d sent, %d failed)", campaignID, sent, failed)
		}
		return
	}
	if job.Attempt+1 >= e.maxRetries {
		log.Printf("[DispatchEngine] Campaign %s: %d rows still unsent after %d attempts, completing anyway",
			campaignID, remaining, job.Attempt+1)
		if _, err := e.lifecycle.Complete(ctx, campaignID); err != nil {
			log.Printf("[DispatchEngine] Campaign %s completion failed: %v", campaignID, err)
		}
		return
	}
	log.Printf("[DispatchEngine] Campaign %s: %d rows unsent, requeueing", campaignID, remaining)
	if err := e.queue.Requeue(ctx, job); err != nil {
		log.Printf("[DispatchEngine] Campaign %s requeue failed: %v", campaignID, err)
	}
}

// sendOne renders, tracks and delivers a single email, then stamps the row.
func (e *Engine) sendOne(ctx context.Context, c *domain.Campaign, tmpl *domain.Template, companyName string, item SendItem) error {
	bindings := render.Bindings(item.Recipient, companyName)

	subject := e.personalizer.Render(tmpl.ID.String()+":subject", tmpl.Subject, bindings)
	html := e.personalizer.Render(tmpl.ID.String()+":html", tmpl.HTMLBody, bindings)
	html = e.tracker.Inject(html, item.Token, c.Settings.TrackOpens, c.Settings.TrackClicks)

	var text string
	if tmpl.TextBody != "" {
		text = e.personalizer.Render(tmpl.ID.String()+":text", tmpl.TextBody, bindings)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	msg := &mailer.Message{
		To:         item.Recipient.Email,
		Subject:    subject,
		HTMLBody:   html,
		TextBody:   text,
		FromName:   tmpl.FromName,
		FromEmail:  tmpl.FromEmail,
		CampaignID: c.ID.String(),
	}
	if err := e.mailer.Send(sendCtx, msg); err != nil {
		return err
	}

	if _, err := e.results.MarkSent(ctx, item.ResultID, time.Now().UTC()); err != nil {
		// Email went out but the stamp failed; the row will be retried and
		// the duplicate send is accepted over a lost one.
		log.Printf("[DispatchEngine] MarkSent for result %s failed: %v", item.ResultID, err)
	}
	return nil
}

// sendInterval converts a per-hour rate into the gap between sends.
func sendInterval(ratePerHour int) time.Duration {
	if ratePerHour <= 0 {
		ratePerHour = domain.DefaultSendRatePerHour
	}
	return time.Hour / time.Duration(ratePerHour)
}

// jitterDelay returns a random 1-10s delay used to break up burst patterns.
func jitterDelay(rng *rand.Rand) time.Duration {
	return time.Duration(1+rng.Intn(10)) * time.Second
}
