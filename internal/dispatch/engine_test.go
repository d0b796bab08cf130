package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/mailer"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/google/uuid"
)

type fakeCampaigns struct {
	mu       sync.Mutex
	campaign *domain.Campaign
	// cancelAfter flips the campaign to cancelled once this many status
	// checks have happened. Zero means never.
	cancelAfter int
	checks      int
}

func (f *fakeCampaigns) GetAny(_ context.Context, _ uuid.UUID) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.campaign
	return &cp, nil
}

func (f *fakeCampaigns) Status(_ context.Context, _ uuid.UUID) (domain.CampaignStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.cancelAfter > 0 && f.checks > f.cancelAfter {
		f.campaign.Status = domain.CampaignStatusCancelled
	}
	return f.campaign.Status, nil
}

type fakeResults struct {
	mu    sync.Mutex
	items []SendItem
	sent  map[uuid.UUID]time.Time
}

func newFakeResults(n int) *fakeResults {
	f := &fakeResults{sent: make(map[uuid.UUID]time.Time)}
	for i := 0; i < n; i++ {
		f.items = append(f.items, SendItem{
			ResultID: uuid.New(),
			Token:    uuid.NewString(),
			Recipient: domain.Recipient{
				ID:        uuid.New(),
				Email:     uuid.NewString() + "@corp.test",
				FirstName: "Pat",
			},
		})
	}
	return f
}

func (f *fakeResults) ListUnsent(_ context.Context, _ uuid.UUID) ([]SendItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SendItem
	for _, it := range f.items {
		if _, ok := f.sent[it.ResultID]; !ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeResults) MarkSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sent[id]; ok {
		return false, nil
	}
	f.sent[id] = at
	return true, nil
}

func (f *fakeResults) UnsentCount(_ context.Context, _ uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - len(f.sent), nil
}

type fakeTemplates struct{ tmpl *domain.Template }

func (f *fakeTemplates) GetAny(_ context.Context, _ uuid.UUID) (*domain.Template, error) {
	return f.tmpl, nil
}

type fakeCompanies struct{}

func (fakeCompanies) CompanyName(_ context.Context, _ uuid.UUID) (string, error) {
	return "Acme Corp", nil
}

type fakeLifecycle struct {
	mu        sync.Mutex
	completed []uuid.UUID
}

func (f *fakeLifecycle) LaunchDue(_ context.Context) (int, error) { return 0, nil }

func (f *fakeLifecycle) Complete(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return true, nil
}

type fakeMailer struct {
	mu       sync.Mutex
	sent     []*mailer.Message
	failFor  string // fail sends to this address
}

func (f *fakeMailer) Send(_ context.Context, msg *mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && msg.To == f.failFor {
		return errors.New("smtp 451 temporary failure")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testEngine(t *testing.T, campaigns *fakeCampaigns, results *fakeResults, m *fakeMailer, maxRetries int) (*Engine, *Queue, *fakeLifecycle) {
	t.Helper()
	rdb := testRedis(t)
	q := NewQueue(rdb)
	lc := &fakeLifecycle{}
	e := NewEngine(EngineConfig{
		Queue:     q,
		Limiter:   NewGlobalLimiter(rdb, 1_000_000),
		Campaigns: campaigns,
		Results:   results,
		Templates: &fakeTemplates{tmpl: &domain.Template{
			ID:        uuid.New(),
			Subject:   "Hi {{ first_name }}",
			FromName:  "IT",
			FromEmail: "it@notices.test",
			HTMLBody:  `<html><body><a href="https://portal.test/login">Login</a></body></html>`,
		}},
		Companies:  fakeCompanies{},
		Lifecycle:  lc,
		Mailer:     m,
		Tracker:    &render.Tracker{BaseURL: "https://t.test"},
		MaxRetries: maxRetries,
	})
	return e, q, lc
}

func runningCampaign(ratePerHour int) *fakeCampaigns {
	now := time.Now()
	return &fakeCampaigns{campaign: &domain.Campaign{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		Status:    domain.CampaignStatusRunning,
		StartedAt: &now,
		Settings: domain.CampaignSettings{
			TrackOpens:      true,
			TrackClicks:     true,
			SendRatePerHour: ratePerHour,
		},
	}}
}

func TestProcessJobSendsAllAndCompletes(t *testing.T) {
	campaigns := runningCampaign(36_000_000) // effectively no pacing
	results := newFakeResults(10)
	m := &fakeMailer{}
	e, _, lc := testEngine(t, campaigns, results, m, 3)

	e.processJob(context.Background(), Job{CampaignID: campaigns.campaign.ID})

	if len(m.sent) != 10 {
		t.Fatalf("sent %d emails, want 10", len(m.sent))
	}
	if n, _ := results.UnsentCount(context.Background(), campaigns.campaign.ID); n != 0 {
		t.Fatalf("%d rows still unsent", n)
	}
	if len(lc.completed) != 1 || lc.completed[0] != campaigns.campaign.ID {
		t.Fatalf("campaign not completed: %v", lc.completed)
	}

	// Every message carries personalization and that recipient's tracking.
	first := m.sent[0]
	if first.Subject != "Hi Pat" {
		t.Fatalf("subject not personalized: %q", first.Subject)
	}
	if !strings.Contains(first.HTMLBody, "/phishing/track/") {
		t.Fatal("tracking not injected")
	}
}

func TestProcessJobPartialFailureRequeues(t *testing.T) {
	campaigns := runningCampaign(36_000_000)
	results := newFakeResults(3)
	m := &fakeMailer{failFor: results.items[1].Recipient.Email}
	e, q, lc := testEngine(t, campaigns, results, m, 3)

	e.processJob(context.Background(), Job{CampaignID: campaigns.campaign.ID})

	if len(m.sent) != 2 {
		t.Fatalf("sent %d, want 2 (one failure tolerated)", len(m.sent))
	}
	if n, _ := results.UnsentCount(context.Background(), campaigns.campaign.ID); n != 1 {
		t.Fatalf("unsent = %d, want 1", n)
	}
	if len(lc.completed) != 0 {
		t.Fatal("campaign must not complete with unsent rows and retries left")
	}
	job, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || job == nil {
		t.Fatalf("expected requeued job, got %v %v", job, err)
	}
	if job.Attempt != 1 {
		t.Fatalf("requeued attempt = %d, want 1", job.Attempt)
	}
}

func TestProcessJobExhaustedRetriesCompletes(t *testing.T) {
	campaigns := runningCampaign(36_000_000)
	results := newFakeResults(2)
	m := &fakeMailer{failFor: results.items[0].Recipient.Email}
	e, q, lc := testEngine(t, campaigns, results, m, 3)

	e.processJob(context.Background(), Job{CampaignID: campaigns.campaign.ID, Attempt: 2})

	if len(lc.completed) != 1 {
		t.Fatal("exhausted retries should still complete the campaign")
	}
	if job, _ := q.Dequeue(context.Background(), 50*time.Millisecond); job != nil {
		t.Fatalf("no requeue expected after final attempt, got %+v", job)
	}
}

func TestProcessJobStopsOnCancellation(t *testing.T) {
	campaigns := runningCampaign(36_000_000)
	campaigns.cancelAfter = 2 // cancelled after the second pre-send check
	results := newFakeResults(5)
	m := &fakeMailer{}
	e, _, lc := testEngine(t, campaigns, results, m, 3)

	e.processJob(context.Background(), Job{CampaignID: campaigns.campaign.ID})

	if len(m.sent) != 2 {
		t.Fatalf("sent %d, want 2 before cancellation took effect", len(m.sent))
	}
	if len(lc.completed) != 0 {
		t.Fatal("cancelled campaign must not be completed")
	}
}

func TestProcessJobSkipsNonRunning(t *testing.T) {
	campaigns := runningCampaign(36_000_000)
	campaigns.campaign.Status = domain.CampaignStatusCancelled
	results := newFakeResults(3)
	m := &fakeMailer{}
	e, _, _ := testEngine(t, campaigns, results, m, 3)

	e.processJob(context.Background(), Job{CampaignID: campaigns.campaign.ID})

	if len(m.sent) != 0 {
		t.Fatalf("no emails should go out for a %s campaign", campaigns.campaign.Status)
	}
}

func TestSendInterval(t *testing.T) {
	if got := sendInterval(3600); got != time.Second {
		t.Fatalf("3600/hr = %s, want 1s", got)
	}
	if got := sendInterval(100); got != 36*time.Second {
		t.Fatalf("100/hr = %s, want 36s", got)
	}
	// Zero falls back to the default rate rather than dividing by zero.
	if got := sendInterval(0); got != time.Hour/time.Duration(domain.DefaultSendRatePerHour) {
		t.Fatalf("unexpected fallback interval %s", got)
	}
}

func TestJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		d := jitterDelay(rng)
		if d < time.Second || d > 10*time.Second {
			t.Fatalf("jitter %s outside 1-10s", d)
		}
	}
}
