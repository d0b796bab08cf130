package tracking_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/tracking"
)

// memStore implements first-write-wins marks over an in-memory row set.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]*domain.Result
	settings map[string]domain.CampaignSettings // keyed by token
}

func newMemStore() *memStore {
	return &memStore{
		rows:     make(map[string]*domain.Result),
		settings: make(map[string]domain.CampaignSettings),
	}
}

func (m *memStore) add(token string, s domain.CampaignSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[token] = &domain.Result{TrackingToken: token}
	m.settings[token] = s
}

func (m *memStore) mark(token string, at time.Time, field **time.Time) bool {
	if *field != nil {
		return false
	}
	t := at
	*field = &t
	return true
}

func (m *memStore) MarkOpened(_ context.Context, token string, at time.Time, _ tracking.EventMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return false, nil
	}
	return m.mark(token, at, &r.EmailOpenedAt), nil
}

func (m *memStore) MarkClicked(_ context.Context, token string, at time.Time, _ tracking.EventMeta) (tracking.ClickOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return tracking.ClickOutcome{}, nil
	}
	return tracking.ClickOutcome{
		Found:    true,
		First:    m.mark(token, at, &r.LinkClickedAt),
		Settings: m.settings[token],
	}, nil
}

func (m *memStore) MarkSubmitted(_ context.Context, token string, at time.Time, _ tracking.EventMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return false, nil
	}
	return m.mark(token, at, &r.DataSubmittedAt), nil
}

func (m *memStore) MarkReported(_ context.Context, token string, at time.Time, _ tracking.EventMeta) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[token]
	if !ok {
		return false, nil
	}
	return m.mark(token, at, &r.ReportedAt), nil
}

const defaultRedirect = "https://awareness.example.com/why"

func setup() (*memStore, http.Handler) {
	store := newMemStore()
	return store, tracking.NewHandler(store, defaultRedirect).Routes()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestOpenIsIdempotent(t *testing.T) {
	store, h := setup()
	store.add("tok1", domain.CampaignSettings{})

	w1 := get(h, "/phishing/track/tok1/open")
	if w1.Code != http.StatusOK || w1.Header().Get("Content-Type") != "image/gif" {
		t.Fatalf("expected gif response, got %d %s", w1.Code, w1.Header().Get("Content-Type"))
	}
	opened := *store.rows["tok1"].EmailOpenedAt

	time.Sleep(5 * time.Millisecond)
	w2 := get(h, "/phishing/track/tok1/open")
	if w2.Code != http.StatusOK {
		t.Fatalf("replay should still return 200, got %d", w2.Code)
	}
	if !store.rows["tok1"].EmailOpenedAt.Equal(opened) {
		t.Fatal("replayed open must not overwrite the first timestamp")
	}
	if w1.Body.String() != w2.Body.String() {
		t.Fatal("first and replayed open must return identical bodies")
	}
}

func TestOpenUnknownTokenSameResponse(t *testing.T) {
	store, h := setup()
	store.add("tok1", domain.CampaignSettings{})

	known := get(h, "/phishing/track/tok1/open")
	unknown := get(h, "/phishing/track/doesnotexist/open")

	if known.Code != unknown.Code {
		t.Fatalf("status mismatch: %d vs %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatal("unknown token must be indistinguishable from a valid one")
	}
}

func TestClickRedirectPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		settings domain.CampaignSettings
		want     string
	}{
		{"training url wins on first click", domain.CampaignSettings{
			TrainingURL: "https://lms.example.com/course", LandingPageURL: "https://landing.example.com",
			RedirectURL: "https://redirect.example.com",
		}, "https://lms.example.com/course"},
		{"landing page when no training", domain.CampaignSettings{
			LandingPageURL: "https://landing.example.com", RedirectURL: "https://redirect.example.com",
		}, "https://landing.example.com"},
		{"redirect url when nothing else", domain.CampaignSettings{
			RedirectURL: "https://redirect.example.com",
		}, "https://redirect.example.com"},
		{"default when unconfigured", domain.CampaignSettings{}, defaultRedirect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, h := setup()
			store.add("tok1", tc.settings)
			w := get(h, "/phishing/track/tok1/click?url="+url.QueryEscape("https://original.example.com"))
			if w.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", w.Code)
			}
			if got := w.Header().Get("Location"); got != tc.want {
				t.Fatalf("redirect = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecondClickSkipsTrainingButKeepsTimestamp(t *testing.T) {
	store, h := setup()
	store.add("tok1", domain.CampaignSettings{
		TrainingURL:    "https://lms.example.com/course",
		LandingPageURL: "https://landing.example.com",
	})

	w1 := get(h, "/phishing/track/tok1/click")
	if got := w1.Header().Get("Location"); got != "https://lms.example.com/course" {
		t.Fatalf("first click should hit training, got %q", got)
	}
	clicked := *store.rows["tok1"].LinkClickedAt

	time.Sleep(5 * time.Millisecond)
	w2 := get(h, "/phishing/track/tok1/click")
	if got := w2.Header().Get("Location"); got != "https://landing.example.com" {
		t.Fatalf("second click should hit landing page, got %q", got)
	}
	if !store.rows["tok1"].LinkClickedAt.Equal(clicked) {
		t.Fatal("second click must not move link_clicked_at")
	}
}

func TestClickUnknownTokenRedirectsToDefault(t *testing.T) {
	_, h := setup()
	w := get(h, "/phishing/track/nope/click")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302 for unknown token, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != defaultRedirect {
		t.Fatalf("unknown token should go to default, got %q", got)
	}
}

func TestSubmitRecordsFactOnly(t *testing.T) {
	store, h := setup()
	store.add("tok1", domain.CampaignSettings{CaptureCredentials: true})

	w := post(h, "/phishing/track/tok1/submit", "username=alice&password=hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	r := store.rows["tok1"]
	if r.DataSubmittedAt == nil {
		t.Fatal("submission fact not recorded")
	}
	if strings.Contains(r.LocationData, "hunter2") || strings.Contains(r.IPAddress, "hunter2") {
		t.Fatal("submitted payload must never be persisted")
	}
}

func TestReportAndClickCoexist(t *testing.T) {
	store, h := setup()
	store.add("tok1", domain.CampaignSettings{})

	get(h, "/phishing/track/tok1/click")
	w := post(h, "/phishing/track/tok1/report", "reason=looked+fishy")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	r := store.rows["tok1"]
	if r.LinkClickedAt == nil || r.ReportedAt == nil {
		t.Fatal("click and report must both be recorded on the same row")
	}

	// And the reverse order.
	store.add("tok2", domain.CampaignSettings{})
	post(h, "/phishing/track/tok2/report", "")
	get(h, "/phishing/track/tok2/click")
	r2 := store.rows["tok2"]
	if r2.LinkClickedAt == nil || r2.ReportedAt == nil {
		t.Fatal("report then click must both be recorded")
	}
}
