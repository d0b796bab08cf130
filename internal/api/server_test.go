package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"testing"

	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/service/template"
	"github.com/google/uuid"
)

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*domain.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: map[uuid.UUID]*domain.Template{}}
}

func (r *fakeTemplateRepo) visible(t *domain.Template, companyID uuid.UUID) bool {
	return t.IsPublic || (t.CompanyID != nil && *t.CompanyID == companyID)
}

func (r *fakeTemplateRepo) Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || !r.visible(t, companyID) {
		return nil, template.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTemplateRepo) List(ctx context.Context, companyID uuid.UUID, f template.ListFilter) ([]domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Template
	for _, t := range r.templates {
		if r.visible(t, companyID) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.templates[t.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) Update(ctx context.Context, companyID uuid.UUID, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[t.ID]
	if !ok || existing.IsPublic || existing.CompanyID == nil || *existing.CompanyID != companyID {
		return template.ErrNotFound
	}
	cp := *t
	r.templates[t.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[id]
	if !ok || existing.IsPublic || existing.CompanyID == nil || *existing.CompanyID != companyID {
		return template.ErrNotFound
	}
	delete(r.templates, id)
	return nil
}

func (r *fakeTemplateRepo) ActiveCampaignCount(ctx context.Context, id uuid.UUID) (int, error) {
	return 0, nil
}

func newTestServer() *Server {
	return NewServer(config.ServerConfig{Port: 0}, template.NewService(newFakeTemplateRepo()), nil, nil)
}

func identify(req *http.Request, companyID uuid.UUID) {
	req.Header.Set("X-Company-ID", companyID.String())
	req.Header.Set("X-User-ID", uuid.NewString())
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestAdminRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer()
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/templates/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without identity headers = %d, want 401", rec.Code)
	}
}

func TestTemplateCreateAndFetch(t *testing.T) {
	srv := newTestServer()
	router := srv.routes()
	company := uuid.New()

	body, _ := json.Marshal(template.CreateInput{
		Name:       "Payroll Update",
		Category:   domain.CategoryCredentialHarvesting,
		Difficulty: domain.DifficultyMedium,
		Subject:    "Hello {{ first_name }}",
		FromName:   "HR Team",
		FromEmail:  "hr@payroll-notices.example.com",
		HTMLBody:   "<p>Check your payslip</p>",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/", bytes.NewReader(body))
	identify(req, company)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created domain.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created template: %v", err)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/"+created.ID.String(), nil)
	identify(req, company)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// The same template must not be visible to another tenant.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/"+created.ID.String(), nil)
	identify(req, uuid.New())
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get status = %d, want 404", rec.Code)
	}
}

func TestTemplatePreviewSubstitutesSampleRecipient(t *testing.T) {
	srv := newTestServer()
	router := srv.routes()
	company := uuid.New()

	body, _ := json.Marshal(template.CreateInput{
		Name:       "Doc Share",
		Category:   domain.CategorySocialEngineering,
		Difficulty: domain.DifficultyEasy,
		Subject:    "{{ first_name }}, a file was shared with you",
		FromName:   "Docs",
		FromEmail:  "share@docs.example.com",
		HTMLBody:   "<p>Hi {{ first_name }} from {{ department }}</p>",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates/", bytes.NewReader(body))
	identify(req, company)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created domain.Template
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/"+created.ID.String()+"/preview", nil)
	identify(req, company)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Subject struct {
			Output string `json:"output"`
		} `json:"subject"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if out.Subject.Output != "Alex, a file was shared with you" {
		t.Fatalf("preview subject = %q", out.Subject.Output)
	}
}
