package template

import (
	"context"
	"fmt"
	"log"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/google/uuid"
)

// Service implements template business logic on top of the repository.
type Service struct {
	repo Repository
}

// NewService creates a template service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput holds the fields for creating a new template.
type CreateInput struct {
	Name            string                    `json:"name"`
	Category        domain.TemplateCategory   `json:"category"`
	Difficulty      domain.TemplateDifficulty `json:"difficulty"`
	Subject         string                    `json:"subject"`
	FromName        string                    `json:"from_name"`
	FromEmail       string                    `json:"from_email"`
	HTMLBody        string                    `json:"html_body"`
	TextBody        string                    `json:"text_body"`
	LandingPageHTML string                    `json:"landing_page_html"`
	Language        string                    `json:"language"`
}

// Create persists a new custom template owned by the company. Public
// (system) templates are seeded by migration, not created through this path.
func (s *Service) Create(ctx context.Context, companyID uuid.UUID, input CreateInput) (*domain.Template, error) {
	owner := companyID
	t := &domain.Template{
		ID:              uuid.New(),
		CompanyID:       &owner,
		Name:            input.Name,
		Category:        input.Category,
		Difficulty:      input.Difficulty,
		Subject:         input.Subject,
		FromName:        input.FromName,
		FromEmail:       input.FromEmail,
		HTMLBody:        input.HTMLBody,
		TextBody:        input.TextBody,
		LandingPageHTML: input.LandingPageHTML,
		Language:        input.Language,
		IsPublic:        false,
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// Get returns a single template visible to the company.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Template, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns public templates plus the company's own, filtered.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, f ListFilter) ([]domain.Template, error) {
	return s.repo.List(ctx, companyID, f)
}

// UpdateFields holds the mutable fields for a template update.
// Nil fields are not applied.
type UpdateFields struct {
	Name            *string                    `json:"name"`
	Category        *domain.TemplateCategory   `json:"category"`
	Difficulty      *domain.TemplateDifficulty `json:"difficulty"`
	Subject         *string                    `json:"subject"`
	FromName        *string                    `json:"from_name"`
	FromEmail       *string                    `json:"from_email"`
	HTMLBody        *string                    `json:"html_body"`
	TextBody        *string                    `json:"text_body"`
	LandingPageHTML *string                    `json:"landing_page_html"`
	Language        *string                    `json:"language"`
}

// Update modifies a custom template. Public templates and templates owned by
// another company cannot be edited: both fail with ErrPermissionDenied.
func (s *Service) Update(ctx context.Context, companyID, id uuid.UUID, u UpdateFields) (*domain.Template, error) {
	t, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if t.IsPublic || t.CompanyID == nil || *t.CompanyID != companyID {
		return nil, ErrPermissionDenied
	}

	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Difficulty != nil {
		t.Difficulty = *u.Difficulty
	}
	if u.Subject != nil {
		t.Subject = *u.Subject
	}
	if u.FromName != nil {
		t.FromName = *u.FromName
	}
	if u.FromEmail != nil {
		t.FromEmail = *u.FromEmail
	}
	if u.HTMLBody != nil {
		t.HTMLBody = *u.HTMLBody
	}
	if u.TextBody != nil {
		t.TextBody = *u.TextBody
	}
	if u.LandingPageHTML != nil {
		t.LandingPageHTML = *u.LandingPageHTML
	}
	if u.Language != nil {
		t.Language = *u.Language
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, companyID, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// Delete removes a custom template. Fails with ErrPermissionDenied for
// public or foreign templates and with ErrTemplateInUse when any
// non-terminal campaign still references it.
func (s *Service) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	t, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	if t.IsPublic || t.CompanyID == nil || *t.CompanyID != companyID {
		return ErrPermissionDenied
	}

	n, err := s.repo.ActiveCampaignCount(ctx, id)
	if err != nil {
		return fmt.Errorf("check template references: %w", err)
	}
	if n > 0 {
		return ErrTemplateInUse
	}

	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return err
	}
	log.Printf("[TemplateService] Deleted template %s (company %s)", id, companyID)
	return nil
}
