package template

import (
	"context"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the data access contract for templates.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a template visible to the company: either public or owned
	// by it. Returns ErrNotFound otherwise (including for templates owned by
	// a different company, so existence never leaks across tenants).
	Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Template, error)

	// List returns public templates plus the company's own, newest first.
	List(ctx context.Context, companyID uuid.UUID, f ListFilter) ([]domain.Template, error)

	// Create inserts a new template.
	Create(ctx context.Context, t *domain.Template) error

	// Update modifies a company-owned template. Returns ErrNotFound if the
	// template doesn't exist or isn't owned by the company.
	Update(ctx context.Context, companyID uuid.UUID, t *domain.Template) error

	// Delete removes a company-owned template. Returns ErrNotFound if absent
	// or not owned.
	Delete(ctx context.Context, companyID, id uuid.UUID) error

	// ActiveCampaignCount returns how many non-terminal campaigns reference
	// the template.
	ActiveCampaignCount(ctx context.Context, id uuid.UUID) (int, error)
}

// ListFilter controls filtering for template lists.
type ListFilter struct {
	Category   string
	Difficulty string
	Language   string
	// Search matches name, subject, from_name and from_email.
	Search string
	Limit  int
	Offset int
}
