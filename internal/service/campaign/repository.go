package campaign

import (
	"context"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign scoped by company. Returns ErrNotFound
	// if absent or owned by another company.
	Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Campaign, error)

	// GetAny returns a campaign without company scoping. Used by the
	// dispatch worker, which operates across tenants.
	GetAny(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// List returns campaigns matching the filter, newest first, plus the
	// unpaginated total.
	List(ctx context.Context, companyID uuid.UUID, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update persists the mutable fields of a campaign (name, description,
	// template, target groups, settings, scheduled_at).
	Update(ctx context.Context, c *domain.Campaign) error

	// Delete removes a draft campaign and, by cascade, its results.
	// Returns ErrNotFound if no matching draft campaign exists.
	Delete(ctx context.Context, companyID, id uuid.UUID) error

	// Transition atomically moves a campaign from one status to another,
	// stamping started_at/completed_at as appropriate for the target state.
	// Returns false when the campaign was not in the expected source state
	// (lost race or stale caller) without treating it as an error.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.CampaignStatus) (bool, error)

	// DueScheduled returns scheduled campaigns whose scheduled_at has
	// arrived, oldest first.
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// ResultStore is the slice of result persistence the lifecycle manager
// needs: materializing recipient rows and reconciling them on retarget.
type ResultStore interface {
	// CreateBatch inserts the given result rows.
	CreateBatch(ctx context.Context, results []domain.Result) error

	// TargetedUserIDs returns the user IDs that currently have a result row
	// for the campaign.
	TargetedUserIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error)

	// DeleteUnsentExcept removes rows whose email has not been sent and
	// whose user is not in keep. Already-sent rows are never removed.
	DeleteUnsentExcept(ctx context.Context, campaignID uuid.UUID, keep []uuid.UUID) (int, error)

	// ListByCampaign returns the campaign's result rows joined with
	// recipient identity, scoped by company.
	ListByCampaign(ctx context.Context, companyID, campaignID uuid.UUID) ([]ResultView, error)
}

// ResultView is a result row plus the recipient it belongs to, for the
// admin result listing.
type ResultView struct {
	domain.Result
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserDirectory resolves target-group entries against the external user
// store. All lookups are scoped to the company and return only active users.
type UserDirectory interface {
	ResolveDepartments(ctx context.Context, companyID uuid.UUID, names []string) ([]domain.Recipient, error)
	ResolveRoles(ctx context.Context, companyID uuid.UUID, names []string) ([]domain.Recipient, error)
	ResolveUserIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]domain.Recipient, error)
}

// TemplateStore is the slice of the template repository the lifecycle
// manager needs: visibility-checked lookup.
type TemplateStore interface {
	Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Template, error)
}

// DispatchQueue enqueues a campaign for background sending. Launch returns
// to the caller as soon as the job is queued; the worker does the sending.
type DispatchQueue interface {
	Enqueue(ctx context.Context, campaignID uuid.UUID) error
}
