package campaign

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/token"
	"github.com/google/uuid"
)

// Service coordinates campaign lifecycle operations: creation with recipient
// materialization, scheduling, launch, cancellation and completion.
type Service struct {
	repo      Repository
	results   ResultStore
	users     UserDirectory
	templates TemplateStore
	queue     DispatchQueue
	now       func() time.Time
}

func NewService(repo Repository, results ResultStore, users UserDirectory, templates TemplateStore, queue DispatchQueue) *Service {
	return &Service{
		repo:      repo,
		results:   results,
		users:     users,
		templates: templates,
		queue:     queue,
		now:       time.Now,
	}
}

// CreateInput is the payload for creating a campaign.
type CreateInput struct {
	Name         string
	Description  string
	TemplateID   uuid.UUID
	TargetGroups []domain.TargetGroup
	Settings     domain.CampaignSettings
	ScheduledAt  *time.Time
}

// Create validates the input, resolves the target groups to a deduplicated
// recipient set, persists the campaign and materializes one result row per
// recipient, each carrying a fresh tracking token.
func (s *Service) Create(ctx context.Context, companyID, createdBy uuid.UUID, in CreateInput) (*domain.Campaign, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if len(in.TargetGroups) == 0 {
		return nil, &ValidationError{Field: "target_groups", Message: "at least one target group is required"}
	}
	for i, g := range in.TargetGroups {
		if err := g.Validate(); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("target_groups[%d]", i), Message: err.Error()}
		}
	}
	if _, err := s.templates.Get(ctx, companyID, in.TemplateID); err != nil {
		return nil, &ValidationError{Field: "template_id", Message: "template not found"}
	}

	status := domain.CampaignStatusDraft
	if in.ScheduledAt != nil {
		if !in.ScheduledAt.After(s.now()) {
			return nil, &ValidationError{Field: "scheduled_at", Message: "must be in the future"}
		}
		status = domain.CampaignStatusScheduled
	}

	settings := in.Settings
	if settings.SendRatePerHour <= 0 {
		settings.SendRatePerHour = domain.DefaultSendRatePerHour
	}

	recipients, err := s.resolveRecipients(ctx, companyID, in.TargetGroups)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := s.now()
	c := &domain.Campaign{
		ID:           uuid.New(),
		CompanyID:    companyID,
		CreatedBy:    createdBy,
		Name:         in.Name,
		Description:  in.Description,
		Status:       status,
		TemplateID:   in.TemplateID,
		TargetGroups: in.TargetGroups,
		Settings:     settings,
		ScheduledAt:  in.ScheduledAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}

	rows, err := materializeResults(c.ID, recipients, now)
	if err != nil {
		return nil, err
	}
	if err := s.results.CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("materializing results: %w", err)
	}

	log.Printf("[CampaignService] Created campaign %s (%s) with %d recipients", c.ID, c.Name, len(rows))
	return c, nil
}

// Get returns a campaign scoped by company.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Campaign, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns campaigns for the company matching the filter.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return s.repo.List(ctx, companyID, f)
}

// UpdateFields carries the mutable campaign fields. Nil pointers leave the
// field unchanged.
type UpdateFields struct {
	Name         *string
	Description  *string
	TemplateID   *uuid.UUID
	TargetGroups []domain.TargetGroup
	Settings     *domain.CampaignSettings
	ScheduledAt  *time.Time
}

// Update edits a draft or scheduled campaign. If the target groups change the
// recipient set is re-resolved: rows for users no longer targeted are removed
// unless their email already went out, and new recipients get fresh rows.
func (s *Service) Update(ctx context.Context, companyID, id uuid.UUID, f UpdateFields) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignStatusDraft && c.Status != domain.CampaignStatusScheduled {
		return nil, fmt.Errorf("%w: status is %s", ErrNotEditable, c.Status)
	}

	if f.Name != nil {
		if *f.Name == "" {
			return nil, &ValidationError{Field: "name", Message: "is required"}
		}
		c.Name = *f.Name
	}
	if f.Description != nil {
		c.Description = *f.Description
	}
	if f.TemplateID != nil {
		if _, err := s.templates.Get(ctx, companyID, *f.TemplateID); err != nil {
			return nil, &ValidationError{Field: "template_id", Message: "template not found"}
		}
		c.TemplateID = *f.TemplateID
	}
	if f.Settings != nil {
		settings := *f.Settings
		if settings.SendRatePerHour <= 0 {
			settings.SendRatePerHour = domain.DefaultSendRatePerHour
		}
		c.Settings = settings
	}
	if f.ScheduledAt != nil {
		if !f.ScheduledAt.After(s.now()) {
			return nil, &ValidationError{Field: "scheduled_at", Message: "must be in the future"}
		}
		c.ScheduledAt = f.ScheduledAt
		if c.Status == domain.CampaignStatusDraft {
			c.Status = domain.CampaignStatusScheduled
		}
	}

	if f.TargetGroups != nil {
		for i, g := range f.TargetGroups {
			if err := g.Validate(); err != nil {
				return nil, &ValidationError{Field: fmt.Sprintf("target_groups[%d]", i), Message: err.Error()}
			}
		}
		recipients, err := s.resolveRecipients(ctx, companyID, f.TargetGroups)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 {
			return nil, ErrNoRecipients
		}
		c.TargetGroups = f.TargetGroups
		if err := s.reconcileResults(ctx, c.ID, recipients); err != nil {
			return nil, err
		}
	}

	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("updating campaign: %w", err)
	}
	return c, nil
}

// Schedule moves a draft campaign to scheduled at the given future time.
func (s *Service) Schedule(ctx context.Context, companyID, id uuid.UUID, at time.Time) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CampaignStatusScheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.CampaignStatusScheduled)
	}
	if !at.After(s.now()) {
		return nil, &ValidationError{Field: "scheduled_at", Message: "must be in the future"}
	}
	c.Status = domain.CampaignStatusScheduled
	c.ScheduledAt = &at
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("scheduling campaign: %w", err)
	}
	log.Printf("[CampaignService] Scheduled campaign %s for %s", c.ID, at.Format(time.RFC3339))
	return c, nil
}

// Launch moves a scheduled campaign to running and enqueues a dispatch job.
// Sending happens in the background; Launch returns once the job is queued.
func (s *Service) Launch(ctx context.Context, companyID, id uuid.UUID) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.launch(ctx, c); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, companyID, id)
}

// LaunchDue launches every scheduled campaign whose scheduled_at has arrived.
// Called by the worker's scheduler loop. Returns the number launched.
func (s *Service) LaunchDue(ctx context.Context) (int, error) {
	due, err := s.repo.DueScheduled(ctx, s.now(), 50)
	if err != nil {
		return 0, fmt.Errorf("listing due campaigns: %w", err)
	}
	launched := 0
	for i := range due {
		if err := s.launch(ctx, &due[i]); err != nil {
			log.Printf("[CampaignService] Failed to auto-launch campaign %s: %v", due[i].ID, err)
			continue
		}
		launched++
	}
	return launched, nil
}

func (s *Service) launch(ctx context.Context, c *domain.Campaign) error {
	if !c.Status.CanTransitionTo(domain.CampaignStatusRunning) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.CampaignStatusRunning)
	}
	ok, err := s.repo.Transition(ctx, c.ID, c.Status, domain.CampaignStatusRunning)
	if err != nil {
		return fmt.Errorf("launching campaign: %w", err)
	}
	if !ok {
		// Lost a race with another caller; re-read would show the new state.
		return fmt.Errorf("%w: campaign %s changed state concurrently", ErrInvalidTransition, c.ID)
	}
	if err := s.queue.Enqueue(ctx, c.ID); err != nil {
		return fmt.Errorf("enqueueing dispatch job: %w", err)
	}
	log.Printf("[CampaignService] Launched campaign %s (%s)", c.ID, c.Name)
	return nil
}

// Cancel moves any non-terminal campaign to cancelled. The dispatch engine
// observes the status before each send and stops.
func (s *Service) Cancel(ctx context.Context, companyID, id uuid.UUID) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(domain.CampaignStatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.CampaignStatusCancelled)
	}
	ok, err := s.repo.Transition(ctx, c.ID, c.Status, domain.CampaignStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancelling campaign: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s changed state concurrently", ErrInvalidTransition, c.ID)
	}
	log.Printf("[CampaignService] Cancelled campaign %s", c.ID)
	return s.repo.Get(ctx, companyID, id)
}

// Complete conditionally moves a running campaign to completed. Used by the
// dispatch engine once no unsent rows remain. Returns false if the campaign
// was no longer running.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Transition(ctx, id, domain.CampaignStatusRunning, domain.CampaignStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("completing campaign: %w", err)
	}
	if ok {
		log.Printf("[CampaignService] Completed campaign %s", id)
	}
	return ok, nil
}

// Results lists the campaign's per-recipient rows for the admin UI.
func (s *Service) Results(ctx context.Context, companyID, id uuid.UUID) ([]ResultView, error) {
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return nil, err
	}
	return s.results.ListByCampaign(ctx, companyID, id)
}

// Delete removes a draft campaign and its materialized results.
func (s *Service) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	c, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignStatusDraft {
		return fmt.Errorf("%w: only draft campaigns can be deleted", ErrNotEditable)
	}
	return s.repo.Delete(ctx, companyID, id)
}

// resolveRecipients expands the target groups against the user directory and
// dedupes by user ID, so a user matched by several groups gets one email.
func (s *Service) resolveRecipients(ctx context.Context, companyID uuid.UUID, groups []domain.TargetGroup) (map[uuid.UUID]domain.Recipient, error) {
	out := make(map[uuid.UUID]domain.Recipient)
	for _, g := range groups {
		var (
			batch []domain.Recipient
			err   error
		)
		switch g.Type {
		case domain.TargetGroupDepartment:
			batch, err = s.users.ResolveDepartments(ctx, companyID, g.Values)
		case domain.TargetGroupRole:
			batch, err = s.users.ResolveRoles(ctx, companyID, g.Values)
		case domain.TargetGroupUserList:
			ids := make([]uuid.UUID, 0, len(g.Values))
			for _, v := range g.Values {
				id, perr := uuid.Parse(v)
				if perr != nil {
					return nil, &ValidationError{Field: "target_groups", Message: fmt.Sprintf("invalid user id %q", v)}
				}
				ids = append(ids, id)
			}
			batch, err = s.users.ResolveUserIDs(ctx, companyID, ids)
		default:
			return nil, &ValidationError{Field: "target_groups", Message: fmt.Sprintf("unknown group type %q", g.Type)}
		}
		if err != nil {
			return nil, fmt.Errorf("resolving %s group: %w", g.Type, err)
		}
		for _, r := range batch {
			out[r.ID] = r
		}
	}
	return out, nil
}

// reconcileResults aligns the materialized result rows with a newly resolved
// recipient set. Rows whose email already went out are kept regardless.
func (s *Service) reconcileResults(ctx context.Context, campaignID uuid.UUID, recipients map[uuid.UUID]domain.Recipient) error {
	existing, err := s.results.TargetedUserIDs(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("listing targeted users: %w", err)
	}
	existingSet := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		existingSet[id] = true
	}

	keep := make([]uuid.UUID, 0, len(recipients))
	added := make(map[uuid.UUID]domain.Recipient)
	for id, r := range recipients {
		keep = append(keep, id)
		if !existingSet[id] {
			added[id] = r
		}
	}

	removed, err := s.results.DeleteUnsentExcept(ctx, campaignID, keep)
	if err != nil {
		return fmt.Errorf("removing untargeted results: %w", err)
	}
	if len(added) > 0 {
		rows, err := materializeResults(campaignID, added, s.now())
		if err != nil {
			return err
		}
		if err := s.results.CreateBatch(ctx, rows); err != nil {
			return fmt.Errorf("materializing new results: %w", err)
		}
	}
	log.Printf("[CampaignService] Reconciled campaign %s recipients: +%d -%d", campaignID, len(added), removed)
	return nil
}

func materializeResults(campaignID uuid.UUID, recipients map[uuid.UUID]domain.Recipient, now time.Time) ([]domain.Result, error) {
	ids := make([]uuid.UUID, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	rows := make([]domain.Result, 0, len(ids))
	for _, id := range ids {
		tok, err := token.New()
		if err != nil {
			return nil, fmt.Errorf("generating tracking token: %w", err)
		}
		rows = append(rows, domain.Result{
			ID:            uuid.New(),
			CampaignID:    campaignID,
			UserID:        id,
			TrackingToken: tok,
			CreatedAt:     now,
		})
	}
	return rows, nil
}
