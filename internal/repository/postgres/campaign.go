package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/google/uuid"
)

// CampaignRepo implements campaign.Repository against PostgreSQL. Target
// groups and settings are stored as JSONB.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, company_id, created_by, name, COALESCE(description,''), status,
	template_id, target_groups, settings, scheduled_at, started_at,
	completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var groups, settings []byte
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.CreatedBy, &c.Name, &c.Description, &c.Status,
		&c.TemplateID, &groups, &settings, &c.ScheduledAt, &c.StartedAt,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(groups, &c.TargetGroups); err != nil {
		return nil, fmt.Errorf("decode target groups: %w", err)
	}
	if err := json.Unmarshal(settings, &c.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM phishing_campaigns
		WHERE id = $1 AND company_id = $2
	`, id, companyID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// GetAny loads a campaign without tenant scoping, for the dispatch worker.
func (r *CampaignRepo) GetAny(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM phishing_campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// Status reads just the status column, the cheap per-send liveness check.
func (r *CampaignRepo) Status(ctx context.Context, id uuid.UUID) (domain.CampaignStatus, error) {
	var s domain.CampaignStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM phishing_campaigns WHERE id = $1`, id).Scan(&s)
	if err == sql.ErrNoRows {
		return "", campaign.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("campaign status: %w", err)
	}
	return s, nil
}

func (r *CampaignRepo) List(ctx context.Context, companyID uuid.UUID, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE company_id = $1`
	args := []interface{}{companyID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM phishing_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM phishing_campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	groups, err := json.Marshal(c.TargetGroups)
	if err != nil {
		return fmt.Errorf("encode target groups: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO phishing_campaigns
			(id, company_id, created_by, name, description, status, template_id,
			 target_groups, settings, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.CompanyID, c.CreatedBy, c.Name, c.Description, c.Status,
		c.TemplateID, groups, settings, c.ScheduledAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	groups, err := json.Marshal(c.TargetGroups)
	if err != nil {
		return fmt.Errorf("encode target groups: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE phishing_campaigns
		SET name = $3, description = $4, status = $5, template_id = $6,
		    target_groups = $7, settings = $8, scheduled_at = $9, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`, c.ID, c.CompanyID, c.Name, c.Description, c.Status, c.TemplateID,
		groups, settings, c.ScheduledAt)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM phishing_campaigns
		WHERE id = $1 AND company_id = $2 AND status = 'draft'
	`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// Transition performs the conditional status change. The WHERE clause on the
// source status makes concurrent transitions race-safe; the loser affects
// zero rows.
func (r *CampaignRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.CampaignStatus) (bool, error) {
	var stamp string
	switch to {
	case domain.CampaignStatusRunning:
		stamp = ", started_at = NOW()"
	case domain.CampaignStatusCompleted, domain.CampaignStatusCancelled:
		stamp = ", completed_at = NOW()"
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE phishing_campaigns
		SET status = $3, updated_at = NOW()`+stamp+`
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition campaign: %w", err)
	}
	return n == 1, nil
}

func (r *CampaignRepo) DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM phishing_campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
