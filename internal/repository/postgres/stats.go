package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aegisawareness/phishsim/internal/service/analytics"
	"github.com/google/uuid"
)

// StatsRepo implements analytics.StatsRepository with SQL aggregation so
// funnel math never loads individual rows into the process.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed analytics repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

func (r *StatsRepo) CampaignFunnel(ctx context.Context, companyID, campaignID uuid.UUID) (*analytics.FunnelCounts, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM phishing_campaigns WHERE id = $1 AND company_id = $2)
	`, campaignID, companyID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("campaign check: %w", err)
	}
	if !exists {
		return nil, analytics.ErrNotFound
	}

	c := &analytics.FunnelCounts{}
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(email_sent_at),
		       COUNT(email_opened_at),
		       COUNT(link_clicked_at),
		       COUNT(data_submitted_at),
		       COUNT(reported_at),
		       AVG(EXTRACT(EPOCH FROM (email_opened_at - email_sent_at)) / 60)
		           FILTER (WHERE email_sent_at IS NOT NULL AND email_opened_at IS NOT NULL),
		       MIN(EXTRACT(EPOCH FROM (email_opened_at - email_sent_at)) / 60)
		           FILTER (WHERE email_sent_at IS NOT NULL AND email_opened_at IS NOT NULL),
		       AVG(EXTRACT(EPOCH FROM (link_clicked_at - email_sent_at)) / 60)
		           FILTER (WHERE email_sent_at IS NOT NULL AND link_clicked_at IS NOT NULL),
		       MIN(EXTRACT(EPOCH FROM (link_clicked_at - email_sent_at)) / 60)
		           FILTER (WHERE email_sent_at IS NOT NULL AND link_clicked_at IS NOT NULL)
		FROM phishing_results
		WHERE campaign_id = $1
	`, campaignID).Scan(
		&c.TotalRecipients, &c.EmailsSent, &c.UniqueOpens, &c.UniqueClicks,
		&c.CredentialsEntered, &c.Reports,
		&c.AvgMinutesToOpen, &c.MinMinutesToOpen,
		&c.AvgMinutesToClick, &c.MinMinutesToClick,
	)
	if err != nil {
		return nil, fmt.Errorf("campaign funnel: %w", err)
	}
	return c, nil
}

func (r *StatsRepo) GroupBreakdown(ctx context.Context, companyID, campaignID uuid.UUID, by analytics.GroupBy) ([]analytics.GroupCounts, error) {
	col := "u.department"
	if by == analytics.GroupByRole {
		col = "u.role"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(`+col+`, 'unknown'),
		       COUNT(*),
		       COUNT(res.email_sent_at),
		       COUNT(res.link_clicked_at),
		       COUNT(res.reported_at)
		FROM phishing_results res
		JOIN phishing_campaigns c ON c.id = res.campaign_id
		JOIN users u ON u.id = res.user_id
		WHERE res.campaign_id = $1 AND c.company_id = $2
		GROUP BY 1
		ORDER BY 1
	`, campaignID, companyID)
	if err != nil {
		return nil, fmt.Errorf("group breakdown: %w", err)
	}
	defer rows.Close()

	var out []analytics.GroupCounts
	for rows.Next() {
		var g analytics.GroupCounts
		if err := rows.Scan(&g.Group, &g.Recipients, &g.EmailsSent, &g.Clicks, &g.Reports); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *StatsRepo) PeriodCounts(ctx context.Context, companyID uuid.UUID, from, to time.Time) (*analytics.PeriodCounts, error) {
	p := &analytics.PeriodCounts{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT c.id),
		       COUNT(DISTINCT res.user_id),
		       COUNT(res.email_sent_at),
		       COUNT(res.link_clicked_at),
		       COUNT(res.reported_at)
		FROM phishing_campaigns c
		LEFT JOIN phishing_results res ON res.campaign_id = c.id
		WHERE c.company_id = $1 AND c.started_at >= $2 AND c.started_at < $3
	`, companyID, from, to).Scan(
		&p.Campaigns, &p.UniqueUsersTested, &p.EmailsSent, &p.Clicks, &p.Reports,
	)
	if err != nil {
		return nil, fmt.Errorf("period counts: %w", err)
	}
	return p, nil
}

func (r *StatsRepo) ActiveUserCount(ctx context.Context, companyID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE company_id = $1 AND is_active
	`, companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active user count: %w", err)
	}
	return n, nil
}

// TrainingCompletionPercent reads the external training_completions table
// maintained by the awareness-training module.
func (r *StatsRepo) TrainingCompletionPercent(ctx context.Context, companyID uuid.UUID, from, to time.Time) (float64, error) {
	var assigned, completed int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(completed_at)
		FROM training_completions
		WHERE company_id = $1 AND assigned_at >= $2 AND assigned_at < $3
	`, companyID, from, to).Scan(&assigned, &completed)
	if err != nil {
		return 0, fmt.Errorf("training completion: %w", err)
	}
	if assigned == 0 {
		return 0, nil
	}
	return float64(completed) / float64(assigned) * 100, nil
}
