package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aegisawareness/phishsim/internal/dispatch"
	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/aegisawareness/phishsim/internal/tracking"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ResultRepo implements the result-row contracts of the lifecycle manager,
// the tracking handler and the dispatch engine against PostgreSQL.
type ResultRepo struct{ db *sql.DB }

// NewResultRepo creates a Postgres-backed result repository.
func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{db: db} }

// CreateBatch inserts materialized rows in one multi-row statement.
func (r *ResultRepo) CreateBatch(ctx context.Context, results []domain.Result) error {
	if len(results) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO phishing_results (id, campaign_id, user_id, tracking_token) VALUES `)
	for i, res := range results {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, res.ID, res.CampaignID, res.UserID, res.TrackingToken)
	}
	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}
	return nil
}

func (r *ResultRepo) TargetedUserIDs(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM phishing_results WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("targeted users: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *ResultRepo) DeleteUnsentExcept(ctx context.Context, campaignID uuid.UUID, keep []uuid.UUID) (int, error) {
	ids := make([]string, len(keep))
	for i, id := range keep {
		ids[i] = id.String()
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM phishing_results
		WHERE campaign_id = $1 AND email_sent_at IS NULL AND NOT (user_id = ANY($2))
	`, campaignID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete unsent results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete unsent results: %w", err)
	}
	return int(n), nil
}

func (r *ResultRepo) ListByCampaign(ctx context.Context, companyID, campaignID uuid.UUID) ([]campaign.ResultView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT res.id, res.campaign_id, res.user_id, res.email_sent_at,
		       res.email_opened_at, res.link_clicked_at, res.data_submitted_at,
		       res.reported_at, COALESCE(res.ip_address,''), COALESCE(res.user_agent,''),
		       COALESCE(res.location_data,''), res.created_at,
		       u.email, COALESCE(u.first_name,''), COALESCE(u.last_name,'')
		FROM phishing_results res
		JOIN phishing_campaigns c ON c.id = res.campaign_id
		JOIN users u ON u.id = res.user_id
		WHERE res.campaign_id = $1 AND c.company_id = $2
		ORDER BY u.email
	`, campaignID, companyID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []campaign.ResultView
	for rows.Next() {
		var v campaign.ResultView
		if err := rows.Scan(
			&v.ID, &v.CampaignID, &v.UserID, &v.EmailSentAt, &v.EmailOpenedAt,
			&v.LinkClickedAt, &v.DataSubmittedAt, &v.ReportedAt, &v.IPAddress,
			&v.UserAgent, &v.LocationData, &v.CreatedAt,
			&v.Email, &v.FirstName, &v.LastName,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// markColumn stamps one timestamp column if and only if it is still null.
// The WHERE condition makes first-write-wins atomic under concurrency;
// RowsAffected distinguishes a first event from a replay or unknown token.
func (r *ResultRepo) markColumn(ctx context.Context, column, token string, at time.Time, meta tracking.EventMeta) (bool, error) {
	q := fmt.Sprintf(`
		UPDATE phishing_results
		SET %s = $2,
		    ip_address = COALESCE(NULLIF(ip_address, ''), $3),
		    user_agent = COALESCE(NULLIF(user_agent, ''), $4),
		    location_data = COALESCE(NULLIF(location_data, ''), $5)
		WHERE tracking_token = $1 AND %s IS NULL
	`, column, column)
	res, err := r.db.ExecContext(ctx, q, token, at, meta.IPAddress, meta.UserAgent, meta.Location)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", column, err)
	}
	return n == 1, nil
}

func (r *ResultRepo) MarkOpened(ctx context.Context, token string, at time.Time, meta tracking.EventMeta) (bool, error) {
	return r.markColumn(ctx, "email_opened_at", token, at, meta)
}

// MarkClicked stamps the click conditionally, then loads the campaign's
// redirect settings. The settings lookup runs for every request, known
// token or not, so response work does not depend on token validity.
func (r *ResultRepo) MarkClicked(ctx context.Context, token string, at time.Time, meta tracking.EventMeta) (tracking.ClickOutcome, error) {
	first, err := r.markColumn(ctx, "link_clicked_at", token, at, meta)
	if err != nil {
		return tracking.ClickOutcome{}, err
	}

	var out tracking.ClickOutcome
	var settings []byte
	err = r.db.QueryRowContext(ctx, `
		SELECT c.settings
		FROM phishing_results res
		JOIN phishing_campaigns c ON c.id = res.campaign_id
		WHERE res.tracking_token = $1
	`, token).Scan(&settings)
	if err == sql.ErrNoRows {
		return tracking.ClickOutcome{}, nil
	}
	if err != nil {
		return tracking.ClickOutcome{}, fmt.Errorf("click settings: %w", err)
	}
	out.Found = true
	out.First = first
	if err := unmarshalSettings(settings, &out.Settings); err != nil {
		return tracking.ClickOutcome{}, err
	}
	return out, nil
}

func (r *ResultRepo) MarkSubmitted(ctx context.Context, token string, at time.Time, meta tracking.EventMeta) (bool, error) {
	return r.markColumn(ctx, "data_submitted_at", token, at, meta)
}

func (r *ResultRepo) MarkReported(ctx context.Context, token string, at time.Time, meta tracking.EventMeta) (bool, error) {
	return r.markColumn(ctx, "reported_at", token, at, meta)
}

// MarkSent stamps email_sent_at for a row, once.
func (r *ResultRepo) MarkSent(ctx context.Context, resultID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE phishing_results
		SET email_sent_at = $2
		WHERE id = $1 AND email_sent_at IS NULL
	`, resultID, at)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return n == 1, nil
}

// ListUnsent returns unsent rows with recipient identity, in stable order.
func (r *ResultRepo) ListUnsent(ctx context.Context, campaignID uuid.UUID) ([]dispatch.SendItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT res.id, res.tracking_token, u.id, u.email,
		       COALESCE(u.first_name,''), COALESCE(u.last_name,''),
		       COALESCE(u.department,''), COALESCE(u.role,'')
		FROM phishing_results res
		JOIN users u ON u.id = res.user_id
		WHERE res.campaign_id = $1 AND res.email_sent_at IS NULL
		ORDER BY res.id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list unsent: %w", err)
	}
	defer rows.Close()

	var out []dispatch.SendItem
	for rows.Next() {
		var it dispatch.SendItem
		if err := rows.Scan(
			&it.ResultID, &it.Token, &it.Recipient.ID, &it.Recipient.Email,
			&it.Recipient.FirstName, &it.Recipient.LastName,
			&it.Recipient.Department, &it.Recipient.Role,
		); err != nil {
			return nil, fmt.Errorf("scan unsent row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func unmarshalSettings(data []byte, s *domain.CampaignSettings) error {
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

func (r *ResultRepo) UnsentCount(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM phishing_results
		WHERE campaign_id = $1 AND email_sent_at IS NULL
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unsent count: %w", err)
	}
	return n, nil
}
