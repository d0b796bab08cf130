package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/service/template"
	"github.com/google/uuid"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `
	id, company_id, name, category, difficulty, subject, from_name, from_email,
	html_body, COALESCE(text_body,''), COALESCE(landing_page_html,''),
	language, is_public, created_at, updated_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*domain.Template, error) {
	t := &domain.Template{}
	var companyID uuid.NullUUID
	err := row.Scan(
		&t.ID, &companyID, &t.Name, &t.Category, &t.Difficulty, &t.Subject,
		&t.FromName, &t.FromEmail, &t.HTMLBody, &t.TextBody, &t.LandingPageHTML,
		&t.Language, &t.IsPublic, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if companyID.Valid {
		t.CompanyID = &companyID.UUID
	}
	return t, nil
}

// Get returns a template the company may see: public or its own. A foreign
// private template scans as no rows, so existence never leaks.
func (r *TemplateRepo) Get(ctx context.Context, companyID, id uuid.UUID) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM phishing_templates
		WHERE id = $1 AND (is_public OR company_id = $2)
	`, id, companyID))
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// GetAny returns a template without tenant scoping, for the dispatch worker.
func (r *TemplateRepo) GetAny(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM phishing_templates
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context, companyID uuid.UUID, f template.ListFilter) ([]domain.Template, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + templateColumns + `
		FROM phishing_templates
		WHERE (is_public OR company_id = $1)`
	args := []interface{}{companyID}
	idx := 2

	if f.Category != "" {
		q += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if f.Difficulty != "" {
		q += fmt.Sprintf(" AND difficulty = $%d", idx)
		args = append(args, f.Difficulty)
		idx++
	}
	if f.Language != "" {
		q += fmt.Sprintf(" AND language = $%d", idx)
		args = append(args, f.Language)
		idx++
	}
	if f.Search != "" {
		q += fmt.Sprintf(" AND (name ILIKE $%d OR subject ILIKE $%d OR from_name ILIKE $%d OR from_email ILIKE $%d)",
			idx, idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	var owner uuid.NullUUID
	if t.CompanyID != nil {
		owner = uuid.NullUUID{UUID: *t.CompanyID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phishing_templates
			(id, company_id, name, category, difficulty, subject, from_name,
			 from_email, html_body, text_body, landing_page_html, language, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, owner, t.Name, t.Category, t.Difficulty, t.Subject,
		t.FromName, t.FromEmail, t.HTMLBody, t.TextBody, t.LandingPageHTML,
		t.Language, t.IsPublic)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, companyID uuid.UUID, t *domain.Template) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE phishing_templates
		SET name = $3, category = $4, difficulty = $5, subject = $6,
		    from_name = $7, from_email = $8, html_body = $9, text_body = $10,
		    landing_page_html = $11, language = $12, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND NOT is_public
	`, t.ID, companyID, t.Name, t.Category, t.Difficulty, t.Subject,
		t.FromName, t.FromEmail, t.HTMLBody, t.TextBody, t.LandingPageHTML, t.Language)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM phishing_templates
		WHERE id = $1 AND company_id = $2 AND NOT is_public
	`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

// ActiveCampaignCount counts non-terminal campaigns still referencing the
// template.
func (r *TemplateRepo) ActiveCampaignCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM phishing_campaigns
		WHERE template_id = $1 AND status IN ('draft', 'scheduled', 'running')
	`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count template references: %w", err)
	}
	return n, nil
}
