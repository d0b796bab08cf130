package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UserDirectory resolves target groups against the platform's users table
// and companies table. Only active users are ever targeted.
type UserDirectory struct{ db *sql.DB }

// NewUserDirectory creates a Postgres-backed user directory.
func NewUserDirectory(db *sql.DB) *UserDirectory { return &UserDirectory{db: db} }

const recipientColumns = `
	id, email, COALESCE(first_name,''), COALESCE(last_name,''),
	COALESCE(department,''), COALESCE(role,'')`

func (d *UserDirectory) queryRecipients(ctx context.Context, q string, args ...interface{}) ([]domain.Recipient, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ID, &r.Email, &r.FirstName, &r.LastName, &r.Department, &r.Role); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *UserDirectory) ResolveDepartments(ctx context.Context, companyID uuid.UUID, names []string) ([]domain.Recipient, error) {
	return d.queryRecipients(ctx, `
		SELECT `+recipientColumns+`
		FROM users
		WHERE company_id = $1 AND is_active AND department = ANY($2)
	`, companyID, pq.Array(names))
}

func (d *UserDirectory) ResolveRoles(ctx context.Context, companyID uuid.UUID, names []string) ([]domain.Recipient, error) {
	return d.queryRecipients(ctx, `
		SELECT `+recipientColumns+`
		FROM users
		WHERE company_id = $1 AND is_active AND role = ANY($2)
	`, companyID, pq.Array(names))
}

func (d *UserDirectory) ResolveUserIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]domain.Recipient, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	return d.queryRecipients(ctx, `
		SELECT `+recipientColumns+`
		FROM users
		WHERE company_id = $1 AND is_active AND id = ANY($2)
	`, companyID, pq.Array(strIDs))
}

// CompanyName resolves the display name substituted into templates.
func (d *UserDirectory) CompanyName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		`SELECT name FROM companies WHERE id = $1`, id).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("company name: %w", err)
	}
	return name, nil
}
