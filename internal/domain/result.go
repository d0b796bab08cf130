package domain

import (
	"time"

	"github.com/google/uuid"
)

// Result is the per-recipient outcome row of a campaign: exactly one per
// (campaign, user) pair, created when the campaign materializes its
// recipients. Each timestamp is set at most once; the first occurrence of an
// event wins and replays are no-ops.
type Result struct {
	ID            uuid.UUID `json:"id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	UserID        uuid.UUID `json:"user_id"`
	TrackingToken string    `json:"-"`

	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
	EmailOpenedAt   *time.Time `json:"email_opened_at,omitempty"`
	LinkClickedAt   *time.Time `json:"link_clicked_at,omitempty"`
	DataSubmittedAt *time.Time `json:"data_submitted_at,omitempty"`
	ReportedAt      *time.Time `json:"reported_at,omitempty"`

	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	LocationData string `json:"location_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Recipient is the directory view of a targeted user, used for recipient
// resolution and for personalizing the rendered email.
type Recipient struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Department string    `json:"department"`
	Role       string    `json:"role"`
}
