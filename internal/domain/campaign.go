package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates the lifecycle states of a phishing campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// CanTransitionTo reports whether the status machine permits moving from s
// to next. Transitions are monotonic: draft -> scheduled -> running ->
// completed, with cancel allowed from any non-terminal state.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case CampaignStatusScheduled:
		return s == CampaignStatusDraft
	case CampaignStatusRunning:
		return s == CampaignStatusScheduled
	case CampaignStatusCompleted:
		return s == CampaignStatusRunning
	case CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// TargetGroupType enumerates the ways a campaign can select recipients.
type TargetGroupType string

const (
	TargetGroupDepartment TargetGroupType = "department"
	TargetGroupRole       TargetGroupType = "role"
	TargetGroupUserList   TargetGroupType = "user_list"
)

// TargetGroup is one entry of a campaign's target specification. Values are
// department names, role names, or user IDs depending on Type. Membership
// across groups is a set union; a user matched by several groups is targeted
// once.
type TargetGroup struct {
	Type   TargetGroupType `json:"type"`
	Values []string        `json:"values"`
}

// Validate checks a single target group entry.
func (g TargetGroup) Validate() error {
	switch g.Type {
	case TargetGroupDepartment, TargetGroupRole, TargetGroupUserList:
	default:
		return fmt.Errorf("unknown target group type %q", g.Type)
	}
	if len(g.Values) == 0 {
		return fmt.Errorf("target group %q has no values", g.Type)
	}
	return nil
}

// CampaignSettings holds the per-campaign delivery and tracking options.
// Persisted as JSONB alongside the campaign row.
type CampaignSettings struct {
	TrackOpens         bool   `json:"track_opens"`
	TrackClicks        bool   `json:"track_clicks"`
	CaptureCredentials bool   `json:"capture_credentials"`
	RedirectURL        string `json:"redirect_url,omitempty"`
	LandingPageURL     string `json:"landing_page_url,omitempty"`
	TrainingURL        string `json:"training_url,omitempty"`
	SendRatePerHour    int    `json:"send_rate_per_hour"`
	RandomizeSendTimes bool   `json:"randomize_send_times"`
}

// DefaultSendRatePerHour is applied when a campaign doesn't set its own cap.
const DefaultSendRatePerHour = 500

// Campaign represents a single phishing-simulation exercise: one template
// sent to a resolved set of users, with per-recipient results tracked in
// PhishingResult rows.
type Campaign struct {
	ID           uuid.UUID        `json:"id"`
	CompanyID    uuid.UUID        `json:"company_id"`
	CreatedBy    uuid.UUID        `json:"created_by"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Status       CampaignStatus   `json:"status"`
	TemplateID   uuid.UUID        `json:"template_id"`
	TargetGroups []TargetGroup    `json:"target_groups"`
	Settings     CampaignSettings `json:"settings"`

	// ScheduledAt is when a scheduled campaign should launch. StartedAt and
	// CompletedAt are set only by the lifecycle manager.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
