package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the campaign is absent or belongs to a
// different company.
var ErrNotFound = errors.New("campaign not found")

// GroupBy selects the recipient attribute a breakdown groups on.
type GroupBy string

const (
	GroupByDepartment GroupBy = "department"
	GroupByRole       GroupBy = "role"
)

// FunnelCounts are the raw per-campaign aggregates produced by SQL.
// Timing values are nil when no row has both timestamps.
type FunnelCounts struct {
	TotalRecipients    int
	EmailsSent         int
	UniqueOpens        int
	UniqueClicks       int
	CredentialsEntered int
	Reports            int

	AvgMinutesToOpen  *float64
	MinMinutesToOpen  *float64
	AvgMinutesToClick *float64
	MinMinutesToClick *float64
}

// GroupCounts are raw per-group aggregates for a breakdown.
type GroupCounts struct {
	Group      string
	Recipients int
	EmailsSent int
	Clicks     int
	Reports    int
}

// PeriodCounts are raw aggregates over every campaign a company started
// within a period.
type PeriodCounts struct {
	Campaigns         int
	UniqueUsersTested int
	EmailsSent        int
	Clicks            int
	Reports           int
}

// StatsRepository is the read-side contract the aggregator depends on.
type StatsRepository interface {
	// CampaignFunnel returns raw funnel counts for a campaign, scoped by
	// company. Returns ErrNotFound for absent or foreign campaigns.
	CampaignFunnel(ctx context.Context, companyID, campaignID uuid.UUID) (*FunnelCounts, error)

	// GroupBreakdown returns per-department or per-role counts for a
	// campaign, scoped by company.
	GroupBreakdown(ctx context.Context, companyID, campaignID uuid.UUID, by GroupBy) ([]GroupCounts, error)

	// PeriodCounts aggregates across campaigns whose started_at falls in
	// [from, to).
	PeriodCounts(ctx context.Context, companyID uuid.UUID, from, to time.Time) (*PeriodCounts, error)

	// ActiveUserCount returns the company's active user total, the
	// denominator for coverage.
	ActiveUserCount(ctx context.Context, companyID uuid.UUID) (int, error)

	// TrainingCompletionPercent returns the share of assigned security
	// trainings completed in the period, 0-100.
	TrainingCompletionPercent(ctx context.Context, companyID uuid.UUID, from, to time.Time) (float64, error)
}
