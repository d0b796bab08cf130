package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/google/uuid"
)

// Trend classifies how the click rate moved against the prior period.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// trendBand is the click-rate movement, in percentage points, treated as
// noise rather than a real trend.
const trendBand = 2.0

// Funnel is the per-campaign analytics payload.
type Funnel struct {
	CampaignID         uuid.UUID `json:"campaign_id"`
	TotalRecipients    int       `json:"total_recipients"`
	EmailsSent         int       `json:"emails_sent"`
	UniqueOpens        int       `json:"unique_opens"`
	UniqueClicks       int       `json:"unique_clicks"`
	CredentialsEntered int       `json:"credentials_entered"`
	Reports            int       `json:"reports"`

	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
	SubmitRate float64 `json:"submit_rate"`
	ReportRate float64 `json:"report_rate"`
	RiskScore  float64 `json:"risk_score"`

	AvgMinutesToOpen  *float64 `json:"avg_minutes_to_open,omitempty"`
	MinMinutesToOpen  *float64 `json:"min_minutes_to_open,omitempty"`
	AvgMinutesToClick *float64 `json:"avg_minutes_to_click,omitempty"`
	MinMinutesToClick *float64 `json:"min_minutes_to_click,omitempty"`
}

// GroupStat is one row of a department or role breakdown.
type GroupStat struct {
	Group      string  `json:"group"`
	Recipients int     `json:"recipients"`
	EmailsSent int     `json:"emails_sent"`
	Clicks     int     `json:"clicks"`
	Reports    int     `json:"reports"`
	ClickRate  float64 `json:"click_rate"`
	ReportRate float64 `json:"report_rate"`
}

// ComplianceReport is the company-level rollup over a reporting period.
type ComplianceReport struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalCampaigns    int     `json:"total_campaigns"`
	UniqueUsersTested int     `json:"unique_users_tested"`
	ClickRate         float64 `json:"click_rate"`
	ReportRate        float64 `json:"report_rate"`
	Trend             Trend   `json:"trend"`

	CoveragePercent           float64 `json:"coverage_percent"`
	TrainingCompletionPercent float64 `json:"training_completion_percent"`

	MeetsFrequency bool `json:"meets_frequency"`
	MeetsCoverage  bool `json:"meets_coverage"`
	MeetsTraining  bool `json:"meets_training"`

	Score int `json:"score"`
}

// Service is the analytics aggregator.
type Service struct {
	repo StatsRepository
	cfg  config.ComplianceConfig
}

func NewService(repo StatsRepository, cfg config.ComplianceConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// CampaignFunnel returns the funnel metrics for one campaign.
func (s *Service) CampaignFunnel(ctx context.Context, companyID, campaignID uuid.UUID) (*Funnel, error) {
	c, err := s.repo.CampaignFunnel(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}
	return buildFunnel(campaignID, c), nil
}

// DepartmentBreakdown groups a campaign's results by recipient department.
func (s *Service) DepartmentBreakdown(ctx context.Context, companyID, campaignID uuid.UUID) ([]GroupStat, error) {
	return s.breakdown(ctx, companyID, campaignID, GroupByDepartment)
}

// RoleBreakdown groups a campaign's results by recipient role.
func (s *Service) RoleBreakdown(ctx context.Context, companyID, campaignID uuid.UUID) ([]GroupStat, error) {
	return s.breakdown(ctx, companyID, campaignID, GroupByRole)
}

func (s *Service) breakdown(ctx context.Context, companyID, campaignID uuid.UUID, by GroupBy) ([]GroupStat, error) {
	rows, err := s.repo.GroupBreakdown(ctx, companyID, campaignID, by)
	if err != nil {
		return nil, err
	}
	out := make([]GroupStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, GroupStat{
			Group:      r.Group,
			Recipients: r.Recipients,
			EmailsSent: r.EmailsSent,
			Clicks:     r.Clicks,
			Reports:    r.Reports,
			ClickRate:  rate(r.Clicks, r.EmailsSent),
			ReportRate: rate(r.Reports, r.EmailsSent),
		})
	}
	return out, nil
}

// ComplianceReport aggregates campaigns started in [from, to) and compares
// the click rate against the immediately preceding period of equal length.
func (s *Service) ComplianceReport(ctx context.Context, companyID uuid.UUID, from, to time.Time) (*ComplianceReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid period: %s is not before %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	cur, err := s.repo.PeriodCounts(ctx, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregating period: %w", err)
	}
	priorFrom := from.Add(-to.Sub(from))
	prev, err := s.repo.PeriodCounts(ctx, companyID, priorFrom, from)
	if err != nil {
		return nil, fmt.Errorf("aggregating prior period: %w", err)
	}
	activeUsers, err := s.repo.ActiveUserCount(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("counting active users: %w", err)
	}
	training, err := s.repo.TrainingCompletionPercent(ctx, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("training completion: %w", err)
	}

	clickRate := rate(cur.Clicks, cur.EmailsSent)
	reportRate := rate(cur.Reports, cur.EmailsSent)
	coverage := rate(cur.UniqueUsersTested, activeUsers)

	r := &ComplianceReport{
		PeriodStart:               from,
		PeriodEnd:                 to,
		TotalCampaigns:            cur.Campaigns,
		UniqueUsersTested:         cur.UniqueUsersTested,
		ClickRate:                 clickRate,
		ReportRate:                reportRate,
		Trend:                     classifyTrend(clickRate, rate(prev.Clicks, prev.EmailsSent), prev.EmailsSent),
		CoveragePercent:           coverage,
		TrainingCompletionPercent: training,
		MeetsFrequency:            cur.Campaigns >= quartersIn(from, to),
		MeetsCoverage:             coverage >= s.cfg.CoverageThreshold,
		MeetsTraining:             training >= s.cfg.TrainingCompletionThreshold,
	}
	r.Score = complianceScore(r, s.cfg)
	return r, nil
}

func buildFunnel(campaignID uuid.UUID, c *FunnelCounts) *Funnel {
	return &Funnel{
		CampaignID:         campaignID,
		TotalRecipients:    c.TotalRecipients,
		EmailsSent:         c.EmailsSent,
		UniqueOpens:        c.UniqueOpens,
		UniqueClicks:       c.UniqueClicks,
		CredentialsEntered: c.CredentialsEntered,
		Reports:            c.Reports,
		OpenRate:           rate(c.UniqueOpens, c.EmailsSent),
		ClickRate:          rate(c.UniqueClicks, c.EmailsSent),
		SubmitRate:         rate(c.CredentialsEntered, c.EmailsSent),
		ReportRate:         rate(c.Reports, c.EmailsSent),
		RiskScore:          rate(c.UniqueClicks, c.EmailsSent),
		AvgMinutesToOpen:   c.AvgMinutesToOpen,
		MinMinutesToOpen:   c.MinMinutesToOpen,
		AvgMinutesToClick:  c.AvgMinutesToClick,
		MinMinutesToClick:  c.MinMinutesToClick,
	}
}

// rate returns count/total as a 0-100 percentage, 0 when total is 0.
func rate(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

// classifyTrend compares current vs prior click rate. Movement inside the
// band counts as stable, as does an empty prior period.
func classifyTrend(current, prior float64, priorSent int) Trend {
	if priorSent == 0 {
		return TrendStable
	}
	switch diff := current - prior; {
	case diff < -trendBand:
		return TrendImproving
	case diff > trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// quartersIn returns how many full-or-partial quarters the period spans,
// minimum 1. Testing quarterly means at least one campaign per quarter.
func quartersIn(from, to time.Time) int {
	days := to.Sub(from).Hours() / 24
	q := int(math.Ceil(days / 91))
	if q < 1 {
		q = 1
	}
	return q
}

// complianceScore combines the period metrics into a weighted 0-100 score:
// frequency 30, coverage 30, report rate 20, inverse click rate 20.
func complianceScore(r *ComplianceReport, cfg config.ComplianceConfig) int {
	var score float64
	if r.MeetsFrequency {
		score += 30
	}
	if cfg.CoverageThreshold > 0 {
		score += 30 * math.Min(r.CoveragePercent/cfg.CoverageThreshold, 1)
	} else if r.CoveragePercent > 0 {
		score += 30
	}
	score += 20 * r.ReportRate / 100
	score += 20 * (100 - r.ClickRate) / 100

	n := int(math.Round(score))
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n
}
