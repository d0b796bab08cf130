// Package analytics computes campaign funnels, department and role
// breakdowns, and company-level compliance reports from accumulated
// phishing result rows. Aggregation SQL lives in the repository; this
// package turns raw counts into rates, trends and scores.
package analytics
