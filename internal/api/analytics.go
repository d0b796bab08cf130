package api

import (
	"net/http"
	"time"
)

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	funnel, err := s.analytics.CampaignFunnel(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, funnel)
}

func (s *Server) handleDepartmentBreakdown(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	stats, err := s.analytics.DepartmentBreakdown(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"departments": stats})
}

func (s *Server) handleRoleBreakdown(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	stats, err := s.analytics.RoleBreakdown(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"roles": stats})
}

// handleComplianceReport aggregates the company's campaigns over a period.
// Defaults to the last 90 days.
func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -90)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from time, want RFC 3339")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to time, want RFC 3339")
			return
		}
		to = t
	}

	report, err := s.analytics.ComplianceReport(r.Context(), companyID(r), from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
