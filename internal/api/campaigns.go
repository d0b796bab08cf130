package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createCampaignRequest struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	TemplateID   uuid.UUID               `json:"template_id"`
	TargetGroups []domain.TargetGroup    `json:"target_groups"`
	Settings     domain.CampaignSettings `json:"settings"`
	ScheduledAt  *time.Time              `json:"scheduled_at"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := s.campaigns.Create(r.Context(), companyID(r), userID(r), campaign.CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		TemplateID:   req.TemplateID,
		TargetGroups: req.TargetGroups,
		Settings:     req.Settings,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, total, err := s.campaigns.List(r.Context(), companyID(r), campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": list,
		"total":     total,
	})
}

func (s *Server) campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	c, err := s.campaigns.Get(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type updateCampaignRequest struct {
	Name         *string                  `json:"name"`
	Description  *string                  `json:"description"`
	TemplateID   *uuid.UUID               `json:"template_id"`
	TargetGroups []domain.TargetGroup     `json:"target_groups"`
	Settings     *domain.CampaignSettings `json:"settings"`
	ScheduledAt  *time.Time               `json:"scheduled_at"`
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req updateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := s.campaigns.Update(r.Context(), companyID(r), id, campaign.UpdateFields{
		Name:         req.Name,
		Description:  req.Description,
		TemplateID:   req.TemplateID,
		TargetGroups: req.TargetGroups,
		Settings:     req.Settings,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c, err := s.campaigns.Schedule(r.Context(), companyID(r), id, req.ScheduledAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleLaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	c, err := s.campaigns.Launch(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	c, err := s.campaigns.Cancel(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	if err := s.campaigns.Delete(r.Context(), companyID(r), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCampaignResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	results, err := s.campaigns.Results(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
