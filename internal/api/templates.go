package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/aegisawareness/phishsim/internal/service/template"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	f := template.ListFilter{
		Category:   q.Get("category"),
		Difficulty: q.Get("difficulty"),
		Language:   q.Get("language"),
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	}
	list, err := s.templates.List(r.Context(), companyID(r), f)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": list})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	t, err := s.templates.Get(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.templates.Create(r.Context(), companyID(r), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	var u template.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.templates.Update(r.Context(), companyID(r), id, u)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	if err := s.templates.Delete(r.Context(), companyID(r), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewTemplate renders a template against sample recipient data in
// strict mode, returning warnings for undefined variables.
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	t, err := s.templates.Get(r.Context(), companyID(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	bindings := render.Bindings(domain.Recipient{
		FirstName:  "Alex",
		LastName:   "Morgan",
		Email:      "alex.morgan@example.com",
		Department: "Finance",
		Role:       "Analyst",
	}, "Example Corp")

	subject, err := s.personalizer.RenderStrict(t.Subject, bindings)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "subject does not render: "+err.Error())
		return
	}
	body, err := s.personalizer.RenderStrict(t.HTMLBody, bindings)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "body does not render: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"subject": subject,
		"html":    body,
	})
}
