package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/aegisawareness/phishsim/internal/service/analytics"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/aegisawareness/phishsim/internal/service/template"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSafeError logs the internal error and sends a generic message, so
// database details and file paths never reach API consumers.
func respondSafeError(w http.ResponseWriter, status int, internalErr error, publicMsg string) {
	if internalErr != nil {
		log.Printf("ERROR [%d]: %s: %v", status, publicMsg, internalErr)
	}
	respondError(w, status, publicMsg)
}

// respondServiceError maps service-layer sentinel errors to HTTP codes.
// Anything unrecognized is treated as internal and sanitized.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *campaign.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": "validation failed",
			"field": verr.Field,
			"detail": verr.Message,
		})
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, template.ErrNotFound),
		errors.Is(err, analytics.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, template.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNotEditable),
		errors.Is(err, template.ErrTemplateInUse):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNoRecipients):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "an internal error occurred")
	}
}
