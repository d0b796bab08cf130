// Package tracking serves the public, unauthenticated interaction endpoints
// hit by recipients' mail clients and browsers. Every response is success
// shaped regardless of token validity so probing URLs reveals nothing.
package tracking

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/go-chi/chi/v5"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EventMeta is the request context captured alongside an interaction.
type EventMeta struct {
	IPAddress string
	UserAgent string
	// Location holds free-form context: the clicked URL for click events,
	// the reporter's reason for report events.
	Location string
}

// ClickOutcome is what a click mark returns: whether the token resolved,
// whether this was the first click, and the campaign's redirect settings.
type ClickOutcome struct {
	Found    bool
	First    bool
	Settings domain.CampaignSettings
}

// ResultStore records interactions with first-write-wins semantics. Every
// mark is an atomic conditional update; a second event for the same token
// reports first=false and changes nothing. Unknown tokens are not errors.
type ResultStore interface {
	MarkOpened(ctx context.Context, token string, at time.Time, meta EventMeta) (first bool, err error)
	MarkClicked(ctx context.Context, token string, at time.Time, meta EventMeta) (ClickOutcome, error)
	MarkSubmitted(ctx context.Context, token string, at time.Time, meta EventMeta) (first bool, err error)
	MarkReported(ctx context.Context, token string, at time.Time, meta EventMeta) (first bool, err error)
}

// Handler serves the public tracking endpoints.
type Handler struct {
	store ResultStore
	// defaultRedirect is where clicks land when the campaign has no
	// configured target or the token is unknown.
	defaultRedirect string
}

func NewHandler(store ResultStore, defaultRedirect string) *Handler {
	return &Handler{store: store, defaultRedirect: defaultRedirect}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/phishing/track/{token}/open", h.HandleOpen)
	r.Get("/phishing/track/{token}/click", h.HandleClick)
	r.Post("/phishing/track/{token}/submit", h.HandleSubmit)
	r.Post("/phishing/track/{token}/report", h.HandleReport)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	first, err := h.store.MarkOpened(r.Context(), token, time.Now().UTC(), meta(r, ""))
	if err != nil {
		log.Printf("[Tracking] open mark failed: %v", err)
	}
	if first {
		log.Printf("OPEN token=%s", token)
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	original := r.URL.Query().Get("url")

	out, err := h.store.MarkClicked(r.Context(), token, time.Now().UTC(), meta(r, original))
	if err != nil {
		log.Printf("[Tracking] click mark failed: %v", err)
	}
	if out.First {
		log.Printf("CLICK token=%s url=%s", token, original)
	}
	http.Redirect(w, r, h.clickTarget(out), http.StatusFound)
}

// clickTarget applies the redirect precedence. The training page wins for a
// first click; otherwise landing page, then the campaign redirect, then the
// default awareness page. Unknown tokens get the default, through the same
// code path.
func (h *Handler) clickTarget(out ClickOutcome) string {
	if !out.Found {
		return h.defaultRedirect
	}
	if out.First && out.Settings.TrainingURL != "" {
		return out.Settings.TrainingURL
	}
	if out.Settings.LandingPageURL != "" {
		return out.Settings.LandingPageURL
	}
	if out.Settings.RedirectURL != "" {
		return out.Settings.RedirectURL
	}
	return h.defaultRedirect
}

// HandleSubmit records that credentials were entered. The posted payload is
// never read into storage, only the fact and timestamp are kept.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	first, err := h.store.MarkSubmitted(r.Context(), token, time.Now().UTC(), meta(r, ""))
	if err != nil {
		log.Printf("[Tracking] submit mark failed: %v", err)
	}
	if first {
		log.Printf("SUBMIT token=%s", token)
	}
	h.serveOK(w)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	reason := r.FormValue("reason")
	if len(reason) > 500 {
		reason = reason[:500]
	}

	first, err := h.store.MarkReported(r.Context(), token, time.Now().UTC(), meta(r, reason))
	if err != nil {
		log.Printf("[Tracking] report mark failed: %v", err)
	}
	if first {
		log.Printf("REPORT token=%s", token)
	}
	h.serveOK(w)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func (h *Handler) serveOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func meta(r *http.Request, location string) EventMeta {
	return EventMeta{
		IPAddress: realIP(r),
		UserAgent: r.UserAgent(),
		Location:  location,
	}
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
