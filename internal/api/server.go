// Package api is the authenticated admin surface: campaign and template
// management plus analytics, scoped per company by middleware.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aegisawareness/phishsim/internal/config"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/aegisawareness/phishsim/internal/service/analytics"
	"github.com/aegisawareness/phishsim/internal/service/campaign"
	"github.com/aegisawareness/phishsim/internal/service/template"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server hosts the admin API.
type Server struct {
	templates    *template.Service
	campaigns    *campaign.Service
	analytics    *analytics.Service
	personalizer *render.Personalizer
	httpServer   *http.Server
}

func NewServer(cfg config.ServerConfig, templates *template.Service, campaigns *campaign.Service, analyticsSvc *analytics.Service) *Server {
	s := &Server{
		templates:    templates,
		campaigns:    campaigns,
		analytics:    analyticsSvc,
		personalizer: render.NewPersonalizer(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Company-ID", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CompanyScope)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Get("/{id}/preview", s.handlePreviewTemplate)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Put("/{id}", s.handleUpdateCampaign)
			r.Delete("/{id}", s.handleDeleteCampaign)
			r.Post("/{id}/schedule", s.handleScheduleCampaign)
			r.Post("/{id}/launch", s.handleLaunchCampaign)
			r.Post("/{id}/cancel", s.handleCancelCampaign)
			r.Get("/{id}/results", s.handleListCampaignResults)
			r.Get("/{id}/stats", s.handleCampaignStats)
			r.Get("/{id}/stats/departments", s.handleDepartmentBreakdown)
			r.Get("/{id}/stats/roles", s.handleRoleBreakdown)
		})

		r.Get("/compliance/report", s.handleComplianceReport)
	})

	return r
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[API] Listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
