package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TemplateCategory classifies the attack scenario a template simulates.
type TemplateCategory string

const (
	CategoryCredentialHarvesting TemplateCategory = "credential-harvesting"
	CategoryBEC                  TemplateCategory = "bec"
	CategoryMalware              TemplateCategory = "malware"
	CategorySocialEngineering    TemplateCategory = "social-engineering"
	CategoryTechSupport          TemplateCategory = "tech-support"
	CategoryInvoiceFraud         TemplateCategory = "invoice-fraud"
	CategoryPackageDelivery      TemplateCategory = "package-delivery"
	CategorySocialMedia          TemplateCategory = "social-media"
	CategoryGeneral              TemplateCategory = "general"
)

// ValidCategory reports whether c is a known template category.
func ValidCategory(c TemplateCategory) bool {
	switch c {
	case CategoryCredentialHarvesting, CategoryBEC, CategoryMalware,
		CategorySocialEngineering, CategoryTechSupport, CategoryInvoiceFraud,
		CategoryPackageDelivery, CategorySocialMedia, CategoryGeneral:
		return true
	}
	return false
}

// TemplateDifficulty rates how hard a template is to spot.
type TemplateDifficulty string

const (
	DifficultyEasy   TemplateDifficulty = "easy"
	DifficultyMedium TemplateDifficulty = "medium"
	DifficultyHard   TemplateDifficulty = "hard"
)

// ValidDifficulty reports whether d is a known difficulty level.
func ValidDifficulty(d TemplateDifficulty) bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Template is a reusable phishing email: subject, spoofed sender fields,
// HTML/text bodies and an optional landing page. Public templates belong to
// the system and have no owning company; custom templates are visible only
// to their owner.
type Template struct {
	ID              uuid.UUID          `json:"id"`
	CompanyID       *uuid.UUID         `json:"company_id,omitempty"`
	Name            string             `json:"name"`
	Category        TemplateCategory   `json:"category"`
	Difficulty      TemplateDifficulty `json:"difficulty"`
	Subject         string             `json:"subject"`
	FromName        string             `json:"from_name"`
	FromEmail       string             `json:"from_email"`
	HTMLBody        string             `json:"html_body"`
	TextBody        string             `json:"text_body,omitempty"`
	LandingPageHTML string             `json:"landing_page_html,omitempty"`
	Language        string             `json:"language"`
	IsPublic        bool               `json:"is_public"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Validate checks the invariants that must hold for every template.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if t.HTMLBody == "" {
		return fmt.Errorf("html_body is required")
	}
	if !ValidCategory(t.Category) {
		return fmt.Errorf("unknown category %q", t.Category)
	}
	if !ValidDifficulty(t.Difficulty) {
		return fmt.Errorf("unknown difficulty %q", t.Difficulty)
	}
	if t.IsPublic && t.CompanyID != nil {
		return fmt.Errorf("public template cannot have an owning company")
	}
	if !t.IsPublic && t.CompanyID == nil {
		return fmt.Errorf("custom template requires an owning company")
	}
	return nil
}
