// Package render turns a phishing template plus a recipient into the final
// email body: liquid personalization, open-pixel injection and hyperlink
// rewriting through the tracking endpoints.
package render

import (
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/osteele/liquid"
)

// Warning flags a template variable with no binding.
type Warning struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// Result is the outcome of a strict render.
type Result struct {
	Output   string    `json:"output"`
	Warnings []Warning `json:"warnings,omitempty"`
	Success  bool      `json:"success"`
}

// Personalizer renders liquid templates with per-recipient bindings.
// Parsed templates are cached by key for repeated sends.
type Personalizer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewPersonalizer() *Personalizer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	return &Personalizer{engine: engine}
}

// Bindings builds the variable set a template sees for one recipient.
func Bindings(r domain.Recipient, companyName string) map[string]interface{} {
	return map[string]interface{}{
		"first_name":   r.FirstName,
		"last_name":    r.LastName,
		"email":        r.Email,
		"department":   r.Department,
		"role":         r.Role,
		"company_name": companyName,
	}
}

// Render personalizes src with the given bindings. On parse or render error
// the original source is returned so a broken template degrades to a
// generic email rather than failing the send.
func (p *Personalizer) Render(cacheKey, src string, bindings map[string]interface{}) string {
	if cacheKey != "" {
		if cached, ok := p.cache.Load(cacheKey); ok {
			out, err := cached.(*liquid.Template).RenderString(bindings)
			if err == nil {
				return out
			}
		}
	}
	tpl, err := p.engine.ParseString(src)
	if err != nil {
		log.Printf("[Render] Parse error: %v", err)
		return src
	}
	if cacheKey != "" {
		p.cache.Store(cacheKey, tpl)
	}
	out, err := tpl.RenderString(bindings)
	if err != nil {
		log.Printf("[Render] Render error: %v", err)
		return src
	}
	return out
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

// RenderStrict renders src and reports any variable that has no binding.
// Used by the template preview endpoint.
func (p *Personalizer) RenderStrict(src string, bindings map[string]interface{}) (*Result, error) {
	res := &Result{Success: true}
	for _, m := range varPattern.FindAllStringSubmatch(src, -1) {
		name := strings.SplitN(m[1], ".", 2)[0]
		if _, ok := bindings[name]; !ok {
			res.Success = false
			res.Warnings = append(res.Warnings, Warning{
				Variable: name,
				Message:  fmt.Sprintf("variable %q is not defined", name),
			})
		}
	}
	out, err := p.engine.ParseAndRenderString(src, bindings)
	if err != nil {
		return res, fmt.Errorf("render: %w", err)
	}
	res.Output = out
	return res, nil
}

// Tracker builds tracking URLs and weaves them into rendered HTML.
type Tracker struct {
	// BaseURL is the public origin of the tracking server, no trailing slash.
	BaseURL string
}

// PixelURL returns the open-tracking pixel URL for a token.
func (t *Tracker) PixelURL(token string) string {
	return fmt.Sprintf("%s/phishing/track/%s/open", t.BaseURL, token)
}

// ClickURL returns the click-tracking URL carrying the original target.
func (t *Tracker) ClickURL(token, original string) string {
	return fmt.Sprintf("%s/phishing/track/%s/click?url=%s", t.BaseURL, token, url.QueryEscape(original))
}

// Inject adds the open pixel before </body> and rewrites outbound links
// through the click endpoint, honoring the campaign's tracking toggles.
func (t *Tracker) Inject(html, token string, trackOpens, trackClicks bool) string {
	if trackClicks {
		html = t.rewriteLinks(html, token)
	}
	if trackOpens {
		pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none" alt="" />`, t.PixelURL(token))
		if strings.Contains(html, "</body>") {
			html = strings.Replace(html, "</body>", pixel+"</body>", 1)
		} else {
			html += pixel
		}
	}
	return html
}

// rewriteLinks replaces every href pointing at an http(s) URL with a tracked
// version. URLs already pointing at the tracking server are left alone.
func (t *Tracker) rewriteLinks(html, token string) string {
	var b strings.Builder
	rest := html
	for {
		i := strings.Index(rest, `href="http`)
		if i == -1 {
			break
		}
		start := i + len(`href="`)
		end := strings.Index(rest[start:], `"`)
		if end == -1 {
			break
		}
		original := rest[start : start+end]
		b.WriteString(rest[:start])
		if strings.Contains(original, "/phishing/track/") {
			b.WriteString(original)
		} else {
			b.WriteString(t.ClickURL(token, original))
		}
		rest = rest[start+end:]
	}
	b.WriteString(rest)
	return b.String()
}
