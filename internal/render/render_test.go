package render_test

import (
	"strings"
	"testing"

	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPersonalizes(t *testing.T) {
	p := render.NewPersonalizer()
	bindings := render.Bindings(domain.Recipient{
		FirstName: "Alice", LastName: "Nguyen", Email: "alice@acme.test",
	}, "Acme Corp")

	out := p.Render("", "Hi {{ first_name }}, your {{ company_name }} account needs review.", bindings)
	assert.Equal(t, "Hi Alice, your Acme Corp account needs review.", out)
}

func TestRenderDefaultFilter(t *testing.T) {
	p := render.NewPersonalizer()
	out := p.Render("", `Hello {{ first_name | default: "there" }}`, map[string]interface{}{"first_name": ""})
	assert.Equal(t, "Hello there", out)
}

func TestRenderBrokenTemplateFallsBack(t *testing.T) {
	p := render.NewPersonalizer()
	src := "Hi {{ first_name"
	out := p.Render("", src, map[string]interface{}{})
	assert.Equal(t, src, out)
}

func TestRenderStrictWarnsOnUndefined(t *testing.T) {
	p := render.NewPersonalizer()
	res, err := p.RenderStrict("Hi {{ first_name }}, code {{ discount_code }}", map[string]interface{}{"first_name": "Bob"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "discount_code", res.Warnings[0].Variable)
	assert.Equal(t, "Hi Bob, code ", res.Output)
}

func TestInjectPixel(t *testing.T) {
	tr := &render.Tracker{BaseURL: "https://t.example.com"}
	html := "<html><body><p>Hello</p></body></html>"

	out := tr.Inject(html, "tok123", true, false)
	assert.Contains(t, out, `<img src="https://t.example.com/phishing/track/tok123/open"`)
	assert.Less(t, strings.Index(out, "/open"), strings.Index(out, "</body>"))

	// Opens disabled: untouched.
	assert.Equal(t, html, tr.Inject(html, "tok123", false, false))
}

func TestInjectPixelWithoutBodyTag(t *testing.T) {
	tr := &render.Tracker{BaseURL: "https://t.example.com"}
	out := tr.Inject("<p>Hello</p>", "tok123", true, false)
	assert.Contains(t, out, "/phishing/track/tok123/open")
}

func TestRewriteLinks(t *testing.T) {
	tr := &render.Tracker{BaseURL: "https://t.example.com"}
	html := `<a href="https://evil-portal.example.com/login?x=1">Sign in</a> and <a href="http://docs.example.com/">docs</a>`

	out := tr.Inject(html, "tok123", false, true)
	assert.Contains(t, out, `href="https://t.example.com/phishing/track/tok123/click?url=https%3A%2F%2Fevil-portal.example.com%2Flogin%3Fx%3D1"`)
	assert.Contains(t, out, `url=http%3A%2F%2Fdocs.example.com%2F`)
	assert.NotContains(t, out, `href="https://evil-portal.example.com`)
}

func TestRewriteSkipsTrackingURLs(t *testing.T) {
	tr := &render.Tracker{BaseURL: "https://t.example.com"}
	html := `<a href="https://t.example.com/phishing/track/tok123/click?url=x">already tracked</a>`
	out := tr.Inject(html, "tok123", false, true)
	assert.Equal(t, html, out)
}
