// Package template implements the phishing template store: reusable email
// and landing-page content, either public (system-owned) or private to a
// single company.
package template
