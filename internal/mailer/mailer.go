// Package mailer defines the outbound email contract and its AWS SES
// implementation.
package mailer

import "context"

// Message is one outbound simulation email, fully rendered.
type Message struct {
	To         string
	Subject    string
	HTMLBody   string
	TextBody   string
	FromName   string
	FromEmail  string
	CampaignID string
	// Headers are extra SMTP headers, e.g. a plus-addressed List-Id used by
	// mail-client report buttons.
	Headers map[string]string
}

// Mailer delivers a single message. Implementations must honor the context
// deadline so a stuck provider cannot stall the dispatch loop.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}
