package mail

import "context"

// Message represents an outbound email. Text is the plaintext body; HTML is
// an optional alternative rendering for clients that support it.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
