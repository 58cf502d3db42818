// Package messaging provides the outbound notification channels for SlotPipe.
//
// Two channels exist: email over SMTP and text over Twilio. Both are hidden
// behind small interfaces so the campaign engine and tests never touch the
// transport directly.
package messaging

import "context"

// EmailMessage is one outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
	// ReplyTo carries the campaign's tokenized reply address so inbound
	// replies can be routed even when the recipient's contact is ambiguous.
	ReplyTo string
}

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// TextSender sends a single SMS. The recipient must be in E.164 form.
type TextSender interface {
	SendText(ctx context.Context, to string, body string) error
}
