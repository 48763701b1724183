// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer for them.
package queue

import "time"

// MailQueueName is the durable queue outbound emails travel through.
const MailQueueName = "mail.outbound"

// Mail kinds carried in MailJob.Kind.
const (
	MailKindPasswordReset = "password_reset"
)

// MailJob is a fully rendered email. Rendering happens before publishing,
// so the consumer only needs an SMTP connection and never touches the
// database.
type MailJob struct {
	Kind        string    `json:"kind"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	HTML        string    `json:"html,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
