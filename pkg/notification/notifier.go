// Package notification delivers rendered messages to external destinations.
// Message templating is the caller's concern; a Notifier only transports.
package notification

import "context"

// Message is a fully rendered notification
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends a rendered message to a destination
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
