package notify

import "context"

// Message is one outbound notification.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier delivers notifications. Callers treat delivery as best effort:
// a failed send is logged and never blocks the operation that produced it.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
