// Package notify delivers account emails. A Gateway sends one rendered message
// and never retries; Mailer renders the account templates and bounds every
// send with a timeout so a slow provider surfaces as ErrDeliveryFailure.
package notify

import (
	"context"
	"errors"
)

// ErrDeliveryFailure is returned when an email could not be handed to the provider.
// Callers treat it as retryable.
var ErrDeliveryFailure = errors.New("notify: delivery failed")

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Gateway sends a single message. Implementations must not retry.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, msg Message) error

func (f GatewayFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
