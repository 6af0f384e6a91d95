// Package publisher emits run-completion notifications.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Noop discards every payload. It is used when no topic is configured.
type Noop struct{}

// Publish drops the payload.
func (Noop) Publish(context.Context, any) (string, error) {
	return "", nil
}
