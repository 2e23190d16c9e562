package ports

import (
	"context"
	"errors"
)

var ErrNotifierUnavailable = errors.New("notifier unavailable")

// NotificationEvent is the intent handed to the mail collaborator. Delivery
// and retries belong to the collaborator.
type NotificationEvent struct {
	NCRID      string         `json:"ncr_id"`
	NCRNumber  string         `json:"ncr_number"`
	Kind       string         `json:"kind"`
	Recipient  string         `json:"recipient"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

// Notifier accepts events without waiting on delivery. An error means the
// event was not accepted.
type Notifier interface {
	Dispatch(ctx context.Context, event NotificationEvent) error
}
