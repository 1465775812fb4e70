package notify

import "time"

// Kind identifies a logical billing notification.
type Kind string

const (
	KindReceipt        Kind = "payment_receipt"
	KindCancellation   Kind = "subscription_cancellation"
	KindRenewalSuccess Kind = "renewal_success"
	KindRenewalFailure Kind = "renewal_failure"
)

// Details carries the context a notification email is rendered from.
type Details struct {
	Plan          string `json:"plan,omitempty"`
	EventType     string `json:"event_type,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Notification is a queued billing email. At most one logical notification is
// enqueued per reconciliation action.
type Notification struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Email      string    `json:"email"`
	Details    Details   `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
}

// IsRetryable checks if the notification can be requeued after a send failure.
func (n *Notification) IsRetryable() bool {
	return n.RetryCount < n.MaxRetries
}
