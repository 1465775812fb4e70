package models

import "time"

// DefaultProcessedEventTTL bounds idempotency ledger retention. Stripe stops
// redelivering events long before this, so pruning old rows never reopens a
// real duplicate window.
const DefaultProcessedEventTTL = 30 * 24 * time.Hour

// BillingProcessedEvent is an idempotency ledger entry: one row per Stripe
// event id that has been applied. A second insert for the same event id must
// be treated as success, never as an error.
type BillingProcessedEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ProcessedAt time.Time `gorm:"autoCreateTime;index" json:"processed_at"`
	ExpiresAt   time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
}
