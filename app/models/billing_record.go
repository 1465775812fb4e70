package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusUnpaid   = "unpaid"
	SubscriptionStatusCanceled = "canceled"
)

// BillingRecord holds the per-user subscription/payment state reconciled from
// Stripe webhook events. Exactly one row exists per user; it is created empty
// by the signup path and only ever mutated by the reconciliation engine.
type BillingRecord struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Email                 string     `gorm:"type:varchar(200);not null;default:'';index" json:"email"`
	StripeCustomerID      string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeSubscriptionID  string     `gorm:"type:varchar(191);default:'';index" json:"stripe_subscription_id"`
	SubscriptionHistory   string     `gorm:"type:text" json:"subscription_history"`
	SubscriptionPlan      string     `gorm:"type:varchar(50);not null;default:'free'" json:"subscription_plan"`
	SubscriptionExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"subscription_expires_at,omitempty"`
	CancelAtPeriodEnd     bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrCreateBillingRecord returns the user's billing record, creating the
// empty default row if the signup path has not done so yet.
func GetOrCreateBillingRecord(db *gorm.DB, userID uint, email string) (*BillingRecord, error) {
	var rec BillingRecord
	if err := db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			rec = BillingRecord{UserID: userID, Email: strings.ToLower(strings.TrimSpace(email)), SubscriptionPlan: "free"}
			if err := db.Create(&rec).Error; err != nil {
				return nil, err
			}
			return &rec, nil
		}
		return nil, err
	}
	return &rec, nil
}

// HistoryIDs returns the deduplicated set of subscription ids this record has
// ever carried. Stored as a JSON array; order is irrelevant.
func (r *BillingRecord) HistoryIDs() []string {
	if strings.TrimSpace(r.SubscriptionHistory) == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(r.SubscriptionHistory), &ids); err != nil {
		return nil
	}
	return ids
}

// AppendHistory adds the given subscription ids to the history set, skipping
// empties and duplicates.
func (r *BillingRecord) AppendHistory(subIDs ...string) {
	existing := r.HistoryIDs()
	seen := make(map[string]struct{}, len(existing)+len(subIDs))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, raw := range subIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		existing = append(existing, id)
	}
	if len(existing) == 0 {
		return
	}
	data, err := json.Marshal(existing)
	if err != nil {
		return
	}
	r.SubscriptionHistory = string(data)
}
