package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/sangamhq/sangam/app/models"
	"github.com/sangamhq/sangam/internal/pkg/entitlements"
)

// Changes is the per-event set of field updates to merge into a billing
// record. Every rule is conditioned only on the field's current stored value,
// never on an expected prior event having run, so any arrival order across
// event types converges to the same final state.
type Changes struct {
	// Plan overwrites subscription_plan when non-empty.
	Plan entitlements.Plan

	// SetExpiresAt marks ExpiresAt as provided; a nil ExpiresAt with
	// SetExpiresAt true clears the stored expiry (cancellation).
	SetExpiresAt bool
	ExpiresAt    *time.Time

	// CancelAtPeriodEnd overwrites when non-nil.
	CancelAtPeriodEnd *bool

	// CustomerID is set only if the stored value is empty. A differing
	// stored value is reported as a conflict and left unchanged.
	CustomerID string

	// SubscriptionID is set only if the stored value is empty. A differing
	// stored value is replaced only when AllowSubscriptionReplace is set AND
	// the stored customer id equals CustomerID: the same customer rotating
	// subscriptions is safe, a different customer claiming the same
	// subscription id is not.
	SubscriptionID           string
	AllowSubscriptionReplace bool
}

// Apply merges ch into rec per the field policy above. Returned conflict
// descriptions cover identifier writes that were refused; they are logged by
// the caller and never surfaced to the webhook sender.
func (ch Changes) Apply(rec *models.BillingRecord) []string {
	var conflicts []string

	if ch.Plan != "" {
		rec.SubscriptionPlan = string(ch.Plan)
	}
	if ch.SetExpiresAt {
		rec.SubscriptionExpiresAt = ch.ExpiresAt
	}
	if ch.CancelAtPeriodEnd != nil {
		rec.CancelAtPeriodEnd = *ch.CancelAtPeriodEnd
	}

	// The replacement gate below must see the customer id as it was stored
	// before this event, not the value the fill branch just wrote.
	storedCustomerID := rec.StripeCustomerID

	customerID := strings.TrimSpace(ch.CustomerID)
	if customerID != "" {
		switch {
		case rec.StripeCustomerID == "":
			rec.StripeCustomerID = customerID
		case rec.StripeCustomerID != customerID:
			conflicts = append(conflicts, fmt.Sprintf(
				"customer id mismatch: stored=%s incoming=%s (kept stored)",
				rec.StripeCustomerID, customerID))
		}
	}

	subscriptionID := strings.TrimSpace(ch.SubscriptionID)
	if subscriptionID != "" {
		switch {
		case rec.StripeSubscriptionID == "":
			rec.StripeSubscriptionID = subscriptionID
			rec.AppendHistory(subscriptionID)
		case rec.StripeSubscriptionID != subscriptionID:
			if ch.AllowSubscriptionReplace && storedCustomerID != "" && storedCustomerID == customerID {
				rec.AppendHistory(rec.StripeSubscriptionID, subscriptionID)
				rec.StripeSubscriptionID = subscriptionID
			} else {
				conflicts = append(conflicts, fmt.Sprintf(
					"subscription id mismatch: stored=%s incoming=%s (kept stored)",
					rec.StripeSubscriptionID, subscriptionID))
			}
		}
	}

	return conflicts
}
