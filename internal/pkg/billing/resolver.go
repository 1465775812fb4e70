package billing

import (
	"context"
	"strconv"
	"strings"

	"github.com/sangamhq/sangam/app/models"
)

// IdentityKeys carries the identifiers an event offers for locating a billing
// record. Empty keys are skipped.
type IdentityKeys struct {
	CustomerID     string
	SubscriptionID string
	UserID         string // decimal user id from event metadata
	Email          string
}

// Resolve locates zero or one billing record for the given keys using a
// strict priority chain, stopping at the first match:
//
//  1. exact match on stripe customer id
//  2. exact match on stripe subscription id
//  3. explicit user id carried in event metadata, verified to exist
//  4. case-insensitive exact match on email
//
// No match is not an error: the user may not exist yet or billing metadata
// may be incomplete, and failing loudly would only cause retries that cannot
// succeed. The chain never fans out to multiple records for one event.
func Resolve(ctx context.Context, store Store, keys IdentityKeys) (*models.BillingRecord, error) {
	if rec, err := store.FindByCustomerID(ctx, keys.CustomerID); err != nil || rec != nil {
		return rec, err
	}
	if rec, err := store.FindBySubscriptionID(ctx, keys.SubscriptionID); err != nil || rec != nil {
		return rec, err
	}
	if userID := parseUserID(keys.UserID); userID != 0 {
		if rec, err := store.FindByUserID(ctx, userID); err != nil || rec != nil {
			return rec, err
		}
	}
	return store.FindByEmail(ctx, keys.Email)
}

func parseUserID(raw string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// metadataUserID reads the user id from event metadata under either of the
// key spellings checkout sessions have carried.
func metadataUserID(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	if v := strings.TrimSpace(metadata["user_id"]); v != "" {
		return v
	}
	return strings.TrimSpace(metadata["userId"])
}

// metadataEmail reads the email from event metadata.
func metadataEmail(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(metadata["email"]))
}

// metadataPlanRef reads the plan reference from event metadata under the
// spellings the checkout flow has used.
func metadataPlanRef(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	for _, key := range []string{"planId", "plan_id", "plan"} {
		if v := strings.TrimSpace(metadata[key]); v != "" {
			return v
		}
	}
	return ""
}
