package billing

import (
	"strings"

	"github.com/sangamhq/sangam/app/models"
	"github.com/sangamhq/sangam/internal/pkg/entitlements"
	"github.com/sangamhq/sangam/internal/pkg/env"
)

// NormalizePlan maps an upstream plan reference (checkout metadata plan id,
// price metadata plan name, or a configured Stripe price id) to a canonical
// plan. Unknown references return ok=false; callers must leave the stored
// plan untouched in that case - an unmapped id is far more likely a new or
// renamed upstream price than an intentional downgrade.
func NormalizePlan(ref string) (entitlements.Plan, bool) {
	r := strings.ToLower(strings.TrimSpace(ref))
	switch r {
	case "":
		return "", false
	case string(entitlements.PlanFree):
		return entitlements.PlanFree, true
	case string(entitlements.PlanPremium):
		return entitlements.PlanPremium, true
	case string(entitlements.PlanPremiumPlus), "premiumplus", "premium-plus":
		return entitlements.PlanPremiumPlus, true
	}

	// Configured price-id mappings are matched verbatim.
	priceRef := strings.TrimSpace(ref)
	if priceRef != "" {
		if priceRef == strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PREMIUM", "")) {
			return entitlements.PlanPremium, true
		}
		if priceRef == strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PREMIUM_PLUS", "")) {
			return entitlements.PlanPremiumPlus, true
		}
	}
	return "", false
}

// NormalizeBestPlan resolves the highest-ranking canonical plan among a set
// of upstream references, skipping anything unmapped.
func NormalizeBestPlan(refs []string) (entitlements.Plan, bool) {
	best := entitlements.Plan("")
	found := false
	for _, ref := range refs {
		plan, ok := NormalizePlan(ref)
		if !ok {
			continue
		}
		if !found || entitlements.Rank(plan) > entitlements.Rank(best) {
			best = plan
			found = true
		}
	}
	return best, found
}

// isEntitlingStatus reports whether a subscription status grants access.
func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// isDelinquentStatus reports whether a status should trigger a renewal
// failure notice.
func isDelinquentStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusPastDue, models.SubscriptionStatusUnpaid:
		return true
	default:
		return false
	}
}
