package entitlements

import "strings"

type Plan string

const (
	PlanFree        Plan = "free"
	PlanPremium     Plan = "premium"
	PlanPremiumPlus Plan = "premium_plus"
)

// Normalize maps arbitrary stored plan strings onto a known Plan, falling
// back to free for anything unrecognized.
func Normalize(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanPremium:
		return PlanPremium
	case PlanPremiumPlus:
		return PlanPremiumPlus
	default:
		return PlanFree
	}
}

// Rank orders plans for best-plan selection; higher wins.
func Rank(plan Plan) int {
	switch Normalize(string(plan)) {
	case PlanPremiumPlus:
		return 2
	case PlanPremium:
		return 1
	default:
		return 0
	}
}

// ContactRevealsPerDay returns how many phone/contact reveals a plan allows per day.
func ContactRevealsPerDay(plan Plan) int {
	switch Normalize(string(plan)) {
	case PlanPremiumPlus:
		return 50
	case PlanPremium:
		return 10
	default:
		return 0
	}
}

// AllowedFeatures returns which premium surfaces a plan unlocks.
func AllowedFeatures(plan Plan) (unlimitedMessaging, horoscopeMatching, profileBoost bool) {
	switch Normalize(string(plan)) {
	case PlanPremiumPlus:
		return true, true, true
	case PlanPremium:
		return true, true, false
	default:
		return false, false, false
	}
}
