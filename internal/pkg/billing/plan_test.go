package billing

import (
	"testing"

	"github.com/sangamhq/sangam/internal/pkg/entitlements"
)

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in     string
		want   entitlements.Plan
		wantOK bool
	}{
		{in: "free", want: entitlements.PlanFree, wantOK: true},
		{in: "premium", want: entitlements.PlanPremium, wantOK: true},
		{in: "PREMIUM", want: entitlements.PlanPremium, wantOK: true},
		{in: "premium_plus", want: entitlements.PlanPremiumPlus, wantOK: true},
		{in: "premiumplus", want: entitlements.PlanPremiumPlus, wantOK: true},
		{in: "premium-plus", want: entitlements.PlanPremiumPlus, wantOK: true},
		{in: "  premium  ", want: entitlements.PlanPremium, wantOK: true},
		{in: "", wantOK: false},
		{in: "price_unknown", wantOK: false},
		{in: "gold", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := NormalizePlan(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("NormalizePlan(%q) = (%q, %t), want (%q, %t)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizePlanPriceID(t *testing.T) {
	t.Setenv("STRIPE_PRICE_PREMIUM", "price_123premium")
	t.Setenv("STRIPE_PRICE_PREMIUM_PLUS", "price_456plus")

	if got, ok := NormalizePlan("price_123premium"); !ok || got != entitlements.PlanPremium {
		t.Fatalf("expected premium for configured price id, got (%q, %t)", got, ok)
	}
	if got, ok := NormalizePlan("price_456plus"); !ok || got != entitlements.PlanPremiumPlus {
		t.Fatalf("expected premium_plus for configured price id, got (%q, %t)", got, ok)
	}
	if _, ok := NormalizePlan("price_other"); ok {
		t.Fatalf("expected unmapped price id to not normalize")
	}
}

func TestNormalizeBestPlan(t *testing.T) {
	if got, ok := NormalizeBestPlan([]string{"premium", "premium_plus"}); !ok || got != entitlements.PlanPremiumPlus {
		t.Fatalf("expected best plan premium_plus, got (%q, %t)", got, ok)
	}
	if got, ok := NormalizeBestPlan([]string{"unknown", "premium"}); !ok || got != entitlements.PlanPremium {
		t.Fatalf("expected unmapped refs to be skipped, got (%q, %t)", got, ok)
	}
	if _, ok := NormalizeBestPlan([]string{"unknown", ""}); ok {
		t.Fatalf("expected no plan for all-unmapped refs")
	}
	if _, ok := NormalizeBestPlan(nil); ok {
		t.Fatalf("expected no plan for empty refs")
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	for _, status := range []string{"active", "trialing", "Active"} {
		if !isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be entitling", status)
		}
	}
	for _, status := range []string{"past_due", "unpaid", "canceled", "incomplete", ""} {
		if isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be non-entitling", status)
		}
	}
}

func TestIsDelinquentStatus(t *testing.T) {
	for _, status := range []string{"past_due", "unpaid"} {
		if !isDelinquentStatus(status) {
			t.Fatalf("expected status %q to be delinquent", status)
		}
	}
	for _, status := range []string{"active", "trialing", "canceled", ""} {
		if isDelinquentStatus(status) {
			t.Fatalf("expected status %q to be non-delinquent", status)
		}
	}
}
