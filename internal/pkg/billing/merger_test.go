package billing

import (
	"testing"
	"time"

	"github.com/sangamhq/sangam/app/models"
	"github.com/sangamhq/sangam/internal/pkg/entitlements"
)

func TestApplyOverwritesProvidedFields(t *testing.T) {
	expiry := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	cancel := true

	rec := &models.BillingRecord{UserID: 1, SubscriptionPlan: "free"}
	conflicts := Changes{
		Plan:              entitlements.PlanPremium,
		SetExpiresAt:      true,
		ExpiresAt:         &expiry,
		CancelAtPeriodEnd: &cancel,
	}.Apply(rec)

	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	if rec.SubscriptionPlan != "premium" {
		t.Fatalf("plan = %q, want premium", rec.SubscriptionPlan)
	}
	if rec.SubscriptionExpiresAt == nil || !rec.SubscriptionExpiresAt.Equal(expiry) {
		t.Fatalf("expiry = %v, want %v", rec.SubscriptionExpiresAt, expiry)
	}
	if !rec.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to be set")
	}
}

func TestApplyLeavesAbsentFieldsUntouched(t *testing.T) {
	expiry := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.BillingRecord{
		UserID:                1,
		SubscriptionPlan:      "premium",
		SubscriptionExpiresAt: &expiry,
		CancelAtPeriodEnd:     true,
	}

	Changes{}.Apply(rec)

	if rec.SubscriptionPlan != "premium" || rec.SubscriptionExpiresAt == nil || !rec.CancelAtPeriodEnd {
		t.Fatalf("empty changes must not touch stored fields: %+v", rec)
	}
}

func TestApplyClearsExpiryWhenProvidedNil(t *testing.T) {
	expiry := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.BillingRecord{UserID: 1, SubscriptionExpiresAt: &expiry}

	Changes{SetExpiresAt: true, ExpiresAt: nil}.Apply(rec)

	if rec.SubscriptionExpiresAt != nil {
		t.Fatalf("expected expiry cleared, got %v", rec.SubscriptionExpiresAt)
	}
}

func TestApplyCustomerIDFillIfEmpty(t *testing.T) {
	rec := &models.BillingRecord{UserID: 1}
	if conflicts := (Changes{CustomerID: "cus_1"}).Apply(rec); len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	if rec.StripeCustomerID != "cus_1" {
		t.Fatalf("customer id = %q, want cus_1", rec.StripeCustomerID)
	}

	// same value again is a no-op
	if conflicts := (Changes{CustomerID: "cus_1"}).Apply(rec); len(conflicts) != 0 {
		t.Fatalf("re-applying same customer id must not conflict: %v", conflicts)
	}

	// differing value is refused and reported
	conflicts := Changes{CustomerID: "cus_2"}.Apply(rec)
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflicts)
	}
	if rec.StripeCustomerID != "cus_1" {
		t.Fatalf("stored customer id must win, got %q", rec.StripeCustomerID)
	}
}

func TestApplySubscriptionIDFillAndHistory(t *testing.T) {
	rec := &models.BillingRecord{UserID: 1}
	Changes{SubscriptionID: "sub_1"}.Apply(rec)

	if rec.StripeSubscriptionID != "sub_1" {
		t.Fatalf("subscription id = %q, want sub_1", rec.StripeSubscriptionID)
	}
	if ids := rec.HistoryIDs(); len(ids) != 1 || ids[0] != "sub_1" {
		t.Fatalf("history = %v, want [sub_1]", ids)
	}
}

func TestApplySubscriptionReplaceRequiresMatchingCustomer(t *testing.T) {
	rec := &models.BillingRecord{
		UserID:               1,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_old",
	}

	// replacement flag without a matching customer id is refused
	conflicts := Changes{SubscriptionID: "sub_new", CustomerID: "cus_2", AllowSubscriptionReplace: true}.Apply(rec)
	if len(conflicts) == 0 || rec.StripeSubscriptionID != "sub_old" {
		t.Fatalf("expected refusal for foreign customer, got conflicts=%v sub=%q", conflicts, rec.StripeSubscriptionID)
	}

	// same customer rotating subscriptions is allowed and recorded
	conflicts = Changes{SubscriptionID: "sub_new", CustomerID: "cus_1", AllowSubscriptionReplace: true}.Apply(rec)
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	if rec.StripeSubscriptionID != "sub_new" {
		t.Fatalf("subscription id = %q, want sub_new", rec.StripeSubscriptionID)
	}
	ids := rec.HistoryIDs()
	if len(ids) != 2 {
		t.Fatalf("history = %v, want both old and new id", ids)
	}
}

func TestApplySubscriptionReplaceRefusedWithoutStoredCustomer(t *testing.T) {
	// No customer id on file yet: the event fills it in, but that freshly
	// written value must not satisfy the replacement gate. The stored
	// subscription id is kept pending a later event whose customer id was
	// already on record.
	rec := &models.BillingRecord{
		UserID:               1,
		StripeSubscriptionID: "sub_old",
	}

	conflicts := Changes{SubscriptionID: "sub_new", CustomerID: "cus_new", AllowSubscriptionReplace: true}.Apply(rec)
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", conflicts)
	}
	if rec.StripeSubscriptionID != "sub_old" {
		t.Fatalf("subscription id = %q, want sub_old kept", rec.StripeSubscriptionID)
	}
	if rec.StripeCustomerID != "cus_new" {
		t.Fatalf("customer id = %q, want cus_new filled", rec.StripeCustomerID)
	}
}

func TestApplySubscriptionReplaceRefusedWithoutFlag(t *testing.T) {
	rec := &models.BillingRecord{
		UserID:               1,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_old",
	}

	conflicts := Changes{SubscriptionID: "sub_new", CustomerID: "cus_1"}.Apply(rec)
	if len(conflicts) != 1 || rec.StripeSubscriptionID != "sub_old" {
		t.Fatalf("expected refusal without replace flag, got conflicts=%v sub=%q", conflicts, rec.StripeSubscriptionID)
	}
}

func TestApplyOrderIndependenceForIdentifiers(t *testing.T) {
	checkout := Changes{CustomerID: "cus_1", SubscriptionID: "sub_1", AllowSubscriptionReplace: true}
	invoice := Changes{CustomerID: "cus_1", SubscriptionID: "sub_1"}

	a := &models.BillingRecord{UserID: 1}
	checkout.Apply(a)
	invoice.Apply(a)

	b := &models.BillingRecord{UserID: 1}
	invoice.Apply(b)
	checkout.Apply(b)

	if a.StripeCustomerID != b.StripeCustomerID || a.StripeSubscriptionID != b.StripeSubscriptionID {
		t.Fatalf("identifier merge must converge regardless of order: %+v vs %+v", a, b)
	}
}
