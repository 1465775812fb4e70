package billing

import (
	"context"
	"testing"

	"github.com/sangamhq/sangam/app/models"
)

func TestResolvePriorityChain(t *testing.T) {
	store := newFakeStore(
		&models.BillingRecord{UserID: 1, StripeCustomerID: "cus_1"},
		&models.BillingRecord{UserID: 2, StripeSubscriptionID: "sub_2"},
		&models.BillingRecord{UserID: 3, Email: "three@example.com"},
	)

	tests := []struct {
		name string
		keys IdentityKeys
		want uint
	}{
		{
			name: "customer id wins over everything",
			keys: IdentityKeys{CustomerID: "cus_1", SubscriptionID: "sub_2", UserID: "3", Email: "three@example.com"},
			want: 1,
		},
		{
			name: "subscription id wins over user id and email",
			keys: IdentityKeys{SubscriptionID: "sub_2", UserID: "3", Email: "three@example.com"},
			want: 2,
		},
		{
			name: "metadata user id wins over email",
			keys: IdentityKeys{UserID: "2", Email: "three@example.com"},
			want: 2,
		},
		{
			name: "email is the last resort",
			keys: IdentityKeys{Email: "three@example.com"},
			want: 3,
		},
		{
			name: "email matches case-insensitively",
			keys: IdentityKeys{Email: "Three@Example.COM"},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Resolve(context.Background(), store, tt.keys)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if rec == nil || rec.UserID != tt.want {
				t.Fatalf("resolved %+v, want user %d", rec, tt.want)
			}
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	store := newFakeStore(&models.BillingRecord{UserID: 1, StripeCustomerID: "cus_1"})

	rec, err := Resolve(context.Background(), store, IdentityKeys{
		CustomerID:     "cus_unknown",
		SubscriptionID: "sub_unknown",
		UserID:         "99",
		Email:          "nobody@example.com",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no match, got user %d", rec.UserID)
	}
}

func TestResolveSkipsEmptyAndMalformedKeys(t *testing.T) {
	store := newFakeStore(&models.BillingRecord{UserID: 7, Email: "seven@example.com"})

	rec, err := Resolve(context.Background(), store, IdentityKeys{UserID: "not-a-number", Email: "seven@example.com"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec == nil || rec.UserID != 7 {
		t.Fatalf("expected fallthrough to email, got %+v", rec)
	}
}

func TestMetadataHelpers(t *testing.T) {
	if got := metadataUserID(map[string]string{"user_id": "42"}); got != "42" {
		t.Fatalf("metadataUserID = %q, want 42", got)
	}
	if got := metadataUserID(map[string]string{"userId": "7"}); got != "7" {
		t.Fatalf("metadataUserID camelCase = %q, want 7", got)
	}
	if got := metadataUserID(nil); got != "" {
		t.Fatalf("metadataUserID(nil) = %q, want empty", got)
	}
	if got := metadataEmail(map[string]string{"email": " User@Example.com "}); got != "user@example.com" {
		t.Fatalf("metadataEmail = %q", got)
	}
	if got := metadataPlanRef(map[string]string{"plan_id": "premium"}); got != "premium" {
		t.Fatalf("metadataPlanRef = %q, want premium", got)
	}
	if got := metadataPlanRef(map[string]string{"planId": "premium_plus"}); got != "premium_plus" {
		t.Fatalf("metadataPlanRef = %q, want premium_plus", got)
	}
}
