package billing

import (
	"context"
	"errors"
	"testing"
)

func TestVerifyWebhookMissingSignature(t *testing.T) {
	c := NewStripeClient("whsec_test", "")
	if _, err := c.VerifyWebhook([]byte(`{}`), ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if _, err := c.VerifyWebhook([]byte(`{}`), "   "); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature for blank header, got %v", err)
	}
}

func TestVerifyWebhookEmptyBody(t *testing.T) {
	c := NewStripeClient("whsec_test", "")
	if _, err := c.VerifyWebhook(nil, "t=1,v1=abc"); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestVerifyWebhookSecretNotConfigured(t *testing.T) {
	c := NewStripeClient("", "")
	if _, err := c.VerifyWebhook([]byte(`{}`), "t=1,v1=abc"); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured, got %v", err)
	}
}

func TestVerifyWebhookInvalidSignature(t *testing.T) {
	c := NewStripeClient("whsec_test", "")
	_, err := c.VerifyWebhook([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestRetrieveSubscriptionWithoutAPIKey(t *testing.T) {
	c := NewStripeClient("whsec_test", "")
	if _, err := c.RetrieveSubscription(context.Background(), "sub_1"); err == nil {
		t.Fatalf("expected error without configured API key")
	}
}
