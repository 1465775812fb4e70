package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/sangamhq/sangam/internal/pkg/env"
)

// ProviderClient is the narrow payment-provider surface the engine consumes.
// The reconciliation logic never touches the vendor SDK directly, so tests
// run against in-memory fakes.
type ProviderClient interface {
	// VerifyWebhook authenticates a raw delivery and returns the verified,
	// not yet decoded event. Fails with ErrMissingSignature, ErrEmptyBody,
	// ErrSecretNotConfigured or ErrInvalidSignature.
	VerifyWebhook(payload []byte, signatureHeader string) (*RawEvent, error)

	// RetrieveSubscription fetches current subscription detail from the provider.
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)

	// RetrieveInvoice fetches invoice detail from the provider.
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
}

// StripeClient implements ProviderClient on the official Stripe SDK.
type StripeClient struct {
	webhookSecret string
	api           *client.API
}

// NewStripeClient creates a client with explicit configuration.
func NewStripeClient(webhookSecret, apiKey string) *StripeClient {
	c := &StripeClient{webhookSecret: strings.TrimSpace(webhookSecret)}
	if key := strings.TrimSpace(apiKey); key != "" {
		c.api = &client.API{}
		c.api.Init(key, nil)
	}
	return c
}

// NewStripeClientFromEnv creates a client from STRIPE_WEBHOOK_SECRET and
// STRIPE_SECRET_KEY.
func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		env.GetEnv("STRIPE_SECRET_KEY", ""),
	)
}

func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (*RawEvent, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, ErrMissingSignature
	}
	if len(payload) == 0 {
		return nil, ErrEmptyBody
	}
	if c.webhookSecret == "" {
		return nil, ErrSecretNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		// The library error can include signature material; keep it out of
		// anything that reaches the caller.
		return nil, ErrInvalidSignature
	}

	return &RawEvent{
		ID:      event.ID,
		Type:    EventType(event.Type),
		Payload: append([]byte(nil), event.Data.Raw...),
	}, nil
}

func (c *StripeClient) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	if c.api == nil {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	subID := strings.TrimSpace(id)
	if subID == "" {
		return nil, errors.New("subscription id is required")
	}

	sub, err := c.api.Subscriptions.Get(subID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", subID, err)
	}

	// The SDK structs marshal with Stripe's wire field names, so decoding
	// into the engine's payload shape keeps one decode path for webhook
	// payloads and API retrievals alike.
	var out Subscription
	if err := roundTrip(sub, &out); err != nil {
		return nil, fmt.Errorf("decode subscription %s: %w", subID, err)
	}
	return &out, nil
}

func (c *StripeClient) RetrieveInvoice(ctx context.Context, id string) (*Invoice, error) {
	if c.api == nil {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	invID := strings.TrimSpace(id)
	if invID == "" {
		return nil, errors.New("invoice id is required")
	}

	inv, err := c.api.Invoices.Get(invID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve invoice %s: %w", invID, err)
	}

	var out Invoice
	if err := roundTrip(inv, &out); err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", invID, err)
	}
	return &out, nil
}

func roundTrip(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
