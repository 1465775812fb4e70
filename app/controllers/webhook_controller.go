package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/sangamhq/sangam/internal/pkg/billing"
	"github.com/sangamhq/sangam/internal/pkg/cache"
	"github.com/sangamhq/sangam/internal/pkg/database"
	"github.com/sangamhq/sangam/internal/pkg/notify"
)

const webhookTimeout = 15 * time.Second

// webhookResponse is the JSON envelope every webhook reply uses. Stripe only
// cares about the status code; the rest exists for log correlation and
// operator curl sessions.
type webhookResponse struct {
	Received      bool   `json:"received"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Ignored       bool   `json:"ignored,omitempty"`
	EventType     string `json:"eventType,omitempty"`
	CorrelationID string `json:"correlationId"`
	DurationMs    int64  `json:"durationMs"`
	Error         string `json:"error,omitempty"`
}

// HandleStripeWebhook verifies, decodes and reconciles a Stripe webhook
// delivery. Only signature and configuration failures return non-200; once a
// delivery is authenticated, every outcome is acked so Stripe stops retrying.
func HandleStripeWebhook(c *fiber.Ctx) error {
	start := time.Now()
	correlationID := uuid.New().String()

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	provider := billing.NewStripeClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	event, err := provider.VerifyWebhook(rawBody, signature)
	if err != nil {
		return webhookError(c, correlationID, start, err)
	}

	svc := billing.NewServiceFromDB(database.GetDB(), provider, notify.NewQueueDispatcher(cache.GetClient()))
	outcome, err := svc.Process(ctx, event, correlationID)
	if err != nil {
		return webhookError(c, correlationID, start, err)
	}

	resp := webhookResponse{
		Received:      true,
		Duplicate:     outcome.Duplicate,
		Ignored:       outcome.Ignored,
		EventType:     string(outcome.EventType),
		CorrelationID: correlationID,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	log.Infof("[Webhook] %s handled: duplicate=%t ignored=%t noMatch=%t user=%d in %dms (correlation=%s)",
		outcome.EventType, outcome.Duplicate, outcome.Ignored, outcome.NoMatch, outcome.UserID, resp.DurationMs, correlationID)
	return c.Status(fiber.StatusOK).JSON(resp)
}

func webhookError(c *fiber.Ctx, correlationID string, start time.Time, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, billing.ErrSecretNotConfigured):
		msg = "webhook secret not configured"
	case errors.Is(err, billing.ErrMissingSignature),
		errors.Is(err, billing.ErrEmptyBody),
		errors.Is(err, billing.ErrInvalidSignature):
		status = fiber.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, billing.ErrInvalidEvent):
		status = fiber.StatusBadRequest
		msg = "invalid event payload"
	}

	log.Errorf("[Webhook] Rejected with %d: %v (correlation=%s)", status, err, correlationID)
	return c.Status(status).JSON(webhookResponse{
		Received:      false,
		CorrelationID: correlationID,
		DurationMs:    time.Since(start).Milliseconds(),
		Error:         msg,
	})
}
