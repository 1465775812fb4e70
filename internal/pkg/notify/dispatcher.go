package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueKey is the Redis list the notification worker consumes.
	QueueKey = "billing_notifications"

	// ProcessingKey holds in-flight notification ids while a worker sends.
	ProcessingKey = "billing_notifications_processing"

	DefaultMaxRetries = 3
)

// Dispatcher enqueues billing notifications. All sends are fire-and-forget
// from the reconciliation engine's perspective: callers log and swallow any
// enqueue error, because a transient queue failure must never turn into a
// webhook retry storm.
type Dispatcher interface {
	SendReceipt(ctx context.Context, email string, details Details) error
	SendCancellation(ctx context.Context, email string, details Details) error
	SendRenewalSuccess(ctx context.Context, email string, details Details) error
	SendRenewalFailure(ctx context.Context, email string, details Details) error
}

// QueueDispatcher pushes notifications onto a Redis list.
type QueueDispatcher struct {
	client *redis.Client
}

// NewQueueDispatcher creates a dispatcher backed by the given Redis client.
func NewQueueDispatcher(client *redis.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

func (d *QueueDispatcher) SendReceipt(ctx context.Context, email string, details Details) error {
	return d.enqueue(ctx, KindReceipt, email, details)
}

func (d *QueueDispatcher) SendCancellation(ctx context.Context, email string, details Details) error {
	return d.enqueue(ctx, KindCancellation, email, details)
}

func (d *QueueDispatcher) SendRenewalSuccess(ctx context.Context, email string, details Details) error {
	return d.enqueue(ctx, KindRenewalSuccess, email, details)
}

func (d *QueueDispatcher) SendRenewalFailure(ctx context.Context, email string, details Details) error {
	return d.enqueue(ctx, KindRenewalFailure, email, details)
}

func (d *QueueDispatcher) enqueue(ctx context.Context, kind Kind, email string, details Details) error {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return errors.New("notification email is required")
	}

	n := Notification{
		ID:         uuid.New().String(),
		Kind:       kind,
		Email:      addr,
		Details:    details,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := d.client.LPush(ctx, QueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	log.Infof("[Notify] Enqueued %s for %s (correlation=%s)", kind, addr, details.CorrelationID)
	return nil
}
