package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/sangamhq/sangam/app/models"
	"github.com/sangamhq/sangam/internal/pkg/entitlements"
	"github.com/sangamhq/sangam/internal/pkg/notify"
)

// Service reconciles verified Stripe webhook events into per-user billing
// records. It is safe under at-least-once, out-of-order, duplicate delivery:
// the ledger suppresses duplicate side effects and the merge policy is
// idempotent and commutative per field.
type Service struct {
	store    Store
	ledger   Ledger
	provider ProviderClient
	notifier notify.Dispatcher
}

// NewService creates a service from injected collaborators.
func NewService(store Store, ledger Ledger, provider ProviderClient, notifier notify.Dispatcher) *Service {
	return &Service{store: store, ledger: ledger, provider: provider, notifier: notifier}
}

// NewServiceFromDB creates a service backed by GORM for storage and ledger.
func NewServiceFromDB(db *gorm.DB, provider ProviderClient, notifier notify.Dispatcher) *Service {
	return &Service{store: NewStore(db), ledger: NewLedger(db), provider: provider, notifier: notifier}
}

// Outcome describes how a delivery was handled.
type Outcome struct {
	EventID   string
	EventType EventType
	Ignored   bool // event type outside the allowlist
	Duplicate bool // event id already in the idempotency ledger
	NoMatch   bool // no billing record resolved; acked as a no-op
	UserID    uint
}

// Process applies one verified delivery: allowlist filter, idempotency
// check, decode, identity resolution, transactional merge, notification
// dispatch, and finally the ledger mark. The correlation id is threaded
// through explicitly for log correlation.
func (s *Service) Process(ctx context.Context, raw *RawEvent, correlationID string) (*Outcome, error) {
	if raw == nil || strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(string(raw.Type)) == "" {
		return nil, ErrInvalidEvent
	}
	out := &Outcome{EventID: raw.ID, EventType: raw.Type}

	if !IsAllowedEventType(raw.Type) {
		out.Ignored = true
		return out, nil
	}

	duplicate, err := s.ledger.AlreadyProcessed(ctx, raw.ID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if duplicate {
		out.Duplicate = true
		return out, nil
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		return nil, err
	}

	keys, changes, notifications := s.planMutation(ctx, event, correlationID)

	record, err := Resolve(ctx, s.store, keys)
	if err != nil {
		return nil, fmt.Errorf("identity resolution: %w", err)
	}
	if record == nil {
		// The user may not exist yet or billing metadata may be incomplete;
		// retrying cannot fix either, so ack without mutation.
		log.Infof("[Billing] No record matched event %s (type=%s, correlation=%s)", event.ID, event.Type, correlationID)
		out.NoMatch = true
		if err := s.ledger.MarkProcessed(ctx, event.ID, string(event.Type)); err != nil {
			log.Errorf("[Billing] Ledger mark failed for %s: %v (correlation=%s)", event.ID, err, correlationID)
		}
		return out, nil
	}
	out.UserID = record.UserID

	merged, err := s.store.TransactionalMerge(ctx, record.UserID, func(rec *models.BillingRecord) error {
		for _, conflict := range changes.Apply(rec) {
			log.Warnf("[Billing] Conflict on user %d, event %s: %s (correlation=%s)", rec.UserID, event.ID, conflict, correlationID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			out.NoMatch = true
			return out, nil
		}
		return nil, fmt.Errorf("merge for user %d: %w", record.UserID, err)
	}

	s.dispatch(ctx, merged, event, notifications, correlationID)

	if err := s.ledger.MarkProcessed(ctx, event.ID, string(event.Type)); err != nil {
		log.Errorf("[Billing] Ledger mark failed for %s: %v (correlation=%s)", event.ID, err, correlationID)
	}
	return out, nil
}

// planMutation maps a decoded event onto the identity keys to try, the field
// changes to merge, and the notifications to enqueue. This is the engine's
// whole event-type state machine; every rule is conditioned on stored state
// only, never on a prior event having arrived.
func (s *Service) planMutation(ctx context.Context, event *Event, correlationID string) (IdentityKeys, Changes, []notify.Kind) {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.planCheckout(ctx, event.Checkout, correlationID)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return planSubscriptionChange(event.Subscription)
	case EventSubscriptionDeleted:
		return planSubscriptionDeleted(event.Subscription)
	case EventInvoicePaid, EventInvoicePaymentSucceeded:
		return s.planInvoicePaid(ctx, event.Invoice, correlationID)
	default:
		return IdentityKeys{}, Changes{}, nil
	}
}

func (s *Service) planCheckout(ctx context.Context, session *CheckoutSession, correlationID string) (IdentityKeys, Changes, []notify.Kind) {
	keys := IdentityKeys{
		CustomerID:     session.Customer.String(),
		SubscriptionID: session.Subscription.String(),
		UserID:         metadataUserID(session.Metadata),
		Email:          session.Email(),
	}

	changes := Changes{
		CustomerID:               session.Customer.String(),
		SubscriptionID:           session.Subscription.String(),
		AllowSubscriptionReplace: true,
	}
	if plan, ok := NormalizePlan(metadataPlanRef(session.Metadata)); ok {
		changes.Plan = plan
	}

	// The session itself carries no period end; fetch it from the live
	// subscription, best effort. A failed lookup still merges identifiers.
	if subID := session.Subscription.String(); subID != "" && s.provider != nil {
		sub, err := s.provider.RetrieveSubscription(ctx, subID)
		if err != nil {
			log.Warnf("[Billing] Subscription lookup for checkout %s failed: %v (correlation=%s)", session.ID, err, correlationID)
		} else {
			if end := sub.PeriodEnd(); end != nil {
				changes.SetExpiresAt = true
				changes.ExpiresAt = end
			}
			if changes.Plan == "" {
				if plan, ok := NormalizeBestPlan(sub.PlanRefs()); ok {
					changes.Plan = plan
				}
			}
		}
	}

	return keys, changes, []notify.Kind{notify.KindReceipt}
}

func planSubscriptionChange(sub *Subscription) (IdentityKeys, Changes, []notify.Kind) {
	keys := IdentityKeys{Email: metadataEmail(sub.Metadata)}

	cancel := sub.CancelAtPeriodEnd
	changes := Changes{
		SubscriptionID:    sub.ID,
		CancelAtPeriodEnd: &cancel,
	}
	if plan, ok := NormalizeBestPlan(sub.PlanRefs()); ok {
		changes.Plan = plan
	}
	if end := sub.PeriodEnd(); end != nil {
		changes.SetExpiresAt = true
		changes.ExpiresAt = end
	}

	var kinds []notify.Kind
	switch {
	case isEntitlingStatus(sub.Status):
		kinds = append(kinds, notify.KindRenewalSuccess)
	case isDelinquentStatus(sub.Status):
		kinds = append(kinds, notify.KindRenewalFailure)
	}
	return keys, changes, kinds
}

func planSubscriptionDeleted(sub *Subscription) (IdentityKeys, Changes, []notify.Kind) {
	keys := IdentityKeys{
		Email:  metadataEmail(sub.Metadata),
		UserID: metadataUserID(sub.Metadata),
	}

	cancel := false
	changes := Changes{
		Plan:              entitlements.PlanFree,
		SetExpiresAt:      true,
		ExpiresAt:         nil,
		CancelAtPeriodEnd: &cancel,
	}
	return keys, changes, []notify.Kind{notify.KindCancellation}
}

func (s *Service) planInvoicePaid(ctx context.Context, invoice *Invoice, correlationID string) (IdentityKeys, Changes, []notify.Kind) {
	keys := IdentityKeys{
		SubscriptionID: invoice.SubscriptionID(),
		Email:          strings.ToLower(strings.TrimSpace(invoice.CustomerEmail)),
	}

	changes := Changes{
		CustomerID:     invoice.Customer.String(),
		SubscriptionID: invoice.SubscriptionID(),
	}

	if subID := invoice.SubscriptionID(); subID != "" && s.provider != nil {
		sub, err := s.provider.RetrieveSubscription(ctx, subID)
		if err != nil {
			// Payment did succeed upstream; merge what the invoice carries
			// and ack rather than trigger retries that cannot do better.
			log.Warnf("[Billing] Subscription lookup for invoice %s failed: %v (correlation=%s)", invoice.ID, err, correlationID)
		} else {
			if email := metadataEmail(sub.Metadata); email != "" {
				keys.Email = email
			}
			if changes.CustomerID == "" {
				changes.CustomerID = sub.Customer.String()
			}
			if plan, ok := NormalizeBestPlan(sub.PlanRefs()); ok {
				changes.Plan = plan
			}
			if end := sub.PeriodEnd(); end != nil {
				changes.SetExpiresAt = true
				changes.ExpiresAt = end
			}
		}
	}

	return keys, changes, []notify.Kind{notify.KindReceipt, notify.KindRenewalSuccess}
}

// dispatch enqueues at most one notification per kind, fire and forget.
// Failures are logged and swallowed: the provider's retry behavior hangs off
// the HTTP status, and a transient queue failure must not reprocess an
// otherwise successful state change.
func (s *Service) dispatch(ctx context.Context, rec *models.BillingRecord, event *Event, kinds []notify.Kind, correlationID string) {
	if s.notifier == nil || len(kinds) == 0 {
		return
	}
	email := strings.ToLower(strings.TrimSpace(rec.Email))
	if email == "" {
		log.Warnf("[Billing] No email on record for user %d; skipping notifications (correlation=%s)", rec.UserID, correlationID)
		return
	}
	details := notify.Details{
		Plan:          rec.SubscriptionPlan,
		EventType:     string(event.Type),
		CorrelationID: correlationID,
	}

	for _, kind := range kinds {
		var err error
		switch kind {
		case notify.KindReceipt:
			err = s.notifier.SendReceipt(ctx, email, details)
		case notify.KindCancellation:
			err = s.notifier.SendCancellation(ctx, email, details)
		case notify.KindRenewalSuccess:
			err = s.notifier.SendRenewalSuccess(ctx, email, details)
		case notify.KindRenewalFailure:
			err = s.notifier.SendRenewalFailure(ctx, email, details)
		}
		if err != nil {
			log.Errorf("[Billing] Enqueue %s for user %d failed: %v (correlation=%s)", kind, rec.UserID, err, correlationID)
		}
	}
}
