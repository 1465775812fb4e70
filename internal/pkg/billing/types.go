package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies a Stripe webhook event type.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout.session.completed"
	EventSubscriptionCreated     EventType = "customer.subscription.created"
	EventSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventSubscriptionDeleted     EventType = "customer.subscription.deleted"
	EventInvoicePaid             EventType = "invoice.paid"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
)

// allowedEventTypes is the fixed set of event types this engine acts upon.
// Everything else is acknowledged immediately so Stripe's retry mechanism
// never hammers the endpoint for events we do not care about.
var allowedEventTypes = map[EventType]struct{}{
	EventCheckoutCompleted:       {},
	EventSubscriptionCreated:     {},
	EventSubscriptionUpdated:     {},
	EventSubscriptionDeleted:     {},
	EventInvoicePaid:             {},
	EventInvoicePaymentSucceeded: {},
}

// IsAllowedEventType reports whether the engine processes the given type.
func IsAllowedEventType(t EventType) bool {
	_, ok := allowedEventTypes[t]
	return ok
}

// idRef decodes a Stripe resource reference that arrives as a bare id in
// webhook payloads but as an expanded object from API retrievals.
type idRef string

func (r *idRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = idRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = idRef(obj.ID)
	return nil
}

func (r idRef) String() string {
	return strings.TrimSpace(string(r))
}

// RawEvent is a signature-verified but not yet decoded webhook delivery.
type RawEvent struct {
	ID      string
	Type    EventType
	Payload []byte
}

// Event is the decoded form of a webhook delivery. Exactly one payload field
// is populated, matching Type.
type Event struct {
	ID           string
	Type         EventType
	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice
}

// CheckoutSession is a minimal representation of a checkout.session.completed payload.
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        idRef  `json:"customer"`
	Subscription    idRef  `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// Email returns the best available customer email on the session.
func (s *CheckoutSession) Email() string {
	if email := strings.TrimSpace(s.CustomerEmail); email != "" {
		return strings.ToLower(email)
	}
	return strings.ToLower(strings.TrimSpace(s.CustomerDetails.Email))
}

// Subscription is a minimal representation of a customer.subscription.* payload.
type Subscription struct {
	ID                string `json:"id"`
	Customer          idRef  `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID       string            `json:"id"`
				Metadata map[string]string `json:"metadata"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// FirstPriceID returns the price id from the first subscription item.
func (s *Subscription) FirstPriceID() string {
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			return priceID
		}
	}
	return ""
}

// PlanRefs returns every plan reference the subscription carries: price
// metadata plan names first, then price ids.
func (s *Subscription) PlanRefs() []string {
	var refs []string
	for _, item := range s.Items.Data {
		if name := strings.TrimSpace(item.Price.Metadata["plan"]); name != "" {
			refs = append(refs, name)
		}
	}
	for _, item := range s.Items.Data {
		if priceID := strings.TrimSpace(item.Price.ID); priceID != "" {
			refs = append(refs, priceID)
		}
	}
	return refs
}

// PeriodEnd returns the subscription's current period end, if any. Newer
// Stripe API versions carry it per item instead of on the subscription.
func (s *Subscription) PeriodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	if end == 0 {
		for _, item := range s.Items.Data {
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

// Invoice is a minimal representation of an invoice.paid payload.
type Invoice struct {
	ID            string `json:"id"`
	Customer      idRef  `json:"customer"`
	Subscription  idRef  `json:"subscription"`
	CustomerEmail string `json:"customer_email"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription idRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Metadata map[string]string `json:"metadata"`
}

// SubscriptionID returns the invoice's subscription reference; newer API
// versions nest it under parent.subscription_details.
func (i *Invoice) SubscriptionID() string {
	if id := i.Subscription.String(); id != "" {
		return id
	}
	return i.Parent.SubscriptionDetails.Subscription.String()
}

// DecodeEvent decodes a verified delivery into its typed payload. It must be
// called only for allowlisted event types; structurally invalid events fail
// with ErrInvalidEvent.
func DecodeEvent(raw *RawEvent) (*Event, error) {
	if raw == nil || strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(string(raw.Type)) == "" || len(raw.Payload) == 0 {
		return nil, ErrInvalidEvent
	}

	ev := &Event{ID: raw.ID, Type: raw.Type}
	switch raw.Type {
	case EventCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(raw.Payload, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout.session: %v", ErrInvalidEvent, err)
		}
		ev.Checkout = &session
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(raw.Payload, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrInvalidEvent, err)
		}
		ev.Subscription = &sub
	case EventInvoicePaid, EventInvoicePaymentSucceeded:
		var inv Invoice
		if err := json.Unmarshal(raw.Payload, &inv); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrInvalidEvent, err)
		}
		ev.Invoice = &inv
	default:
		return nil, fmt.Errorf("%w: unsupported event type %s", ErrInvalidEvent, raw.Type)
	}
	return ev, nil
}
