package constants

// Static route constants
const (
	HealthRoute        = "/health"
	StripeWebhookRoute = "/webhooks/stripe"
)
