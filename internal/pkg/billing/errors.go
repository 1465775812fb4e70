package billing

import "errors"

// Error taxonomy for the webhook reconciliation flow. Only authentication and
// structural failures surface as non-200 responses; everything past a
// successful verification is acked so the provider does not retry work that
// retrying cannot fix.
var (
	// ErrMissingSignature - the signature header is absent from the request.
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrEmptyBody - the request carried a zero-length payload.
	ErrEmptyBody = errors.New("empty webhook body")

	// ErrSecretNotConfigured - operator error, not an attacker: the shared
	// webhook secret is missing from configuration.
	ErrSecretNotConfigured = errors.New("webhook secret is not configured")

	// ErrInvalidSignature - the computed signature does not match. The
	// underlying verification detail is never echoed to the caller.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidEvent - the event is structurally invalid (missing id, type
	// or payload, or an undecodable payload for its type).
	ErrInvalidEvent = errors.New("malformed webhook event")
)
