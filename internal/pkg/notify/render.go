package notify

import "fmt"

// Render produces the subject and HTML body for a notification email.
func Render(n *Notification) (subject, body string) {
	plan := n.Details.Plan
	if plan == "" {
		plan = "your current plan"
	}

	switch n.Kind {
	case KindReceipt:
		subject = "Your Sangam payment receipt"
		body = fmt.Sprintf("<p>Thank you! We received your payment for <strong>%s</strong>.</p>", plan)
	case KindCancellation:
		subject = "Your Sangam membership has been cancelled"
		body = "<p>Your premium membership has ended. You can rejoin anytime from your account settings.</p>"
	case KindRenewalSuccess:
		subject = "Your Sangam membership has renewed"
		body = fmt.Sprintf("<p>Your <strong>%s</strong> membership is active. Happy matchmaking!</p>", plan)
	case KindRenewalFailure:
		subject = "Problem renewing your Sangam membership"
		body = "<p>We could not collect your latest payment. Please update your payment method to keep your premium benefits.</p>"
	default:
		subject = "Sangam account update"
		body = "<p>There is an update on your Sangam account.</p>"
	}
	return subject, body
}
