package constants

// API route constants
const (
	PaymentWebhookRoute       = "/api/v1/payments/webhook"
	ContributionCheckoutRoute = "/contributions/checkout"
	SubscriptionCheckoutRoute = "/subscriptions/checkout"
	DashboardStreamRoute      = "/dashboard/stream"
)
