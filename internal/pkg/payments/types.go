package payments

import (
	"encoding/json"
	"errors"
)

// Webhook event types emitted by the payment provider. Unknown types are
// acknowledged without processing so the provider's evolving catalog never
// turns into rejected deliveries.
const (
	EventCheckoutCompleted      = "checkout.completed"
	EventPaymentFailed          = "payment.failed"
	EventChargeRefunded         = "charge.refunded"
	EventSubscriptionTypePrefix = "subscription."
)

// MetadataContributionKey is the checkout-session metadata key carrying our
// contribution id back in checkout.completed events.
const MetadataContributionKey = "contributionId"

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrMalformedEvent       = errors.New("malformed event payload")
)

// EventEnvelope is the outer structure of every provider webhook payload.
type EventEnvelope struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the provider object references an event refers to. Which
// fields are set depends on the event type.
type EventData struct {
	CheckoutID     string            `json:"checkoutId"`
	PaymentID      string            `json:"paymentId"`
	SubscriptionID string            `json:"subscriptionId"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// ParseEventEnvelope decodes a raw webhook payload. The type must be present;
// a missing id is tolerated because RecordWebhookEvent falls back to a
// payload digest.
func ParseEventEnvelope(payload []byte) (*EventEnvelope, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, ErrMalformedEvent
	}
	if envelope.Type == "" {
		return nil, ErrMalformedEvent
	}
	return &envelope, nil
}

// WebhookEventInput is the ingress-side record of one webhook delivery.
type WebhookEventInput struct {
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// ContributionCheckoutInput starts a one-off contribution checkout.
type ContributionCheckoutInput struct {
	ProjectID     uint
	ContributorID uint
	AmountCents   int64
	Currency      string
}

// SubscriptionCheckoutInput starts or renews a recurring pledge checkout.
type SubscriptionCheckoutInput struct {
	ProjectID    uint
	SubscriberID uint
	PriceCents   int64
	Interval     string
}
