package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pledgekit/PledgeKit/internal/pkg/env"
)

// CheckoutSession is the provider-hosted payment page created for a checkout.
type CheckoutSession struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	SubscriptionID string `json:"subscriptionId"`
}

// CheckoutSessionInput describes a one-off contribution checkout.
type CheckoutSessionInput struct {
	ContributionID string
	ProjectID      uint
	AmountCents    int64
	Currency       string
}

// SubscriptionSessionInput describes a recurring pledge checkout.
type SubscriptionSessionInput struct {
	ProjectID    uint
	SubscriberID uint
	PriceCents   int64
	Currency     string
	Interval     string
}

// Gateway creates provider checkout sessions. The provider's onboarding and
// payout flows are not part of this interface; the reconciliation core only
// needs session creation.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	CreateSubscriptionSession(ctx context.Context, in SubscriptionSessionInput) (*CheckoutSession, error)
}

// HTTPGateway talks to the payment provider's REST API.
type HTTPGateway struct {
	APIBaseURL string
	APIKey     string

	HTTPClient *http.Client
}

// NewGatewayFromEnv builds the gateway client from process configuration.
func NewGatewayFromEnv() *HTTPGateway {
	return &HTTPGateway{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYMENT_GATEWAY_API_BASE_URL", "")), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("PAYMENT_GATEWAY_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"amountCents": in.AmountCents,
		"currency":    in.Currency,
		"metadata": map[string]string{
			MetadataContributionKey: in.ContributionID,
			"projectId":             strconv.FormatUint(uint64(in.ProjectID), 10),
		},
	}
	return g.postSession(ctx, "/v1/checkout/sessions", payload)
}

func (g *HTTPGateway) CreateSubscriptionSession(ctx context.Context, in SubscriptionSessionInput) (*CheckoutSession, error) {
	payload := map[string]interface{}{
		"priceCents": in.PriceCents,
		"currency":   in.Currency,
		"interval":   in.Interval,
		"metadata": map[string]string{
			"projectId":    strconv.FormatUint(uint64(in.ProjectID), 10),
			"subscriberId": strconv.FormatUint(uint64(in.SubscriberID), 10),
		},
	}
	return g.postSession(ctx, "/v1/subscription/sessions", payload)
}

func (g *HTTPGateway) postSession(ctx context.Context, path string, payload interface{}) (*CheckoutSession, error) {
	if g.APIBaseURL == "" {
		return nil, errors.New("PAYMENT_GATEWAY_API_BASE_URL is not configured")
	}
	if g.APIKey == "" {
		return nil, errors.New("PAYMENT_GATEWAY_API_KEY is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var session CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("gateway response is missing a session id")
	}
	return &session, nil
}
