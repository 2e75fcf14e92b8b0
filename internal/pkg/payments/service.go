package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/pledgekit/PledgeKit/app/models"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"gorm.io/gorm"
)

// StatsRecorder accumulates per-project funding counters. Implementations
// are best-effort; reconciliation never fails because a counter write did.
type StatsRecorder interface {
	RecordContribution(projectID uint, amountCents int64)
	RecordRefund(projectID uint, amountCents int64)
}

// Service drives the payment-event reconciliation core: checkout initiation,
// the webhook event ledger, and the contribution/subscription state machine.
type Service struct {
	repo        Repository
	gateway     Gateway
	broadcaster EventSink
	stats       StatsRecorder
}

// EventSink receives dashboard notifications derived from state transitions.
// *realtime.Hub satisfies it; tests substitute a recording fake.
type EventSink interface {
	Broadcast(evt realtime.Event)
}

// NewService creates a payments service. broadcaster and stats may be nil.
func NewService(repo Repository, gateway Gateway, broadcaster EventSink, stats StatsRecorder) *Service {
	return &Service{repo: repo, gateway: gateway, broadcaster: broadcaster, stats: stats}
}

// NewServiceFromDB creates a payments service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, broadcaster EventSink, stats StatsRecorder) *Service {
	return NewService(NewRepository(db), gateway, broadcaster, stats)
}

// InitiateContribution creates a PENDING contribution and the provider
// checkout session that will eventually resolve it via webhooks.
func (s *Service) InitiateContribution(ctx context.Context, in ContributionCheckoutInput) (*models.Contribution, *CheckoutSession, error) {
	if in.ProjectID == 0 || in.ContributorID == 0 || in.AmountCents <= 0 {
		return nil, nil, errors.New("project_id, contributor_id and a positive amount are required")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "EUR"
	}

	if _, err := s.repo.GetProjectByID(in.ProjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, err
	}

	id := uuid.New().String()
	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionInput{
		ContributionID: id,
		ProjectID:      in.ProjectID,
		AmountCents:    in.AmountCents,
		Currency:       currency,
	})
	if err != nil {
		return nil, nil, err
	}

	contribution := &models.Contribution{
		ID:                 id,
		ProjectID:          in.ProjectID,
		ContributorID:      in.ContributorID,
		AmountCents:        in.AmountCents,
		Currency:           currency,
		Status:             models.ContributionStatusPending,
		ProviderCheckoutID: session.ID,
	}
	if err := s.repo.CreateContribution(contribution); err != nil {
		return nil, nil, err
	}
	return contribution, session, nil
}

// InitiateSubscription starts or renews the single recurring pledge a
// subscriber holds on a project. Re-subscribing reuses the existing row.
func (s *Service) InitiateSubscription(ctx context.Context, in SubscriptionCheckoutInput) (*models.Subscription, *CheckoutSession, error) {
	if in.ProjectID == 0 || in.SubscriberID == 0 || in.PriceCents <= 0 {
		return nil, nil, errors.New("project_id, subscriber_id and a positive price are required")
	}
	interval := strings.ToLower(strings.TrimSpace(in.Interval))
	if interval != models.SubscriptionIntervalYear {
		interval = models.SubscriptionIntervalMonth
	}

	if _, err := s.repo.GetProjectByID(in.ProjectID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, err
	}

	session, err := s.gateway.CreateSubscriptionSession(ctx, SubscriptionSessionInput{
		ProjectID:    in.ProjectID,
		SubscriberID: in.SubscriberID,
		PriceCents:   in.PriceCents,
		Currency:     "EUR",
		Interval:     interval,
	})
	if err != nil {
		return nil, nil, err
	}

	sub := &models.Subscription{
		ProjectID:              in.ProjectID,
		SubscriberID:           in.SubscriberID,
		PriceCents:             in.PriceCents,
		Interval:               interval,
		Status:                 models.SubscriptionStatusIncomplete,
		ProviderSubscriptionID: session.SubscriptionID,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, nil, err
	}
	return sub, session, nil
}

// RecordWebhookEvent appends a delivery to the event ledger. The unique
// insert doubles as the at-most-once guard against provider redelivery and
// concurrent duplicate deliveries.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// ProcessEvent applies a ledgered event to business state. Permanent
// failures (missing targets, malformed payloads) are recorded and treated as
// done, because the provider cannot fix them by retrying. Transient failures
// leave the event unprocessed for the repair worker and are returned.
func (s *Service) ProcessEvent(ctx context.Context, event *models.PaymentWebhookEvent) error {
	err := s.applyEvent(ctx, event.EventType, []byte(event.PayloadJSON))
	switch {
	case err == nil:
		return s.repo.MarkWebhookProcessed(event.ID, "")
	case isPermanentApplyError(err):
		log.Warnf("webhook %s (%s) not applied: %v", event.ProviderEventID, event.EventType, err)
		return s.repo.MarkWebhookProcessed(event.ID, err.Error())
	default:
		if recErr := s.repo.RecordWebhookError(event.ID, err.Error()); recErr != nil {
			log.Errorf("webhook %s: record processing error: %v", event.ProviderEventID, recErr)
		}
		return err
	}
}

// ReprocessPending re-applies ledgered events whose state application never
// finished. Every transition carries a status precondition, so reapplying an
// event that did land is a no-op.
func (s *Service) ReprocessPending(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.ListUnprocessedWebhookEvents(limit)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range events {
		if !events[i].SignatureValid {
			// Never apply an unverified payload, no matter how it got ledgered.
			_ = s.repo.MarkWebhookProcessed(events[i].ID, "invalid webhook signature")
			continue
		}
		if err := s.ProcessEvent(ctx, &events[i]); err == nil {
			repaired++
		}
	}
	return repaired, nil
}

func isPermanentApplyError(err error) bool {
	return errors.Is(err, ErrContributionNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrMalformedEvent)
}
