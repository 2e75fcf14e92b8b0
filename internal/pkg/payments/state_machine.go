package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/app/models"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"gorm.io/gorm"
)

// applyEvent dispatches a verified webhook payload by event type. Webhook
// delivery order is not guaranteed, so every transition checks the current
// status; an event whose precondition does not hold is a safe no-op rather
// than a corruption. Unrecognized types are acknowledged untouched.
func (s *Service) applyEvent(ctx context.Context, eventType string, payload []byte) error {
	switch {
	case eventType == EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, payload)
	case eventType == EventPaymentFailed:
		return s.applyPaymentFailed(ctx, payload)
	case eventType == EventChargeRefunded:
		return s.applyChargeRefunded(ctx, payload)
	case strings.HasPrefix(eventType, EventSubscriptionTypePrefix):
		return s.applySubscriptionEvent(ctx, payload)
	default:
		log.Debugf("ignoring unrecognized webhook event type %q", eventType)
		return nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, payload []byte) error {
	_ = ctx
	envelope, err := ParseEventEnvelope(payload)
	if err != nil {
		return err
	}
	contributionID := strings.TrimSpace(envelope.Data.Metadata[MetadataContributionKey])
	if contributionID == "" {
		return fmt.Errorf("%w: missing metadata.%s", ErrMalformedEvent, MetadataContributionKey)
	}

	contribution, err := s.repo.GetContributionByID(contributionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %s", ErrContributionNotFound, contributionID)
		}
		return err
	}

	checkoutID := envelope.Data.CheckoutID
	if checkoutID == "" {
		checkoutID = contribution.ProviderCheckoutID
	}
	applied, err := s.repo.CompleteContribution(contribution.ID, checkoutID, envelope.Data.PaymentID)
	if err != nil {
		return err
	}
	if !applied {
		// Redelivery or out-of-order event against a terminal contribution.
		return nil
	}

	if s.stats != nil {
		s.stats.RecordContribution(contribution.ProjectID, contribution.AmountCents)
	}
	s.notifyContribution(realtime.EventContributionSucceeded, contribution, models.ContributionStatusSucceeded)
	return nil
}

func (s *Service) applyPaymentFailed(ctx context.Context, payload []byte) error {
	_ = ctx
	envelope, err := ParseEventEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Data.PaymentID == "" {
		return fmt.Errorf("%w: missing paymentId", ErrMalformedEvent)
	}

	contribution, err := s.repo.GetContributionByProviderPaymentID(envelope.Data.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment %s", ErrContributionNotFound, envelope.Data.PaymentID)
		}
		return err
	}

	applied, err := s.repo.TransitionContribution(contribution.ID, models.ContributionStatusPending, models.ContributionStatusFailed)
	if err != nil {
		return err
	}
	if applied {
		s.notifyContribution(realtime.EventContributionFailed, contribution, models.ContributionStatusFailed)
	}
	return nil
}

func (s *Service) applyChargeRefunded(ctx context.Context, payload []byte) error {
	_ = ctx
	envelope, err := ParseEventEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Data.PaymentID == "" {
		return fmt.Errorf("%w: missing paymentId", ErrMalformedEvent)
	}

	contribution, err := s.repo.GetContributionByProviderPaymentID(envelope.Data.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: payment %s", ErrContributionNotFound, envelope.Data.PaymentID)
		}
		return err
	}

	// Refunds only apply to succeeded contributions. A refund racing ahead of
	// its checkout.completed finds no succeeded row and drops out here.
	applied, err := s.repo.TransitionContribution(contribution.ID, models.ContributionStatusSucceeded, models.ContributionStatusRefunded)
	if err != nil {
		return err
	}
	if applied {
		if s.stats != nil {
			s.stats.RecordRefund(contribution.ProjectID, contribution.AmountCents)
		}
		s.notifyContribution(realtime.EventContributionRefunded, contribution, models.ContributionStatusRefunded)
	}
	return nil
}

func (s *Service) applySubscriptionEvent(ctx context.Context, payload []byte) error {
	_ = ctx
	envelope, err := ParseEventEnvelope(payload)
	if err != nil {
		return err
	}
	if envelope.Data.SubscriptionID == "" {
		return fmt.Errorf("%w: missing subscriptionId", ErrMalformedEvent)
	}

	sub, err := s.repo.GetSubscriptionByProviderID(envelope.Data.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: provider id %s", ErrSubscriptionNotFound, envelope.Data.SubscriptionID)
		}
		return err
	}

	status := normalizeSubscriptionStatus(envelope.Data.Status)
	if status == "" {
		log.Warnf("subscription %d: unmapped provider status %q, leaving %q", sub.ID, envelope.Data.Status, sub.Status)
		return nil
	}
	if status == sub.Status {
		return nil
	}
	return s.repo.UpdateSubscriptionStatus(sub.ID, status)
}

// normalizeSubscriptionStatus maps the provider's status vocabulary onto the
// local mirror. An empty result means the status is unknown and the mirror
// stays untouched.
func normalizeSubscriptionStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "incomplete":
		return models.SubscriptionStatusIncomplete
	default:
		return ""
	}
}

func (s *Service) notifyContribution(name string, contribution *models.Contribution, status string) {
	ownerID := uint(0)
	if project, err := s.repo.GetProjectByID(contribution.ProjectID); err == nil {
		ownerID = project.OwnerID
	} else {
		log.Warnf("project %d lookup for broadcast failed: %v", contribution.ProjectID, err)
	}

	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(realtime.Event{
		Name:           name,
		ContributionID: contribution.ID,
		ProjectID:      contribution.ProjectID,
		OwnerID:        ownerID,
		ContributorID:  contribution.ContributorID,
		AmountCents:    contribution.AmountCents,
		Status:         status,
	})
}
