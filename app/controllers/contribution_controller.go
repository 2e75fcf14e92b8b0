package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
)

// ContributionCheckoutRequest is the body of POST /api/v1/contributions/checkout.
type ContributionCheckoutRequest struct {
	ProjectID   uint   `json:"projectId" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// HandleContributionCheckout creates a PENDING contribution and returns the
// provider checkout URL. The route sits behind the idempotency gate, so a
// retried request with the same Idempotency-Key replays this response
// instead of creating a second contribution.
func HandleContributionCheckout(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req ContributionCheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "details": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	contribution, session, err := paymentService.InitiateContribution(ctx, payments.ContributionCheckoutInput{
		ProjectID:     req.ProjectID,
		ContributorID: userID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
	})
	if err != nil {
		if errors.Is(err, payments.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project_not_found"})
		}
		log.Errorf("contribution checkout for project %d failed: %v", req.ProjectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"contributionId": contribution.ID,
		"status":         contribution.Status,
		"checkoutUrl":    session.URL,
	})
}
