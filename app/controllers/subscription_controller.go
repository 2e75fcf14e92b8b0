package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
)

// SubscriptionCheckoutRequest is the body of POST /api/v1/subscriptions/checkout.
type SubscriptionCheckoutRequest struct {
	ProjectID  uint   `json:"projectId" validate:"required"`
	PriceCents int64  `json:"priceCents" validate:"required,gt=0"`
	Interval   string `json:"interval" validate:"required,oneof=month year"`
}

// HandleSubscriptionCheckout starts or renews the caller's recurring pledge
// on a project. A subscriber holds at most one subscription per project;
// re-subscribing reuses the existing row.
func HandleSubscriptionCheckout(c *fiber.Ctx) error {
	userID := requestUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req SubscriptionCheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "details": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub, session, err := paymentService.InitiateSubscription(ctx, payments.SubscriptionCheckoutInput{
		ProjectID:    req.ProjectID,
		SubscriberID: userID,
		PriceCents:   req.PriceCents,
		Interval:     req.Interval,
	})
	if err != nil {
		if errors.Is(err, payments.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project_not_found"})
		}
		log.Errorf("subscription checkout for project %d failed: %v", req.ProjectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscriptionId": sub.ID,
		"status":         sub.Status,
		"checkoutUrl":    session.URL,
	})
}
