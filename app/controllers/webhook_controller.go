package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/internal/pkg/env"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
)

// HandlePaymentWebhook ingests asynchronous payment-provider events. The
// signature is verified over the raw wire bytes before anything is parsed or
// persisted. Once an event is in the ledger the provider gets a success
// acknowledgement even if state application fails; the repair worker
// re-applies it instead of burning the provider's retry budget.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	if strings.TrimSpace(secret) == "" {
		// Loud on purpose: a missing secret must never degrade into
		// accepting unverified payloads.
		log.Error("payment webhook: PAYMENT_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_secret_unconfigured"})
	}
	if !payments.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	envelope, err := payments.ParseEventEnvelope(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := paymentService.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		ProviderEventID: envelope.ID,
		EventType:       envelope.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		// Not ledgered yet; a 500 makes the provider redeliver.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if err := paymentService.ProcessEvent(ctx, stored); err != nil {
		log.Errorf("webhook %s: state application deferred to repair worker: %v", stored.ProviderEventID, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
