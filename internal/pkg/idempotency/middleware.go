package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/app/models"
)

// HeaderKey is the client-supplied key scoping retry-safety of one logical
// mutating request.
const HeaderKey = "Idempotency-Key"

// HeaderReplay marks a response that was served from the store instead of
// re-executing the handler.
const HeaderReplay = "Idempotent-Replay"

// New returns the gate middleware for mutating endpoints. Requests without a
// key pass through untouched. ttl <= 0 falls back to DefaultTTL.
//
// A matching retry that races the still-running original proceeds to the
// handler: the gate trades a small double-execution window for never blocking
// the caller, so callers must tolerate the in-flight case.
func New(store Store, ttl time.Duration) fiber.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderKey)
		if key == "" || !isMutating(c.Method()) {
			return c.Next()
		}

		sum := sha256.Sum256(c.Body())
		requestHash := hex.EncodeToString(sum[:])
		endpoint := c.Method() + " " + c.Path()

		created, stored, err := store.InsertPlaceholder(&models.IdempotencyRecord{
			Key:         key,
			Endpoint:    endpoint,
			RequestHash: requestHash,
			ExpiresAt:   time.Now().Add(ttl),
		})
		if err != nil {
			log.Errorf("idempotency: placeholder insert for key %q failed: %v", key, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "idempotency_store_failed"})
		}

		if !created {
			if stored.Endpoint != endpoint || stored.RequestHash != requestHash {
				// The key is bound to a different request; replaying would
				// hand the caller someone else's response.
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "IdempotencyConflict"})
			}
			if stored.ResponseStatus != nil && time.Now().Before(stored.ExpiresAt) {
				c.Set(HeaderReplay, "true")
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(*stored.ResponseStatus).SendString(stored.ResponseBody)
			}
			// Original attempt still in flight, or its recorded response has
			// expired: fall through to the handler and re-record.
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		expiresAt := time.Now().Add(ttl)
		if status >= fiber.StatusInternalServerError {
			// Failures are recorded like any other response so a racing
			// retry sees the same answer, but only briefly.
			expiresAt = time.Now().Add(FailureTTL)
		}
		body := append([]byte(nil), c.Response().Body()...)
		if err := store.SaveResponse(key, status, body, expiresAt); err != nil {
			log.Errorf("idempotency: response save for key %q failed: %v", key, err)
		}
		return nil
	}
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		return true
	default:
		return false
	}
}
