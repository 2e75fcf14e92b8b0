package controllers

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
)

var validate = validator.New()

var (
	paymentService *payments.Service
	streamHub      *realtime.Hub
)

// InitializePaymentControllers wires the payment controllers to their
// service and hub. Must be called before installing routes.
func InitializePaymentControllers(svc *payments.Service, hub *realtime.Hub) {
	paymentService = svc
	streamHub = hub
}

// requestUserID resolves the authenticated caller. Token verification is
// delegated to the identity-provider integration, which places the resolved
// user id in the X-User-ID header before requests reach these handlers.
func requestUserID(c *fiber.Ctx) uint {
	raw := strings.TrimSpace(c.Get("X-User-ID"))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
