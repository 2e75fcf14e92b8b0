package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pledgekit/PledgeKit/app/controllers"
	"github.com/pledgekit/PledgeKit/internal/pkg/constants"
	"github.com/pledgekit/PledgeKit/internal/pkg/database"
	"github.com/pledgekit/PledgeKit/internal/pkg/env"
	"github.com/pledgekit/PledgeKit/internal/pkg/idempotency"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook route is registered outside the rate-limited group: the
	// provider's redelivery bursts must never be throttled into extra
	// retries. Fiber hands the raw body to the handler untouched, which the
	// signature check depends on.
	app.Post(constants.PaymentWebhookRoute, controllers.HandlePaymentWebhook)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
	}))
	v1 := api.Group("/v1")

	gate := idempotency.New(idempotency.NewStore(database.GetDB()), idempotencyTTL())
	v1.Post(constants.ContributionCheckoutRoute, gate, controllers.HandleContributionCheckout)
	v1.Post(constants.SubscriptionCheckoutRoute, gate, controllers.HandleSubscriptionCheckout)

	v1.Get(constants.DashboardStreamRoute, controllers.HandleDashboardStream)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func idempotencyTTL() time.Duration {
	hours, err := strconv.Atoi(env.GetEnv("IDEMPOTENCY_TTL_HOURS", "24"))
	if err != nil || hours <= 0 {
		return idempotency.DefaultTTL
	}
	return time.Duration(hours) * time.Hour
}
