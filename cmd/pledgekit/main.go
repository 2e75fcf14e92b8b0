package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pledgekit/PledgeKit/app/controllers"
	"github.com/pledgekit/PledgeKit/internal/pkg/cache"
	"github.com/pledgekit/PledgeKit/internal/pkg/database"
	"github.com/pledgekit/PledgeKit/internal/pkg/env"
	"github.com/pledgekit/PledgeKit/internal/pkg/idempotency"
	"github.com/pledgekit/PledgeKit/internal/pkg/jobqueue"
	counter "github.com/pledgekit/PledgeKit/internal/pkg/metrics/counter"
	"github.com/pledgekit/PledgeKit/internal/pkg/payments"
	"github.com/pledgekit/PledgeKit/internal/pkg/realtime"
	"github.com/pledgekit/PledgeKit/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "PledgeKit",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	hub := realtime.GetHub()
	if env.GetEnv("REALTIME_REDIS_FANOUT", "false") == "true" {
		hub.EnableRedisFanout(context.Background(), cache.GetClient(),
			env.GetEnv("REALTIME_FANOUT_CHANNEL", realtime.DefaultFanoutChannel))
	}

	svc := payments.NewServiceFromDB(database.GetDB(), payments.NewGatewayFromEnv(), hub, counter.Recorder{})
	controllers.InitializePaymentControllers(svc, hub)

	jobqueue.NewManager(svc, idempotency.NewStore(database.GetDB())).Start()

	// ROUTER
	router.InstallRouter(app)

	return app
}
