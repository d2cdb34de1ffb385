package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/enrollbilling/app/controllers"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/bootstrap"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/env"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	service, err := bootstrap.BillingService()
	if err != nil {
		log.Fatalf("billing setup failed: %v", err)
	}
	controllers.InitializeBillingControllers(service)

	// webhook payloads are small; keep the limit tight
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, env.GetEnv("ADMIN_API_KEY", ""))

	return app
}
