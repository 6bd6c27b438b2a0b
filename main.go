package main

import (
	"context"
	"log"
	"os"
	"time"

	"stayflow/config"
	"stayflow/middleware"
	"stayflow/routes"
	"stayflow/utils"
	"stayflow/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting for terminal send failures
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// SMTP transport for the send executor
	transport := utils.NewSMTPTransport(config.AppConfig)

	// Setup routes
	dispatchController := routes.SetupRoutes(app, config.DB, transport)

	// Optional in-process dispatch cadence for deployments without an
	// external cron caller
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if config.AppConfig.DispatchWorkerEnabled {
		interval := time.Duration(config.AppConfig.DispatchWorkerInterval) * time.Second
		dispatchWorker := worker.NewDispatchWorker(
			dispatchController.Dispatcher,
			interval,
			log.New(os.Stdout, "WORKER: ", log.LstdFlags),
		)
		go dispatchWorker.Start(ctx)
	}

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
