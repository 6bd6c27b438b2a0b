package controller

import (
	"log"
	"time"

	"stayflow/config"
	"stayflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DispatchController struct {
	DB         *gorm.DB
	Logger     *log.Logger
	Dispatcher *utils.Dispatcher
}

func NewDispatchController(db *gorm.DB, transport utils.MailTransport, logger *log.Logger) *DispatchController {
	cfg := config.AppConfig
	manager := utils.NewEnrollmentManager(db, logger)
	personalizer := utils.NewPersonalizer(cfg.BaseURL)
	executor := utils.NewSendExecutor(
		db,
		transport,
		personalizer,
		manager,
		logger,
		cfg.SendMaxAttempts,
		time.Duration(cfg.SendTimeoutSeconds)*time.Second,
	)

	return &DispatchController{
		DB:         db,
		Logger:     logger,
		Dispatcher: utils.NewDispatcher(db, executor, logger, cfg.DispatchBatchLimit, cfg.DailyEmailCap),
	}
}

// RunDispatch executes one dispatcher invocation. The route is protected by
// the cron shared secret; the external scheduler (Vercel cron, GitHub
// Actions, systemd timer) decides the cadence, not this service.
func (dc *DispatchController) RunDispatch(c *fiber.Ctx) error {
	summary, err := dc.Dispatcher.Run(c.Context(), time.Now())
	if err != nil {
		dc.Logger.Printf("Dispatch invocation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Dispatch failed",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"processed": summary.Processed,
		"sent":      summary.Sent,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
}
