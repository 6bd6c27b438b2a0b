package controller

import (
	"log"
	"time"

	"stayflow/models"
	"stayflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EnrollmentController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Manager *utils.EnrollmentManager
}

func NewEnrollmentController(db *gorm.DB, logger *log.Logger) *EnrollmentController {
	return &EnrollmentController{
		DB:      db,
		Logger:  logger,
		Manager: utils.NewEnrollmentManager(db, logger),
	}
}

// GetEnrollment returns one enrollment with its scheduled sends.
func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("id"))

	var enrollment models.Enrollment
	if err := ec.DB.Preload("ScheduledSends", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_position ASC")
	}).First(&enrollment, enrollmentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	return c.JSON(enrollment)
}

type UpdateEnrollmentRequest struct {
	Action string `json:"action" validate:"required,oneof=pause resume complete"`
}

// UpdateEnrollment applies an operator state transition: pause, resume or
// force-complete. These are exogenous events, never generated by the engine.
func (ec *EnrollmentController) UpdateEnrollment(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("id"))

	var enrollment models.Enrollment
	if err := ec.DB.First(&enrollment, enrollmentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	var req UpdateEnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	now := time.Now()
	var err error
	switch req.Action {
	case "pause":
		err = ec.Manager.Pause(enrollment.ID, now)
	case "resume":
		err = ec.Manager.Resume(enrollment.ID)
	case "complete":
		err = ec.Manager.Complete(enrollment.ID, now)
	}
	if err != nil {
		ec.Logger.Printf("Failed to %s enrollment %d: %v", req.Action, enrollment.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update enrollment",
		})
	}

	ec.Logger.Printf("Enrollment %d: %s", enrollment.ID, req.Action)
	return c.JSON(fiber.Map{
		"message": "Enrollment updated successfully",
	})
}
