package controller

import (
	"log"

	"stayflow/models"
	"stayflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: logger,
	}
}

type CreateSequenceRequest struct {
	Name          string              `json:"name" validate:"required,max=120"`
	Description   string              `json:"description" validate:"max=500"`
	TriggerSource string              `json:"trigger_source" validate:"required,max=64"`
	Steps         []CreateStepRequest `json:"steps" validate:"required,min=1,dive"`
}

type CreateStepRequest struct {
	Position     int    `json:"position" validate:"required,min=1"`
	DayOffset    int    `json:"day_offset" validate:"min=0"`
	TemplateName string `json:"template_name" validate:"required,max=120"`
	Subject      string `json:"subject" validate:"required,max=200"`
}

// CreateSequence stores a new definition after full authoring validation.
// Definitions are created inactive; activation is a separate, explicit step.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var req CreateSequenceRequest
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

	definition := models.SequenceDefinition{
		Name:          req.Name,
		Description:   req.Description,
		TriggerSource: req.TriggerSource,
		IsActive:      false,
	}
	for _, step := range req.Steps {
		if !utils.HasTemplate(step.TemplateName) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown template: " + step.TemplateName,
			})
		}
		definition.Steps = append(definition.Steps, models.SequenceStep{
			Position:     step.Position,
			DayOffset:    step.DayOffset,
			TemplateName: step.TemplateName,
			Subject:      step.Subject,
		})
	}

	// Fail closed on authoring bugs: non-increasing offsets or duplicate
	// positions never reach the database.
	if err := utils.ValidateDefinition(&definition); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := sc.DB.Create(&definition).Error; err != nil {
		sc.Logger.Printf("Failed to create sequence %q: %v", req.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	sc.Logger.Printf("Created sequence %q (%d steps) for trigger %q", definition.Name, len(definition.Steps), definition.TriggerSource)
	return c.Status(fiber.StatusCreated).JSON(definition)
}

// ActivateSequence makes a definition the live campaign for its trigger
// source, deactivating any previous active version so at most one active
// definition per trigger source exists.
func (sc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	var definition models.SequenceDefinition
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&definition, sequenceID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	if err := utils.ValidateDefinition(&definition); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SequenceDefinition{}).
			Where("trigger_source = ? AND is_active = ? AND id <> ?", definition.TriggerSource, true, definition.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&definition).Update("is_active", true).Error
	})
	if err != nil {
		sc.Logger.Printf("Failed to activate sequence %d: %v", definition.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate sequence",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sequence activated successfully",
	})
}

// DeactivateSequence stops a campaign from matching new triggers. Existing
// enrollments keep their pending sends, which stay parked until the campaign
// is active again.
func (sc *SequenceController) DeactivateSequence(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	result := sc.DB.Model(&models.SequenceDefinition{}).
		Where("id = ?", sequenceID).
		Update("is_active", false)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to deactivate sequence",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sequence deactivated successfully",
	})
}

// ListSequences returns all definitions with their steps.
func (sc *SequenceController) ListSequences(c *fiber.Ctx) error {
	var definitions []models.SequenceDefinition
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Find(&definitions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sequences",
		})
	}

	return c.JSON(fiber.Map{
		"sequences": definitions,
	})
}

// GetSequenceStats returns enrollment totals and per-step send counts.
func (sc *SequenceController) GetSequenceStats(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	var definition models.SequenceDefinition
	if err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&definition, sequenceID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var activeEnrollments int64
	if err := sc.DB.Model(&models.Enrollment{}).
		Where("sequence_definition_id = ? AND status = ?", definition.ID, models.EnrollmentStatusActive).
		Count(&activeEnrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	stepStats := make([]fiber.Map, 0, len(definition.Steps))
	for _, step := range definition.Steps {
		stepStats = append(stepStats, fiber.Map{
			"position":   step.Position,
			"template":   step.TemplateName,
			"day_offset": step.DayOffset,
			"sent":       step.SentCount,
			"failed":     step.FailedCount,
		})
	}

	return c.JSON(fiber.Map{
		"name":               definition.Name,
		"trigger_source":     definition.TriggerSource,
		"is_active":          definition.IsActive,
		"enrolled_count":     definition.EnrolledCount,
		"completed_count":    definition.CompletedCount,
		"active_enrollments": activeEnrollments,
		"steps":              stepStats,
	})
}
