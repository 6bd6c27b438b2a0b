package controller

import (
	"log"
	"strings"
	"time"

	"stayflow/models"
	"stayflow/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TriggerController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Manager *utils.EnrollmentManager
}

func NewTriggerController(db *gorm.DB, logger *log.Logger) *TriggerController {
	return &TriggerController{
		DB:      db,
		Logger:  logger,
		Manager: utils.NewEnrollmentManager(db, logger),
	}
}

type TriggerRequest struct {
	TriggerSource string   `json:"trigger_source" validate:"required,max=64"`
	Email         string   `json:"email" validate:"required,email"`
	Name          string   `json:"name" validate:"max=120"`
	Archetype     string   `json:"archetype" validate:"max=32"`
	Source        string   `json:"source" validate:"max=32"`
	Interests     []string `json:"interests" validate:"max=20,dive,max=64"`
}

// NotifyTrigger is the collaborator-facing entry point: the signup flow, quiz
// scorer, download handler and inactivity detector all report qualifying
// events here. Enrollment is idempotent, so callers may fire the same event
// more than once.
func (tc *TriggerController) NotifyTrigger(c *fiber.Ctx) error {
	var req TriggerRequest
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

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	contact, err := tc.findOrCreateContact(&req)
	if err != nil {
		tc.Logger.Printf("Failed to upsert contact %s: %v", req.Email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store contact",
		})
	}

	catalog, err := utils.LoadCatalog(tc.DB)
	if err != nil {
		tc.Logger.Printf("Catalog load failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Sequence catalog unavailable",
		})
	}

	enrollment, reason, err := tc.Manager.Enroll(catalog, contact, req.TriggerSource, time.Now())
	if err != nil {
		tc.Logger.Printf("Enrollment failed for contact %d: %v", contact.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Enrollment failed",
		})
	}

	response := fiber.Map{
		"enrolled": reason == utils.ReasonEnrolled,
		"reason":   string(reason),
	}
	if enrollment != nil {
		response["enrollment_id"] = enrollment.ID
	}
	return c.JSON(response)
}

// findOrCreateContact upserts the contact record for a trigger event. Later
// events may enrich a contact created earlier with fewer attributes
// (archetype arrives with the quiz, interests with the profile).
func (tc *TriggerController) findOrCreateContact(req *TriggerRequest) (*models.Contact, error) {
	var contact models.Contact
	err := tc.DB.Preload("Interests").Where("email = ?", req.Email).First(&contact).Error
	if err == gorm.ErrRecordNotFound {
		contact = models.Contact{
			Email:            req.Email,
			Name:             req.Name,
			Status:           models.ContactStatusActive,
			Archetype:        req.Archetype,
			Source:           req.Source,
			UnsubscribeToken: utils.NewUnsubscribeToken(),
		}
		if err := tc.DB.Create(&contact).Error; err != nil {
			return nil, err
		}
		if err := tc.saveInterests(&contact, req.Interests); err != nil {
			return nil, err
		}
		return &contact, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != "" && contact.Name == "" {
		updates["name"] = req.Name
		contact.Name = req.Name
	}
	if req.Archetype != "" && contact.Archetype != req.Archetype {
		updates["archetype"] = req.Archetype
		contact.Archetype = req.Archetype
	}
	if len(updates) > 0 {
		if err := tc.DB.Model(&contact).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if len(contact.Interests) == 0 && len(req.Interests) > 0 {
		if err := tc.saveInterests(&contact, req.Interests); err != nil {
			return nil, err
		}
	}
	return &contact, nil
}

func (tc *TriggerController) saveInterests(contact *models.Contact, interests []string) error {
	for _, name := range interests {
		interest := models.ContactInterest{ContactID: contact.ID, Name: name}
		if err := tc.DB.Create(&interest).Error; err != nil {
			return err
		}
		contact.Interests = append(contact.Interests, interest)
	}
	return nil
}
