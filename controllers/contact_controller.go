package controller

import (
	"log"
	"time"

	"stayflow/models"
	"stayflow/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
	}
}

// GetContact returns a contact with enrollments, for operator inspection.
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	contactID := utils.ParseUint(c.Params("id"))

	var contact models.Contact
	if err := cc.DB.Preload("Interests").Preload("Enrollments").First(&contact, contactID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	return c.JSON(contact)
}

// Unsubscribe withdraws consent for a contact by ID (API callers).
func (cc *ContactController) Unsubscribe(c *fiber.Ctx) error {
	contactID := utils.ParseUint(c.Params("id"))

	var contact models.Contact
	if err := cc.DB.First(&contact, contactID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)

	if err := cc.unsubscribeContact(&contact, body.Reason, c.IP(), c.Get("User-Agent")); err != nil {
		cc.Logger.Printf("Failed to unsubscribe contact %d: %v", contact.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contact unsubscribed successfully",
	})
}

// UnsubscribeByToken serves the public unsubscribe link embedded in every
// sequence email. Idempotent: a second click reports success again.
func (cc *ContactController) UnsubscribeByToken(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing token",
		})
	}

	var contact models.Contact
	if err := cc.DB.Where("unsubscribe_token = ?", token).First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown unsubscribe link",
		})
	}

	if contact.Status == models.ContactStatusUnsubscribed {
		return c.JSON(fiber.Map{
			"message": "You are already unsubscribed",
		})
	}

	if err := cc.unsubscribeContact(&contact, "link", c.IP(), c.Get("User-Agent")); err != nil {
		cc.Logger.Printf("Failed to unsubscribe contact %d: %v", contact.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe",
		})
	}

	return c.JSON(fiber.Map{
		"message": "You have been unsubscribed",
	})
}

// unsubscribeContact withdraws consent: the contact is flagged, active
// enrollments pause, and every still-pending send is canceled. Sends already
// in flight in a running batch are allowed to complete.
func (cc *ContactController) unsubscribeContact(contact *models.Contact, reason, ip, userAgent string) error {
	now := time.Now()
	return cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(contact).Updates(map[string]interface{}{
			"status":          models.ContactStatusUnsubscribed,
			"unsubscribed_at": now,
		}).Error; err != nil {
			return err
		}

		record := models.Unsubscribe{
			Email:     contact.Email,
			ContactID: contact.ID,
			Reason:    reason,
			IPAddress: ip,
			UserAgent: userAgent,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Enrollment{}).
			Where("contact_id = ? AND status = ?", contact.ID, models.EnrollmentStatusActive).
			Updates(map[string]interface{}{
				"status":    models.EnrollmentStatusPaused,
				"paused_at": now,
			}).Error; err != nil {
			return err
		}

		return utils.CancelPendingSendsForContact(tx, contact.ID, now)
	})
}
