package utils

import (
	"fmt"
	"log"
	"time"

	"stayflow/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnrollReason explains the outcome of an enrollment attempt. Only internal
// errors are surfaced as Go errors; the rest are expected business outcomes.
type EnrollReason string

const (
	ReasonEnrolled         EnrollReason = "enrolled"
	ReasonAlreadyEnrolled  EnrollReason = "already_enrolled"
	ReasonUnknownTrigger   EnrollReason = "unknown_trigger"
	ReasonConsentWithdrawn EnrollReason = "consent_withdrawn"
)

type EnrollmentManager struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEnrollmentManager(db *gorm.DB, logger *log.Logger) *EnrollmentManager {
	return &EnrollmentManager{
		DB:     db,
		Logger: logger,
	}
}

// Enroll creates an enrollment for the sequence matching the trigger source,
// together with one pending ScheduledSend per step, due at
// start + dayOffset days. The existing-enrollment check plus the composite
// unique index make the operation idempotent against double-triggering.
func (em *EnrollmentManager) Enroll(catalog *Catalog, contact *models.Contact, triggerSource string, now time.Time) (*models.Enrollment, EnrollReason, error) {
	def := catalog.Resolve(triggerSource)
	if def == nil {
		em.Logger.Printf("No active sequence for trigger %q, skipping", triggerSource)
		return nil, ReasonUnknownTrigger, nil
	}

	if !contact.IsSubscribed() {
		em.Logger.Printf("Contact %d is %s, refusing enrollment in %q", contact.ID, contact.Status, def.Name)
		return nil, ReasonConsentWithdrawn, nil
	}

	var existing models.Enrollment
	err := em.DB.Where("contact_id = ? AND sequence_definition_id = ?", contact.ID, def.ID).
		First(&existing).Error
	if err == nil {
		em.Logger.Printf("Contact %d already enrolled in sequence %q", contact.ID, def.Name)
		return &existing, ReasonAlreadyEnrolled, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, "", fmt.Errorf("failed to check existing enrollment: %w", err)
	}

	enrollment := models.Enrollment{
		ContactID:            contact.ID,
		SequenceDefinitionID: def.ID,
		Status:               models.EnrollmentStatusActive,
		StartedAt:            now,
	}

	err = em.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&enrollment).Error; err != nil {
			return err
		}

		for i := range def.Steps {
			step := &def.Steps[i]
			send := models.ScheduledSend{
				EnrollmentID:   enrollment.ID,
				StepPosition:   step.Position,
				SequenceStepID: step.ID,
				ContactID:      contact.ID,
				Status:         models.SendStatusPending,
				DueAt:          step.DueAt(now),
				NextAttemptAt:  step.DueAt(now),
			}
			if err := tx.Create(&send).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.SequenceDefinition{}).
			Where("id = ?", def.ID).
			Update("enrolled_count", gorm.Expr("enrolled_count + ?", 1)).Error
	})
	if err != nil {
		// A concurrent trigger for the same pair loses the race on the
		// (contact_id, sequence_definition_id) unique index.
		var winner models.Enrollment
		if lookupErr := em.DB.Where("contact_id = ? AND sequence_definition_id = ?", contact.ID, def.ID).
			First(&winner).Error; lookupErr == nil {
			return &winner, ReasonAlreadyEnrolled, nil
		}
		return nil, "", fmt.Errorf("failed to create enrollment: %w", err)
	}

	em.Logger.Printf("Enrolled contact %d in sequence %q (%d steps)", contact.ID, def.Name, len(def.Steps))
	return &enrollment, ReasonEnrolled, nil
}

// MarkStepSent records a successful step send on the enrollment and, when the
// step is the sequence's final position, transitions it to completed.
func (em *EnrollmentManager) MarkStepSent(enrollment *models.Enrollment, stepPosition, finalPosition int, now time.Time) error {
	updates := map[string]interface{}{
		"emails_sent": gorm.Expr("emails_sent + ?", 1),
	}
	if stepPosition >= finalPosition {
		updates["status"] = models.EnrollmentStatusCompleted
		updates["completed_at"] = now
	}

	if err := em.DB.Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update enrollment %d: %w", enrollment.ID, err)
	}

	if stepPosition >= finalPosition {
		em.Logger.Printf("Enrollment %d completed", enrollment.ID)
		if err := em.DB.Model(&models.SequenceDefinition{}).
			Where("id = ?", enrollment.SequenceDefinitionID).
			Update("completed_count", gorm.Expr("completed_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to update sequence stats: %w", err)
		}
	}
	return nil
}

// Pause suspends an enrollment. Pending sends are left in place; the
// dispatcher refuses to emit work for non-active enrollments, and Resume
// lets them be caught up later.
func (em *EnrollmentManager) Pause(enrollmentID uint, now time.Time) error {
	return em.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":    models.EnrollmentStatusPaused,
			"paused_at": now,
		}).Error
}

// Resume reactivates a paused enrollment. Steps whose due time passed while
// paused become immediately eligible again and are sent late.
func (em *EnrollmentManager) Resume(enrollmentID uint) error {
	return em.DB.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentStatusPaused).
		Updates(map[string]interface{}{
			"status":    models.EnrollmentStatusActive,
			"paused_at": nil,
		}).Error
}

// Complete force-finishes an enrollment (operator action) and cancels its
// remaining pending sends.
func (em *EnrollmentManager) Complete(enrollmentID uint, now time.Time) error {
	return em.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status <> ?", enrollmentID, models.EnrollmentStatusCompleted).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusCompleted,
				"completed_at": now,
			}).Error; err != nil {
			return err
		}
		return CancelPendingSendsForEnrollment(tx, enrollmentID, now)
	})
}

// CancelPendingSendsForEnrollment flips every still-pending send of an
// enrollment to canceled. The status guard keeps it from touching sends that
// completed concurrently.
func CancelPendingSendsForEnrollment(db *gorm.DB, enrollmentID uint, now time.Time) error {
	return db.Model(&models.ScheduledSend{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, models.SendStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SendStatusCanceled,
			"canceled_at": now,
		}).Error
}

// CancelPendingSendsForContact cancels every still-pending send addressed to
// a contact, across all of their enrollments. Used on consent withdrawal.
func CancelPendingSendsForContact(db *gorm.DB, contactID uint, now time.Time) error {
	return db.Model(&models.ScheduledSend{}).
		Where("contact_id = ? AND status = ?", contactID, models.SendStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SendStatusCanceled,
			"canceled_at": now,
		}).Error
}

// NewUnsubscribeToken mints the opaque token embedded in unsubscribe links.
func NewUnsubscribeToken() string {
	return uuid.New().String()
}
