package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"stayflow/models"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SendOutcome summarizes what the executor did with one (enrollment, step)
// pair.
type SendOutcome string

const (
	OutcomeSent    SendOutcome = "sent"
	OutcomeSkipped SendOutcome = "skipped"
	OutcomeRetry   SendOutcome = "retry"
	OutcomeFailed  SendOutcome = "failed"
)

// DispatchItem is one due (enrollment, step) pair with its loaded relations.
type DispatchItem struct {
	Send          *models.ScheduledSend
	Step          *models.SequenceStep
	Enrollment    *models.Enrollment
	Contact       *models.Contact
	FinalPosition int
}

// SendExecutor resolves personalization for a due step, invokes the mail
// transport and records the outcome. Every write to a ScheduledSend is a
// conditional update keyed on its current status, so two overlapping
// dispatcher invocations racing on the same pair cannot both send: the
// loser's update affects zero rows and it walks away.
type SendExecutor struct {
	DB           *gorm.DB
	Transport    MailTransport
	Personalizer *Personalizer
	Manager      *EnrollmentManager
	Logger       *log.Logger
	MaxAttempts  int
	SendTimeout  time.Duration
}

func NewSendExecutor(db *gorm.DB, transport MailTransport, personalizer *Personalizer, manager *EnrollmentManager, logger *log.Logger, maxAttempts int, sendTimeout time.Duration) *SendExecutor {
	return &SendExecutor{
		DB:           db,
		Transport:    transport,
		Personalizer: personalizer,
		Manager:      manager,
		Logger:       logger,
		MaxAttempts:  maxAttempts,
		SendTimeout:  sendTimeout,
	}
}

// Execute processes one due pair end to end. The claim happens-before the
// transport call; the transport call is bounded by SendTimeout.
func (ex *SendExecutor) Execute(ctx context.Context, item DispatchItem, now time.Time) (SendOutcome, error) {
	send := item.Send

	// Final race-safety check, as close to the external call as we can get:
	// claim this attempt by bumping the attempt counter only if the row is
	// still pending at the attempt count we loaded. Zero rows affected means
	// another invocation owns the pair.
	claim := ex.DB.Model(&models.ScheduledSend{}).
		Where("id = ? AND status = ? AND attempts = ?", send.ID, models.SendStatusPending, send.Attempts).
		Update("attempts", gorm.Expr("attempts + ?", 1))
	if claim.Error != nil {
		return OutcomeSkipped, fmt.Errorf("failed to claim send %d: %w", send.ID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		ex.Logger.Printf("Send %d claimed elsewhere, skipping", send.ID)
		return OutcomeSkipped, nil
	}
	attempt := send.Attempts + 1

	rendered := ex.Personalizer.Resolve(item.Contact, item.Step)
	html, err := RenderTemplate(rendered.TemplateName, rendered.Data)
	if err != nil {
		// A template the catalog let through but the renderer rejects is an
		// authoring bug, not a transport hiccup.
		return ex.recordFailure(item, attempt, ErrorKindPermanent, err, now)
	}

	sendCtx, cancel := context.WithTimeout(ctx, ex.SendTimeout)
	defer cancel()

	receipt, err := ex.Transport.Send(sendCtx, OutboundEmail{
		To:       item.Contact.Email,
		ToName:   item.Contact.Name,
		Subject:  rendered.Subject,
		HTMLBody: html,
	})
	if err != nil {
		return ex.recordFailure(item, attempt, ClassifyError(err), err, now)
	}

	return ex.recordSuccess(item, receipt, now)
}

func (ex *SendExecutor) recordSuccess(item DispatchItem, receipt SendReceipt, now time.Time) (SendOutcome, error) {
	send := item.Send

	res := ex.DB.Model(&models.ScheduledSend{}).
		Where("id = ? AND status = ?", send.ID, models.SendStatusPending).
		Updates(map[string]interface{}{
			"status":              models.SendStatusSent,
			"sent_at":             now,
			"last_error":          "",
			"provider_message_id": receipt.ProviderMessageID,
		})
	if res.Error != nil {
		return OutcomeSent, fmt.Errorf("failed to mark send %d sent: %w", send.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// The email left the building but the row was finalized elsewhere;
		// nothing useful remains to write.
		ex.Logger.Printf("Send %d already finalized, leaving record untouched", send.ID)
		return OutcomeSent, nil
	}

	if err := ex.Manager.MarkStepSent(item.Enrollment, item.Step.Position, item.FinalPosition, now); err != nil {
		return OutcomeSent, err
	}

	if err := ex.DB.Model(&models.SequenceStep{}).
		Where("id = ?", item.Step.ID).
		Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
		return OutcomeSent, err
	}

	if err := ex.DB.Model(&models.Contact{}).
		Where("id = ?", item.Contact.ID).
		Updates(map[string]interface{}{
			"emails_sent":        gorm.Expr("emails_sent + ?", 1),
			"last_email_sent_at": now,
		}).Error; err != nil {
		return OutcomeSent, err
	}

	logrus.WithFields(logrus.Fields{
		"send_id":    send.ID,
		"contact_id": item.Contact.ID,
		"sequence":   item.Enrollment.SequenceDefinitionID,
		"step":       item.Step.Position,
		"message_id": receipt.ProviderMessageID,
	}).Info("sequence email sent")

	return OutcomeSent, nil
}

func (ex *SendExecutor) recordFailure(item DispatchItem, attempt int, kind ErrorKind, sendErr error, now time.Time) (SendOutcome, error) {
	send := item.Send

	if kind == ErrorKindTransient && attempt < ex.MaxAttempts {
		res := ex.DB.Model(&models.ScheduledSend{}).
			Where("id = ? AND status = ?", send.ID, models.SendStatusPending).
			Updates(map[string]interface{}{
				"last_error":      sendErr.Error(),
				"next_attempt_at": now.Add(retryBackoff(attempt)),
			})
		if res.Error != nil {
			return OutcomeRetry, fmt.Errorf("failed to schedule retry for send %d: %w", send.ID, res.Error)
		}
		ex.Logger.Printf("Send %d failed transiently (attempt %d/%d): %v", send.ID, attempt, ex.MaxAttempts, sendErr)
		return OutcomeRetry, nil
	}

	res := ex.DB.Model(&models.ScheduledSend{}).
		Where("id = ? AND status = ?", send.ID, models.SendStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SendStatusFailed,
			"failed_at":  now,
			"last_error": sendErr.Error(),
		})
	if res.Error != nil {
		return OutcomeFailed, fmt.Errorf("failed to mark send %d failed: %w", send.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return OutcomeSkipped, nil
	}

	if err := ex.DB.Model(&models.SequenceStep{}).
		Where("id = ?", item.Step.ID).
		Update("failed_count", gorm.Expr("failed_count + ?", 1)).Error; err != nil {
		return OutcomeFailed, err
	}

	// A hard rejection from the transport means the address itself is bad:
	// mark the contact bounced and stop every sequence addressed to them.
	if kind == ErrorKindPermanent && attempt == 1 {
		if err := ex.markContactBounced(item.Contact.ID, now); err != nil {
			return OutcomeFailed, err
		}
	}

	log := logrus.WithFields(logrus.Fields{
		"send_id":    send.ID,
		"contact_id": item.Contact.ID,
		"sequence":   item.Enrollment.SequenceDefinitionID,
		"step":       item.Step.Position,
		"attempts":   attempt,
		"kind":       string(kind),
	})
	log.WithError(sendErr).Error("sequence email failed terminally")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "send_executor")
		scope.SetTag("error_kind", string(kind))
		scope.SetExtra("send_id", send.ID)
		scope.SetExtra("contact_id", item.Contact.ID)
		scope.SetExtra("step_position", item.Step.Position)
		sentry.CaptureException(sendErr)
	})

	return OutcomeFailed, nil
}

func (ex *SendExecutor) markContactBounced(contactID uint, now time.Time) error {
	if err := ex.DB.Model(&models.Contact{}).
		Where("id = ? AND status = ?", contactID, models.ContactStatusActive).
		Updates(map[string]interface{}{
			"status":     models.ContactStatusBounced,
			"bounced_at": now,
		}).Error; err != nil {
		return err
	}
	if err := ex.DB.Model(&models.Enrollment{}).
		Where("contact_id = ? AND status = ?", contactID, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":    models.EnrollmentStatusPaused,
			"paused_at": now,
		}).Error; err != nil {
		return err
	}
	return CancelPendingSendsForContact(ex.DB, contactID, now)
}

// retryBackoff doubles from one hour per prior attempt, capped at a day.
func retryBackoff(attempt int) time.Duration {
	backoff := time.Hour << (attempt - 1)
	if backoff > 24*time.Hour {
		backoff = 24 * time.Hour
	}
	return backoff
}
