package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"stayflow/models"

	"gorm.io/gorm"
)

// DispatchSummary is the monitoring view of one dispatcher invocation.
type DispatchSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Dispatcher finds due (enrollment, step) pairs and hands each one to the
// executor. It holds no state between invocations; the database is the only
// coordination point, which is what makes an externally cron-driven, possibly
// overlapping invocation model safe.
type Dispatcher struct {
	DB            *gorm.DB
	Executor      *SendExecutor
	Logger        *log.Logger
	BatchLimit    int
	DailyEmailCap int
}

func NewDispatcher(db *gorm.DB, executor *SendExecutor, logger *log.Logger, batchLimit, dailyEmailCap int) *Dispatcher {
	return &Dispatcher{
		DB:            db,
		Executor:      executor,
		Logger:        logger,
		BatchLimit:    batchLimit,
		DailyEmailCap: dailyEmailCap,
	}
}

// Run executes one dispatch invocation: load the catalog, load a bounded
// batch of due pending sends, process each pair independently. One pair's
// failure never aborts the batch; a catalog configuration error aborts the
// whole invocation, since running against a malformed campaign would mean
// silently skipping steps.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (DispatchSummary, error) {
	var summary DispatchSummary

	catalog, err := LoadCatalog(d.DB)
	if err != nil {
		return summary, fmt.Errorf("catalog load failed: %w", err)
	}

	var sends []models.ScheduledSend
	if err := d.DB.
		Where("status = ? AND due_at <= ? AND next_attempt_at <= ?", models.SendStatusPending, now, now).
		Order("due_at ASC").
		Limit(d.BatchLimit).
		Preload("Enrollment").
		Preload("SequenceStep").
		Preload("Contact").
		Preload("Contact.Interests").
		Find(&sends).Error; err != nil {
		return summary, fmt.Errorf("failed to load due sends: %w", err)
	}

	d.Logger.Printf("Dispatch run at %s: %d due sends (batch limit %d)", now.Format(time.RFC3339), len(sends), d.BatchLimit)

	// Nurture sends already delivered to each contact today, counted once
	// per contact and incremented as this batch sends more.
	nurtureToday := make(map[uint]int)

	for i := range sends {
		if ctx.Err() != nil {
			d.Logger.Printf("Dispatch canceled after %d items: %v", summary.Processed, ctx.Err())
			break
		}

		send := &sends[i]
		summary.Processed++

		outcome := d.processSend(ctx, catalog, send, nurtureToday, now)
		switch outcome {
		case OutcomeSent:
			summary.Sent++
		case OutcomeFailed, OutcomeRetry:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	d.Logger.Printf("Dispatch summary: processed=%d sent=%d skipped=%d failed=%d",
		summary.Processed, summary.Sent, summary.Skipped, summary.Failed)
	return summary, nil
}

func (d *Dispatcher) processSend(ctx context.Context, catalog *Catalog, send *models.ScheduledSend, nurtureToday map[uint]int, now time.Time) SendOutcome {
	// Defensive guard re-check. The batch query already filters on pending,
	// but a concurrent invocation may have finalized the pair since.
	if send.IsTerminal() {
		return OutcomeSkipped
	}

	enrollment := send.Enrollment
	contact := send.Contact

	def := catalog.DefinitionByID(enrollment.SequenceDefinitionID)
	if def == nil {
		// Campaign deactivated after enrollment; leave the row pending so a
		// reactivated campaign can catch up.
		d.Logger.Printf("Send %d belongs to inactive sequence %d, skipping", send.ID, enrollment.SequenceDefinitionID)
		return OutcomeSkipped
	}

	if enrollment.Status != models.EnrollmentStatusActive {
		return OutcomeSkipped
	}

	// Consent is re-checked at dispatch time, not only at enrollment: a
	// contact who unsubscribed mid-sequence stops here.
	if !contact.IsSubscribed() {
		d.Logger.Printf("Contact %d is %s, canceling their pending sends", contact.ID, contact.Status)
		if err := CancelPendingSendsForContact(d.DB, contact.ID, now); err != nil {
			d.Logger.Printf("Failed to cancel sends for contact %d: %v", contact.ID, err)
		}
		return OutcomeSkipped
	}

	// Daily nurture cap: never more than DailyEmailCap follow-up emails per
	// contact per day. Position 1 is the delivery step and is exempt.
	if d.DailyEmailCap > 0 && send.StepPosition > 1 {
		count, ok := nurtureToday[contact.ID]
		if !ok {
			var sentToday int64
			if err := d.DB.Model(&models.ScheduledSend{}).
				Where("contact_id = ? AND status = ? AND step_position > 1 AND sent_at >= ?",
					contact.ID, models.SendStatusSent, StartOfDay(now)).
				Count(&sentToday).Error; err != nil {
				d.Logger.Printf("Failed to count today's sends for contact %d: %v", contact.ID, err)
				return OutcomeSkipped
			}
			count = int(sentToday)
			nurtureToday[contact.ID] = count
		}
		if count >= d.DailyEmailCap {
			if err := d.DB.Model(&models.ScheduledSend{}).
				Where("id = ? AND status = ?", send.ID, models.SendStatusPending).
				Update("next_attempt_at", now.Add(24*time.Hour)).Error; err != nil {
				d.Logger.Printf("Failed to reschedule send %d: %v", send.ID, err)
			}
			d.Logger.Printf("Daily cap reached for contact %d, send %d rescheduled to tomorrow", contact.ID, send.ID)
			return OutcomeSkipped
		}
	}

	item := DispatchItem{
		Send:          send,
		Step:          &send.SequenceStep,
		Enrollment:    &enrollment,
		Contact:       &contact,
		FinalPosition: FinalPosition(def),
	}

	outcome, err := d.Executor.Execute(ctx, item, now)
	if err != nil {
		// Contained: the pair's own bookkeeping failed, the rest of the
		// batch goes on.
		d.Logger.Printf("Send %d processing error: %v", send.ID, err)
	}

	if outcome == OutcomeSent && send.StepPosition > 1 {
		nurtureToday[contact.ID]++
	}
	return outcome
}
