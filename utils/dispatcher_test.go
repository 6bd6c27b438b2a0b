package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stayflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func enrollByTrigger(t *testing.T, db *gorm.DB, manager *EnrollmentManager, contact *models.Contact, triggerSource string, now time.Time) *models.Enrollment {
	t.Helper()

	catalog, err := LoadCatalog(db)
	require.NoError(t, err)
	enrollment, reason, err := manager.Enroll(catalog, contact, triggerSource, now)
	require.NoError(t, err)
	require.Equal(t, ReasonEnrolled, reason)
	return enrollment
}

func countSendsByStatus(t *testing.T, db *gorm.DB, enrollmentID uint, status string) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.ScheduledSend{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, status).
		Count(&n).Error)
	return n
}

func TestDispatcherThreeStepLifecycle(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	dispatcher, manager := newTestEngine(db, transport)

	seedSequence(t, db, models.TriggerQuizCompleted, []int{0, 3, 7})
	contact := seedContact(t, db, "ana@example.com")
	enrollment := enrollByTrigger(t, db, manager, contact, models.TriggerQuizCompleted, start)

	// Enrollment day: only the first step is due.
	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))

	// Running again at the same instant finds nothing pending and due.
	summary, err = dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))

	// Day 3 and day 7 each release exactly one step.
	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)

	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, 3, transport.sentTo("ana@example.com"))

	var reloaded models.Enrollment
	require.NoError(t, db.First(&reloaded, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)
	assert.Equal(t, 3, reloaded.EmailsSent)

	// Well past the end, nothing remains to do.
	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{}, summary)
	assert.Equal(t, 3, transport.sentTo("ana@example.com"))
}

func TestDispatcherBatchIsolation(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	transport.failWith["bad@example.com"] = &SendError{Kind: ErrorKindPermanent, Err: errors.New("550 no such user")}
	dispatcher, manager := newTestEngine(db, transport)

	seedSequence(t, db, models.TriggerSubscriberCreated, []int{0, 3})
	emails := []string{"ok1@example.com", "bad@example.com", "ok2@example.com"}
	enrollments := make(map[string]*models.Enrollment)
	for _, email := range emails {
		contact := seedContact(t, db, email)
		enrollments[email] = enrollByTrigger(t, db, manager, contact, models.TriggerSubscriberCreated, start)
	}

	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 3, Sent: 2, Failed: 1}, summary)
	assert.Equal(t, 1, transport.sentTo("ok1@example.com"))
	assert.Equal(t, 1, transport.sentTo("ok2@example.com"))
	assert.Equal(t, 0, transport.sentTo("bad@example.com"))

	// The bounced contact drops out; the rest of the campaign carries on.
	assert.EqualValues(t, 1, countSendsByStatus(t, db, enrollments["bad@example.com"].ID, models.SendStatusFailed))
	assert.EqualValues(t, 1, countSendsByStatus(t, db, enrollments["bad@example.com"].ID, models.SendStatusCanceled))

	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 2, Sent: 2}, summary)
	assert.Equal(t, 2, transport.sentTo("ok1@example.com"))
	assert.Equal(t, 2, transport.sentTo("ok2@example.com"))
}

func TestDispatcherTransientFailureRetriedNextRun(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	transport.failOnce["ana@example.com"] = &SendError{Kind: ErrorKindTransient, Err: errors.New("greylisted")}
	dispatcher, manager := newTestEngine(db, transport)

	seedSequence(t, db, models.TriggerQuizCompleted, []int{0})
	contact := seedContact(t, db, "ana@example.com")
	enrollment := enrollByTrigger(t, db, manager, contact, models.TriggerQuizCompleted, start)

	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Failed: 1}, summary)

	// Until the backoff elapses the row is not due, so immediate re-runs
	// leave it alone.
	summary, err = dispatcher.Run(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{}, summary)

	summary, err = dispatcher.Run(context.Background(), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))

	var send models.ScheduledSend
	require.NoError(t, db.Where("enrollment_id = ?", enrollment.ID).First(&send).Error)
	assert.Equal(t, models.SendStatusSent, send.Status)
	assert.Equal(t, 2, send.Attempts)
}

func TestDispatcherConsentWithdrawnMidSequence(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	dispatcher, manager := newTestEngine(db, transport)

	seedSequence(t, db, models.TriggerQuizCompleted, []int{0, 3, 7, 10})
	contact := seedContact(t, db, "ana@example.com")
	enrollment := enrollByTrigger(t, db, manager, contact, models.TriggerQuizCompleted, start)

	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)

	require.NoError(t, db.Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		Updates(map[string]interface{}{
			"status":          models.ContactStatusUnsubscribed,
			"unsubscribed_at": start.AddDate(0, 0, 1),
		}).Error)

	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Skipped: 1}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))

	// Steps 2 through 4 are canceled, and later runs see nothing.
	assert.EqualValues(t, 3, countSendsByStatus(t, db, enrollment.ID, models.SendStatusCanceled))

	summary, err = dispatcher.Run(context.Background(), start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))
}

func TestDispatcherDailyCapReschedules(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	dispatcher, manager := newTestEngine(db, transport)

	// Two campaigns whose follow-ups land on the same day for one contact.
	seedSequence(t, db, models.TriggerQuizCompleted, []int{0, 3})
	seedSequence(t, db, models.TriggerResourceDownload, []int{0, 3})
	contact := seedContact(t, db, "ana@example.com")
	enrollByTrigger(t, db, manager, contact, models.TriggerQuizCompleted, start)
	enrollByTrigger(t, db, manager, contact, models.TriggerResourceDownload, start)

	// Both delivery steps go out on day zero; position one is exempt from
	// the nurture cap.
	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 2, Sent: 2}, summary)

	// On day 3 both follow-ups are due but only one fits under the cap.
	day3 := start.AddDate(0, 0, 3)
	summary, err = dispatcher.Run(context.Background(), day3)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 2, Sent: 1, Skipped: 1}, summary)
	assert.Equal(t, 3, transport.sentTo("ana@example.com"))

	// The deferred one is pushed a day out, not dropped.
	var deferred models.ScheduledSend
	require.NoError(t, db.Where("status = ? AND step_position = ?", models.SendStatusPending, 2).First(&deferred).Error)
	assert.True(t, deferred.NextAttemptAt.Equal(day3.Add(24*time.Hour)), "deferred to %s", deferred.NextAttemptAt)

	summary, err = dispatcher.Run(context.Background(), day3.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{}, summary)

	summary, err = dispatcher.Run(context.Background(), day3.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, 4, transport.sentTo("ana@example.com"))
}

func TestDispatcherSkipsDeactivatedSequence(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	dispatcher, manager := newTestEngine(db, transport)

	def := seedSequence(t, db, models.TriggerQuizCompleted, []int{0})
	contact := seedContact(t, db, "ana@example.com")
	enrollment := enrollByTrigger(t, db, manager, contact, models.TriggerQuizCompleted, start)

	require.NoError(t, db.Model(&models.SequenceDefinition{}).
		Where("id = ?", def.ID).
		Update("is_active", false).Error)

	// The pending row is left alone so a reactivated campaign catches up.
	summary, err := dispatcher.Run(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Skipped: 1}, summary)
	assert.Equal(t, 0, transport.sentTo("ana@example.com"))
	assert.EqualValues(t, 1, countSendsByStatus(t, db, enrollment.ID, models.SendStatusPending))

	require.NoError(t, db.Model(&models.SequenceDefinition{}).
		Where("id = ?", def.ID).
		Update("is_active", true).Error)

	summary, err = dispatcher.Run(context.Background(), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, 1, transport.sentTo("ana@example.com"))
}

func TestDispatcherBatchLimit(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)
	transport := newFakeTransport()
	logger := newTestLogger()
	manager := NewEnrollmentManager(db, logger)
	executor := NewSendExecutor(db, transport, NewPersonalizer("https://stayflow.test"), manager, logger, 5, 5*time.Second)
	dispatcher := NewDispatcher(db, executor, logger, 2, 1)

	seedSequence(t, db, models.TriggerSubscriberCreated, []int{0})
	for i := 0; i < 5; i++ {
		contact := seedContact(t, db, fmt.Sprintf("c%d@example.com", i))
		enrollByTrigger(t, db, manager, contact, models.TriggerSubscriberCreated, start)
	}

	// Each invocation drains at most BatchLimit pairs; repeated invocations
	// drain the backlog without double-sending.
	total := 0
	for _, want := range []int{2, 2, 1, 0} {
		summary, err := dispatcher.Run(context.Background(), start)
		require.NoError(t, err)
		assert.Equal(t, want, summary.Sent)
		total += summary.Sent
	}
	assert.Equal(t, 5, total)

	var sent int64
	require.NoError(t, db.Model(&models.ScheduledSend{}).
		Where("status = ?", models.SendStatusSent).
		Count(&sent).Error)
	assert.EqualValues(t, 5, sent)
}

func TestDispatcherAbortsOnMalformedCatalog(t *testing.T) {
	db := newTestDB(t)
	transport := newFakeTransport()
	dispatcher, _ := newTestEngine(db, transport)

	def := models.SequenceDefinition{
		Name:          "broken",
		TriggerSource: models.TriggerQuizCompleted,
		IsActive:      true,
		Steps: []models.SequenceStep{
			{Position: 1, DayOffset: 5, TemplateName: "welcome"},
			{Position: 2, DayOffset: 2, TemplateName: "day3-mistakes"},
		},
	}
	require.NoError(t, db.Create(&def).Error)

	_, err := dispatcher.Run(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog load failed")
}
