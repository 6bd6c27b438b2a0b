package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusPaused    = "paused"
)

// ScheduledSend statuses. Sent, failed and canceled are terminal; the only
// permitted transitions are pending->sent, pending->pending (bounded retry),
// pending->failed and pending->canceled.
const (
	SendStatusPending  = "pending"
	SendStatusSent     = "sent"
	SendStatusFailed   = "failed"
	SendStatusCanceled = "canceled"
)

// Enrollment ties one contact to one sequence definition and tracks progress
// through its steps. The composite unique index guarantees a contact is never
// enrolled twice in the same sequence.
type Enrollment struct {
	gorm.Model
	ContactID            uint `gorm:"not null;uniqueIndex:idx_contact_sequence" json:"contact_id"`
	SequenceDefinitionID uint `gorm:"not null;uniqueIndex:idx_contact_sequence" json:"sequence_definition_id"`

	Status      string     `gorm:"default:'active';index" json:"status"` // active, completed, paused
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	PausedAt    *time.Time `json:"paused_at"`

	// Statistics
	EmailsSent int `gorm:"default:0" json:"emails_sent"`

	// Relations
	Contact            Contact            `json:"-"`
	SequenceDefinition SequenceDefinition `json:"-"`
	ScheduledSends     []ScheduledSend    `gorm:"foreignKey:EnrollmentID" json:"scheduled_sends,omitempty"`
}

// IsTerminal reports whether the enrollment can make no further progress on
// its own.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentStatusCompleted || e.Status == EnrollmentStatusPaused
}

// ScheduledSend is the idempotency guard: exactly one row per
// (enrollment, step position), created when the enrollment is created. Its
// status transitions are the sole mutation; a second row for the same pair is
// rejected by the unique index, so at most one send for the pair can ever
// succeed.
type ScheduledSend struct {
	gorm.Model
	EnrollmentID   uint `gorm:"not null;uniqueIndex:idx_enrollment_step" json:"enrollment_id"`
	StepPosition   int  `gorm:"not null;uniqueIndex:idx_enrollment_step" json:"step_position"`
	SequenceStepID uint `gorm:"not null;index" json:"sequence_step_id"`
	ContactID      uint `gorm:"not null;index" json:"contact_id"`

	Status        string     `gorm:"default:'pending';index" json:"status"` // pending, sent, failed, canceled
	DueAt         time.Time  `gorm:"not null;index" json:"due_at"`
	NextAttemptAt time.Time  `gorm:"not null" json:"next_attempt_at"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	LastError     string     `json:"last_error"`
	SentAt        *time.Time `json:"sent_at"`
	FailedAt      *time.Time `json:"failed_at"`
	CanceledAt    *time.Time `json:"canceled_at"`

	ProviderMessageID string `json:"provider_message_id"`

	// Relations
	Enrollment   Enrollment   `json:"-"`
	SequenceStep SequenceStep `json:"-"`
	Contact      Contact      `json:"-"`
}

// IsTerminal reports whether the send reached a final state.
func (s *ScheduledSend) IsTerminal() bool {
	return s.Status == SendStatusSent || s.Status == SendStatusFailed || s.Status == SendStatusCanceled
}
