package models

import (
	"time"

	"gorm.io/gorm"
)

// Trigger sources recognized by the engine. Events carrying any other source
// match no sequence and are ignored.
const (
	TriggerSubscriberCreated = "subscriber_created"
	TriggerQuizCompleted     = "quiz_completed"
	TriggerResourceDownload  = "resource_download"
	TriggerTrialInactivity   = "trial_inactivity"
)

// SequenceDefinition represents one drip campaign tied to a trigger source.
// Definitions are authored through the admin endpoints and are read-only to
// the dispatcher at runtime. At most one definition per trigger source may
// be active at a time.
type SequenceDefinition struct {
	gorm.Model
	Name          string `gorm:"not null" json:"name"`
	Description   string `json:"description"`
	TriggerSource string `gorm:"not null;index" json:"trigger_source"`
	IsActive      bool   `gorm:"default:false;index" json:"is_active"`

	// Statistics (denormalized for performance)
	EnrolledCount  int `gorm:"default:0" json:"enrolled_count"`
	CompletedCount int `gorm:"default:0" json:"completed_count"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceDefinitionID" json:"steps,omitempty"`
}

// SequenceStep represents one position in a sequence. DayOffset counts
// calendar days from the enrollment start, not from the previous step's send.
type SequenceStep struct {
	gorm.Model
	SequenceDefinitionID uint `gorm:"not null;index;uniqueIndex:idx_sequence_step_position" json:"sequence_definition_id"`

	Position     int    `gorm:"not null;uniqueIndex:idx_sequence_step_position" json:"position"`
	DayOffset    int    `gorm:"not null" json:"day_offset"`
	TemplateName string `gorm:"not null" json:"template_name"`
	Subject      string `gorm:"not null" json:"subject"`

	// Tracking
	SentCount   int `gorm:"default:0" json:"sent_count"`
	FailedCount int `gorm:"default:0" json:"failed_count"`
}

// DueAt returns the moment this step becomes due for an enrollment that
// started at the given time.
func (s *SequenceStep) DueAt(startedAt time.Time) time.Time {
	return startedAt.Add(time.Duration(s.DayOffset) * 24 * time.Hour)
}
