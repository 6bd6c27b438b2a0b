package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact subscription statuses
const (
	ContactStatusActive       = "active"
	ContactStatusUnsubscribed = "unsubscribed"
	ContactStatusBounced      = "bounced"
)

// Host archetypes assigned by the profile quiz. Contacts without an
// archetype receive the default content variant.
const (
	ArchetypeEstratega     = "ESTRATEGA"
	ArchetypeSistematico   = "SISTEMATICO"
	ArchetypeDiferenciador = "DIFERENCIADOR"
	ArchetypeEjecutor      = "EJECUTOR"
	ArchetypeResolutor     = "RESOLUTOR"
	ArchetypeExperiencial  = "EXPERIENCIAL"
	ArchetypeEquilibrado   = "EQUILIBRADO"
	ArchetypeImprovisador  = "IMPROVISADOR"
)

// Contact represents an email-reachable subscriber
type Contact struct {
	gorm.Model
	Email string `gorm:"not null;uniqueIndex" json:"email"`
	Name  string `json:"name"`

	// Subscription status
	Status           string     `gorm:"default:'active';index" json:"status"` // active, unsubscribed, bounced
	UnsubscribedAt   *time.Time `json:"unsubscribed_at"`
	UnsubscribeToken string     `gorm:"index" json:"-"`

	// Behavioral attributes used for personalization
	Archetype string `json:"archetype"`
	Source    string `json:"source"` // test, qr, blog, landing, manual, lead_magnet

	// Send bookkeeping
	EmailsSent      int        `gorm:"default:0" json:"emails_sent"`
	LastEmailSentAt *time.Time `json:"last_email_sent_at"`
	BouncedAt       *time.Time `json:"bounced_at"`

	// Relations
	Interests   []ContactInterest `gorm:"foreignKey:ContactID" json:"interests,omitempty"`
	Enrollments []Enrollment      `gorm:"foreignKey:ContactID" json:"enrollments,omitempty"`
}

// IsSubscribed reports whether the contact may still receive sequence emails.
func (c *Contact) IsSubscribed() bool {
	return c.Status == ContactStatusActive
}

// InterestNames flattens the interest relation for template data.
func (c *Contact) InterestNames() []string {
	names := make([]string, 0, len(c.Interests))
	for _, interest := range c.Interests {
		names = append(names, interest.Name)
	}
	return names
}

// ContactInterest represents declared interests for a contact (normalized)
type ContactInterest struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Name      string `gorm:"not null;index" json:"name"`
}

// Unsubscribe represents consent withdrawal requests
type Unsubscribe struct {
	gorm.Model
	Email     string `gorm:"not null;index" json:"email"`
	ContactID uint   `gorm:"not null;index" json:"contact_id"`

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}
