// internal/model/recipient.go
package model

import "strings"

// Recipient statuses mirror the contact store. Only "active" contacts are
// eligible for campaign delivery.
const (
	RecipientActive       = "active"
	RecipientUnsubscribed = "unsubscribed"
	RecipientBounced      = "bounced"
	RecipientComplained   = "complained"
	RecipientBlocked      = "blocked"
)

// Recipient is a read-only contact snapshot used for personalization and
// addressing. The contact store owns it; the engine never writes display
// fields back.
type Recipient struct {
	ID           int               `db:"id" json:"id"`
	Email        string            `db:"email" json:"email"`
	FirstName    string            `db:"first_name" json:"first_name"`
	LastName     string            `db:"last_name" json:"last_name"`
	Company      string            `db:"company" json:"company"`
	City         string            `db:"city" json:"city"`
	Country      string            `db:"country" json:"country"`
	CustomFields map[string]string `db:"custom_fields" json:"custom_fields,omitempty"`
	Status       string            `db:"status" json:"status"`
	IsActive     bool              `db:"is_active" json:"is_active"`
}

func (r *Recipient) FullName() string {
	full := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if full == "" {
		return r.ShortName()
	}
	return full
}

// ShortName falls back to the mailbox part of the address when the contact
// has no first name.
func (r *Recipient) ShortName() string {
	if r.FirstName != "" {
		return r.FirstName
	}
	if at := strings.IndexByte(r.Email, '@'); at > 0 {
		return r.Email[:at]
	}
	return r.Email
}
