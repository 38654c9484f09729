// internal/model/delivery_event.go
package model

import "time"

type EventKind string

const (
	EventSent         EventKind = "sent"
	EventDelivered    EventKind = "delivered"
	EventOpened       EventKind = "opened"
	EventClicked      EventKind = "clicked"
	EventBounced      EventKind = "bounced"
	EventUnsubscribed EventKind = "unsubscribed"
	EventComplained   EventKind = "complained"
	EventFailed       EventKind = "failed"
)

// DeliveryEvent is an immutable fact consumed by the analytics subsystem.
// Rows are append-only; the engine never updates or deletes them.
type DeliveryEvent struct {
	ID          string            `db:"id" json:"id"`
	CampaignID  int               `db:"campaign_id" json:"campaign_id"`
	RecipientID int               `db:"recipient_id" json:"recipient_id"`
	Kind        EventKind         `db:"kind" json:"kind"`
	Metadata    map[string]string `db:"metadata" json:"metadata,omitempty"`
	OccurredAt  time.Time         `db:"occurred_at" json:"occurred_at"`
}
