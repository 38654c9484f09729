// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// campaignTransitions is the lifecycle graph. Entry into "sending"
// additionally requires passing validation in the campaign service.
// "failed" keeps an edge back to "sending" so an operator can re-invoke
// Start once the systemic cause is fixed.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignSending},
	CampaignScheduled: {CampaignSending, CampaignCancelled},
	CampaignSending:   {CampaignPaused, CampaignCompleted, CampaignCancelled, CampaignFailed},
	CampaignPaused:    {CampaignSending, CampaignCancelled},
	CampaignFailed:    {CampaignSending},
}

func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the campaign can never send again. "failed" is
// not terminal: it is restartable once the operator fixes the cause.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

type Campaign struct {
	ID           int            `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Status       CampaignStatus `db:"status" json:"status"`
	SendConfigID int            `db:"send_config_id" json:"send_config_id"`

	// Content templates. Placeholders of the form {{field}} are expanded
	// per recipient by the personalizer.
	Subject     string `db:"subject" json:"subject"`
	FromName    string `db:"from_name" json:"from_name"`
	FromEmail   string `db:"from_email" json:"from_email"`
	ReplyTo     string `db:"reply_to" json:"reply_to,omitempty"`
	HTMLContent string `db:"html_content" json:"html_content"`
	TextContent string `db:"text_content" json:"text_content,omitempty"`

	// Priority orders jobs across campaigns, lower sends first.
	Priority        int        `db:"priority" json:"priority"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SendImmediately bool       `db:"send_immediately" json:"send_immediately"`

	TrackOpens        bool `db:"track_opens" json:"track_opens"`
	TrackClicks       bool `db:"track_clicks" json:"track_clicks"`
	TrackUnsubscribes bool `db:"track_unsubscribes" json:"track_unsubscribes"`

	// Counters, incremented atomically in the database, never decremented
	// during a send lifecycle.
	RecipientCount  int `db:"recipient_count" json:"recipient_count"`
	EmailsSent      int `db:"emails_sent" json:"emails_sent"`
	EmailsDelivered int `db:"emails_delivered" json:"emails_delivered"`
	EmailsBounced   int `db:"emails_bounced" json:"emails_bounced"`
	EmailsFailed    int `db:"emails_failed" json:"emails_failed"`
	UniqueOpens     int `db:"unique_opens" json:"unique_opens"`
	TotalOpens      int `db:"total_opens" json:"total_opens"`
	UniqueClicks    int `db:"unique_clicks" json:"unique_clicks"`
	TotalClicks     int `db:"total_clicks" json:"total_clicks"`
	Unsubscribes    int `db:"unsubscribes" json:"unsubscribes"`
	Complaints      int `db:"complaints" json:"complaints"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// PersonalizationAnchor is the timestamp baked into tracking tokens so that
// rendering the same campaign for the same recipient is byte-identical
// across retries and resumes.
func (c *Campaign) PersonalizationAnchor() time.Time {
	if c.StartedAt != nil {
		return *c.StartedAt
	}
	return c.CreatedAt
}
