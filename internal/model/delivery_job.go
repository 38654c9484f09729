// internal/model/delivery_job.go
package model

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSending   JobStatus = "sending"
	JobSent      JobStatus = "sent"
	JobFailed    JobStatus = "failed"
	JobRetrying  JobStatus = "retrying"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobSent || s == JobFailed || s == JobCancelled
}

const (
	// DefaultMaxAttempts bounds transport retries per job.
	DefaultMaxAttempts = 3
	// RetryBackoffStep is multiplied by the attempt count to schedule the
	// next try (linear backoff, no jitter).
	RetryBackoffStep = 5 * time.Minute
)

// DeliveryJob is one queued send for one (campaign, recipient) pair. Content
// is fully personalized at enqueue time so a retry never re-renders.
type DeliveryJob struct {
	ID          int       `db:"id" json:"id"`
	CampaignID  int       `db:"campaign_id" json:"campaign_id"`
	RecipientID int       `db:"recipient_id" json:"recipient_id"`
	Status      JobStatus `db:"status" json:"status"`
	Priority    int       `db:"priority" json:"priority"`

	Subject  string `db:"subject" json:"subject"`
	HTMLBody string `db:"html_body" json:"html_body"`
	TextBody string `db:"text_body" json:"text_body,omitempty"`

	Attempts    int    `db:"attempts" json:"attempts"`
	MaxAttempts int    `db:"max_attempts" json:"max_attempts"`
	LastError   string `db:"last_error" json:"last_error,omitempty"`

	// NotBefore gates eligibility: retries are claimable only once their
	// backoff window has elapsed.
	NotBefore time.Time  `db:"not_before" json:"not_before"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}
