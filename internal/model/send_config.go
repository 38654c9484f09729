// internal/model/send_config.go
package model

import "time"

// SendConfiguration is a verified sending identity with its own SMTP
// endpoint and rate ceilings. Usage counters are reset by an external
// scheduled job at day/month boundaries.
type SendConfiguration struct {
	ID         int    `db:"id" json:"id"`
	DomainName string `db:"domain_name" json:"domain_name"`
	FromEmail  string `db:"from_email" json:"from_email"`
	FromName   string `db:"from_name" json:"from_name"`
	ReplyTo    string `db:"reply_to" json:"reply_to,omitempty"`

	SMTPHost     string `db:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `db:"smtp_port" json:"smtp_port"`
	SMTPUsername string `db:"smtp_username" json:"smtp_username"`
	SMTPPassword string `db:"smtp_password" json:"-"`
	UseTLS       bool   `db:"use_tls" json:"use_tls"`
	UseSSL       bool   `db:"use_ssl" json:"use_ssl"`

	Active   bool `db:"is_active" json:"is_active"`
	Verified bool `db:"is_verified" json:"is_verified"`

	DailyLimit   int `db:"daily_limit" json:"daily_limit"`
	MonthlyLimit int `db:"monthly_limit" json:"monthly_limit"`
	DailyUsed    int `db:"daily_used" json:"daily_used"`
	MonthlyUsed  int `db:"monthly_used" json:"monthly_used"`

	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// CanSend reports whether this configuration is allowed to send right now.
// This is a snapshot check used as a cheap gate; the authoritative guard is
// the atomic reservation in the repository.
func (c *SendConfiguration) CanSend() bool {
	if !c.Active || !c.Verified {
		return false
	}
	if c.DailyUsed >= c.DailyLimit {
		return false
	}
	if c.MonthlyUsed >= c.MonthlyLimit {
		return false
	}
	return true
}
