package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	SetRecipientCount(campaignID, count int) error

	// Lifecycle. TransitionStatus is a compare-and-set: it succeeds only if
	// the row is still in the expected state, which makes completion and
	// concurrent control calls race-free.
	TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error)

	// Counters. All increments are single atomic UPDATEs.
	IncrementSent(campaignID int) error
	IncrementFailed(campaignID int) error
	IncrementBounced(campaignID int) error
	IncrementUnsubscribed(campaignID int) error
	IncrementComplained(campaignID int) error
	RecordOpen(campaignID int, unique bool) error
	RecordClick(campaignID int, unique bool) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, status, send_config_id, subject, from_name, from_email,
	COALESCE(reply_to, ''), html_content, COALESCE(text_content, ''),
	priority, scheduled_at, send_immediately,
	track_opens, track_clicks, track_unsubscribes,
	recipient_count, emails_sent, emails_delivered, emails_bounced, emails_failed,
	unique_opens, total_opens, unique_clicks, total_clicks, unsubscribes, complaints,
	created_at, updated_at, started_at, completed_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Status, &c.SendConfigID, &c.Subject, &c.FromName, &c.FromEmail,
		&c.ReplyTo, &c.HTMLContent, &c.TextContent,
		&c.Priority, &c.ScheduledAt, &c.SendImmediately,
		&c.TrackOpens, &c.TrackClicks, &c.TrackUnsubscribes,
		&c.RecipientCount, &c.EmailsSent, &c.EmailsDelivered, &c.EmailsBounced, &c.EmailsFailed,
		&c.UniqueOpens, &c.TotalOpens, &c.UniqueClicks, &c.TotalClicks, &c.Unsubscribes, &c.Complaints,
		&c.CreatedAt, &c.UpdatedAt, &c.StartedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
		INSERT INTO campaigns
			(name, status, send_config_id, subject, from_name, from_email, reply_to,
			 html_content, text_content, priority, scheduled_at, send_immediately,
			 track_opens, track_clicks, track_unsubscribes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	return r.DB.QueryRow(query,
		c.Name, c.Status, c.SendConfigID, c.Subject, c.FromName, c.FromEmail, nullable(c.ReplyTo),
		c.HTMLContent, nullable(c.TextContent), c.Priority, c.ScheduledAt, c.SendImmediately,
		c.TrackOpens, c.TrackClicks, c.TrackUnsubscribes, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []any{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []any{}
	if status != "" {
		countQuery += " AND status=$1"
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) SetRecipientCount(campaignID, count int) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET recipient_count=$1, updated_at=NOW() WHERE id=$2`, count, campaignID)
	return err
}

func (r *CampaignRepository) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, appErrors.NewInvalidTransition(string(from), string(to))
	}
	query := `
		UPDATE campaigns
		SET status=$1,
		    started_at=CASE WHEN $1='sending' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at=CASE WHEN $1='completed' THEN NOW() ELSE completed_at END,
		    updated_at=NOW()
		WHERE id=$2 AND status=$3
	`
	res, err := r.DB.Exec(query, to, campaignID, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// increment bumps a single counter column. Column names are fixed by the
// callers below, never caller input.
func (r *CampaignRepository) increment(campaignID int, column string) error {
	query := fmt.Sprintf(`UPDATE campaigns SET %s = %s + 1, updated_at=NOW() WHERE id=$1`, column, column)
	_, err := r.DB.Exec(query, campaignID)
	return err
}

func (r *CampaignRepository) IncrementSent(campaignID int) error {
	_, err := r.DB.Exec(`
		UPDATE campaigns
		SET emails_sent = emails_sent + 1, emails_delivered = emails_delivered + 1, updated_at=NOW()
		WHERE id=$1`, campaignID)
	return err
}

func (r *CampaignRepository) IncrementFailed(campaignID int) error {
	return r.increment(campaignID, "emails_failed")
}

func (r *CampaignRepository) IncrementBounced(campaignID int) error {
	return r.increment(campaignID, "emails_bounced")
}

func (r *CampaignRepository) IncrementUnsubscribed(campaignID int) error {
	return r.increment(campaignID, "unsubscribes")
}

func (r *CampaignRepository) IncrementComplained(campaignID int) error {
	return r.increment(campaignID, "complaints")
}

func (r *CampaignRepository) RecordOpen(campaignID int, unique bool) error {
	query := `UPDATE campaigns SET total_opens = total_opens + 1, unique_opens = unique_opens + $1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, boolToInt(unique), campaignID)
	return err
}

func (r *CampaignRepository) RecordClick(campaignID int, unique bool) error {
	query := `UPDATE campaigns SET total_clicks = total_clicks + 1, unique_clicks = unique_clicks + $1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, boolToInt(unique), campaignID)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
