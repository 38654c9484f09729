package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// EventRepositoryInterface is the append-only delivery event log.
type EventRepositoryInterface interface {
	Insert(ev *model.DeliveryEvent) error
	// MarkEngagementUnique claims first-occurrence for a (campaign,
	// recipient, kind) triple. Uniqueness is a primary-key constraint, not a
	// count query, so concurrent opens of the same mail race safely.
	MarkEngagementUnique(campaignID, recipientID int, kind model.EventKind) (bool, error)
}

type EventRepository struct {
	DB *sql.DB
}

func (r *EventRepository) Insert(ev *model.DeliveryEvent) error {
	var meta any
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		meta = raw
	}
	_, err := r.DB.Exec(`
		INSERT INTO delivery_events (id, campaign_id, recipient_id, kind, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.CampaignID, ev.RecipientID, ev.Kind, meta, ev.OccurredAt)
	return err
}

func (r *EventRepository) MarkEngagementUnique(campaignID, recipientID int, kind model.EventKind) (bool, error) {
	res, err := r.DB.Exec(`
		INSERT INTO engagement_uniques (campaign_id, recipient_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, recipient_id, kind) DO NOTHING`,
		campaignID, recipientID, kind)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
