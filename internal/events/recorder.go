package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// Store is the durable side of the event log.
type Store interface {
	Insert(ev *model.DeliveryEvent) error
}

// Recorder appends a DeliveryEvent and forwards it to the broker. The
// durable insert is authoritative; a broker publish failure is logged and
// swallowed so delivery never stalls on analytics.
type Recorder struct {
	Events    Store
	Publisher *Publisher
	Log       zerolog.Logger
}

func NewRecorder(store Store, publisher *Publisher, log zerolog.Logger) *Recorder {
	return &Recorder{Events: store, Publisher: publisher, Log: log}
}

func (r *Recorder) Record(campaignID, recipientID int, kind model.EventKind, metadata map[string]string) error {
	ev := &model.DeliveryEvent{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Kind:        kind,
		Metadata:    metadata,
		OccurredAt:  time.Now().UTC(),
	}
	if err := r.Events.Insert(ev); err != nil {
		return err
	}
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ev); err != nil {
			r.Log.Warn().Err(err).
				Int("campaign_id", campaignID).
				Str("kind", string(kind)).
				Msg("event publish failed, durable copy kept")
		}
	}
	return nil
}
