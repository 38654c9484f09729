// internal/handler/tracking_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/events"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/token"
)

// transparent 1x1 GIF served for open beacons
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61,
	0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler decodes beacon/click/unsubscribe tokens and turns them
// into engagement events and campaign counter updates. These endpoints are
// hit by mail clients, so a bad token gets the pixel or a 404, never a
// stack trace.
type TrackingHandler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Events     repository.EventRepositoryInterface
	Recorder   *events.Recorder
	Log        zerolog.Logger
}

func (h *TrackingHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, _, err := token.DecodeOpen(chi.URLParam(r, "token"))
	if err != nil {
		h.Log.Debug().Err(err).Msg("unreadable open token")
		servePixel(w)
		return
	}

	unique, err := h.Events.MarkEngagementUnique(campaignID, recipientID, model.EventOpened)
	if err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("open uniqueness check failed")
	}
	if err := h.Campaigns.RecordOpen(campaignID, unique); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record open counters")
	}
	meta := map[string]string{"user_agent": r.UserAgent()}
	if err := h.Recorder.Record(campaignID, recipientID, model.EventOpened, meta); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record open event")
	}

	servePixel(w)
}

func (h *TrackingHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, url, err := token.DecodeClick(chi.URLParam(r, "token"))
	if err != nil {
		h.Log.Debug().Err(err).Msg("unreadable click token")
		http.NotFound(w, r)
		return
	}

	unique, err := h.Events.MarkEngagementUnique(campaignID, recipientID, model.EventClicked)
	if err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("click uniqueness check failed")
	}
	if err := h.Campaigns.RecordClick(campaignID, unique); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record click counters")
	}
	meta := map[string]string{"url": url, "user_agent": r.UserAgent()}
	if err := h.Recorder.Record(campaignID, recipientID, model.EventClicked, meta); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record click event")
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	campaignID, recipientID, _, err := token.DecodeOpen(chi.URLParam(r, "token"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := h.Recipients.MarkUnsubscribed(recipientID); err != nil {
		h.Log.Error().Err(err).Int("recipient_id", recipientID).Msg("failed to unsubscribe contact")
		http.Error(w, "unsubscribe failed, please try again", http.StatusInternalServerError)
		return
	}
	if err := h.Campaigns.IncrementUnsubscribed(campaignID); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record unsubscribe counter")
	}
	if err := h.Recorder.Record(campaignID, recipientID, model.EventUnsubscribed, nil); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to record unsubscribe event")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><p>You have been unsubscribed.</p></body></html>"))
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
