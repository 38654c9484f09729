// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// CampaignHandler exposes campaign CRUD and the delivery-engine control
// surface (start/pause/resume/cancel, queue status).
type CampaignHandler struct {
	Campaigns repository.CampaignRepositoryInterface
	Service   *service.CampaignService
	Log       zerolog.Logger
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name            string     `json:"name"`
		SendConfigID    int        `json:"send_config_id"`
		Subject         string     `json:"subject"`
		FromName        string     `json:"from_name"`
		FromEmail       string     `json:"from_email"`
		ReplyTo         string     `json:"reply_to"`
		HTMLContent     string     `json:"html_content"`
		TextContent     string     `json:"text_content"`
		Priority        int        `json:"priority"`
		ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
		SendImmediately bool       `json:"send_immediately"`
		TrackOpens      *bool      `json:"track_opens,omitempty"`
		TrackClicks     *bool      `json:"track_clicks,omitempty"`
		TrackUnsubs     *bool      `json:"track_unsubscribes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		Name:            payload.Name,
		Status:          model.CampaignDraft,
		SendConfigID:    payload.SendConfigID,
		Subject:         payload.Subject,
		FromName:        payload.FromName,
		FromEmail:       payload.FromEmail,
		ReplyTo:         payload.ReplyTo,
		HTMLContent:     payload.HTMLContent,
		TextContent:     payload.TextContent,
		Priority:        payload.Priority,
		ScheduledAt:     payload.ScheduledAt,
		SendImmediately: payload.SendImmediately,
		// Tracking defaults on, matching what senders expect.
		TrackOpens:        payload.TrackOpens == nil || *payload.TrackOpens,
		TrackClicks:       payload.TrackClicks == nil || *payload.TrackClicks,
		TrackUnsubscribes: payload.TrackUnsubs == nil || *payload.TrackUnsubs,
	}
	if err := h.Campaigns.Create(campaign); err != nil {
		http.Error(w, "failed to create campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}
	status := r.URL.Query().Get("status")

	campaigns, total, err := h.Campaigns.ListCampaigns((page-1)*pageSize, pageSize, status)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": campaigns,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": (total + pageSize - 1) / pageSize,
		},
	})
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	campaign, err := h.Campaigns.GetByID(id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	queue, err := h.Service.QueueStatus(id)
	if err != nil {
		http.Error(w, "failed to fetch queue status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"queue":    queue,
	})
}

func (h *CampaignHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Start)
}

func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Pause)
}

func (h *CampaignHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Resume)
}

func (h *CampaignHandler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Service.Cancel)
}

func (h *CampaignHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(int) (*service.Result, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := op(id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (h *CampaignHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	queue, err := h.Service.QueueStatus(id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *CampaignHandler) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		RecipientID int `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	rendered, err := h.Service.RenderPreview(id, body.RecipientID)
	if err != nil {
		if appErrors.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"subject": rendered.Subject,
		"html":    rendered.HTML,
		"text":    rendered.Text,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *appErrors.ErrCampaignNotFound, *appErrors.ErrSendConfigNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
