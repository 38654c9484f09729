// internal/service/campaign_service.go
package service

import (
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// CampaignService owns the campaign lifecycle. It is the only component that
// moves campaigns between states; the dispatcher merely asks it (via the
// shared repositories) whether a campaign is sending.
type CampaignService struct {
	Campaigns    repository.CampaignRepositoryInterface
	Recipients   repository.RecipientRepositoryInterface
	Jobs         repository.DeliveryJobRepositoryInterface
	SendConfigs  repository.SendConfigRepositoryInterface
	Personalizer *Personalizer
	Log          zerolog.Logger
}

// Result is the structured outcome of a lifecycle operation. Validation
// problems come back as Success=false with a message, never as an error.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func failure(message string) *Result { return &Result{Success: false, Message: message} }
func success(message string) *Result { return &Result{Success: true, Message: message} }

// QueueStatus summarizes a campaign's delivery queue.
type QueueStatus struct {
	Pending   int `json:"pending"`
	Sending   int `json:"sending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Cancelled int `json:"cancelled"`
}

// Start validates a draft, scheduled, or failed campaign, resolves its
// audience, materializes one delivery job per recipient, and only then
// transitions it to sending. Re-invoking Start on a paused, failed, or
// crashed campaign is safe: job creation is idempotent per
// (campaign, recipient).
func (s *CampaignService) Start(campaignID int) (*Result, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case model.CampaignDraft, model.CampaignScheduled:
	case model.CampaignFailed:
		// Operator retry after a systemic failure; existing jobs are reused.
	case model.CampaignPaused:
		return s.Resume(campaignID)
	default:
		return failure("campaign cannot be started from status " + string(campaign.Status)), nil
	}

	if msg := s.validate(campaign); msg != "" {
		return failure(msg), nil
	}

	// Deferred start: park the campaign until the scheduler re-invokes us.
	if campaign.Status == model.CampaignDraft && !campaign.SendImmediately &&
		campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
		if _, err := s.Campaigns.TransitionStatus(campaignID, model.CampaignDraft, model.CampaignScheduled); err != nil {
			return nil, err
		}
		return success("campaign scheduled"), nil
	}

	recipients, err := s.Recipients.ResolveForCampaign(campaignID)
	if err != nil {
		// Resolver blew up before any job existed: systemic failure, needs
		// an operator.
		s.markFailed(campaign)
		return nil, err
	}
	if len(recipients) == 0 {
		return failure("campaign has no eligible recipients"), nil
	}

	// Materialize the full job set before entering the sending state. Jobs
	// under a non-sending campaign are not claimable, so a worker can never
	// observe a drained queue and complete the campaign mid-materialization.
	// A crash here leaves the campaign in its prior state; re-invoking Start
	// fills the gaps idempotently.
	queued := 0
	for i := range recipients {
		rec := &recipients[i]
		rendered := s.Personalizer.Render(campaign, rec)
		job := &model.DeliveryJob{
			CampaignID:  campaignID,
			RecipientID: rec.ID,
			Priority:    campaign.Priority,
			Subject:     rendered.Subject,
			HTMLBody:    rendered.HTML,
			TextBody:    rendered.Text,
		}
		inserted, err := s.Jobs.Enqueue(job)
		if err != nil {
			// Queueing itself broke mid-way: fail the campaign rather than
			// leave a half-materialized send behind unmarked.
			s.markFailed(campaign)
			return nil, err
		}
		if inserted {
			queued++
		}
	}
	if err := s.Campaigns.SetRecipientCount(campaignID, len(recipients)); err != nil {
		s.Log.Warn().Err(err).Int("campaign_id", campaignID).Msg("failed to store recipient count")
	}

	ok, err := s.Campaigns.TransitionStatus(campaignID, campaign.Status, model.CampaignSending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure("campaign status changed concurrently, start aborted"), nil
	}

	s.Log.Info().
		Int("campaign_id", campaignID).
		Int("recipients", len(recipients)).
		Int("jobs_queued", queued).
		Msg("campaign sending started")
	return success("campaign sending started"), nil
}

// validate enforces the preconditions for entering the sending state.
func (s *CampaignService) validate(campaign *model.Campaign) string {
	if campaign.Subject == "" {
		return "campaign has no subject"
	}
	if campaign.HTMLContent == "" && campaign.TextContent == "" {
		return "campaign has no content"
	}
	if campaign.SendConfigID == 0 {
		return "no send configuration selected"
	}
	cfg, err := s.SendConfigs.GetByID(campaign.SendConfigID)
	if err != nil {
		if _, ok := err.(*appErrors.ErrSendConfigNotFound); ok {
			return "send configuration not found"
		}
		return "send configuration lookup failed: " + err.Error()
	}
	if !cfg.Active {
		return "send configuration is inactive"
	}
	if !cfg.Verified {
		return "sending domain is not verified"
	}
	return ""
}

// Pause suspends claiming for the campaign. Claimed jobs finish; everything
// else stays queued exactly as-is.
func (s *CampaignService) Pause(campaignID int) (*Result, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignSending {
		return failure("campaign is not currently sending"), nil
	}
	ok, err := s.Campaigns.TransitionStatus(campaignID, model.CampaignSending, model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure("campaign is not currently sending"), nil
	}
	s.Log.Info().Int("campaign_id", campaignID).Msg("campaign paused")
	return success("campaign paused"), nil
}

// Resume picks up exactly where the queue left off. No re-personalization,
// no new jobs.
func (s *CampaignService) Resume(campaignID int) (*Result, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPaused {
		return failure("campaign is not paused"), nil
	}
	ok, err := s.Campaigns.TransitionStatus(campaignID, model.CampaignPaused, model.CampaignSending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure("campaign is not paused"), nil
	}
	s.Log.Info().Int("campaign_id", campaignID).Msg("campaign resumed")
	return success("campaign resumed"), nil
}

// Cancel stops the campaign and voids all queued work. In-flight sends are
// allowed to finish so delivery state stays unambiguous.
func (s *CampaignService) Cancel(campaignID int) (*Result, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignSending, model.CampaignPaused, model.CampaignScheduled:
	default:
		return failure("campaign cannot be cancelled from status " + string(campaign.Status)), nil
	}
	ok, err := s.Campaigns.TransitionStatus(campaignID, campaign.Status, model.CampaignCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure("campaign status changed concurrently, cancel aborted"), nil
	}
	cancelled, err := s.Jobs.CancelPending(campaignID)
	if err != nil {
		return nil, err
	}
	s.Log.Info().
		Int("campaign_id", campaignID).
		Int64("jobs_cancelled", cancelled).
		Msg("campaign cancelled")
	return success("campaign cancelled"), nil
}

func (s *CampaignService) QueueStatus(campaignID int) (*QueueStatus, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	counts, err := s.Jobs.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Pending:   counts[model.JobPending],
		Sending:   counts[model.JobSending],
		Sent:      counts[model.JobSent],
		Failed:    counts[model.JobFailed],
		Retrying:  counts[model.JobRetrying],
		Cancelled: counts[model.JobCancelled],
	}, nil
}

// RenderPreview personalizes the campaign for one recipient without queueing
// anything.
func (s *CampaignService) RenderPreview(campaignID, recipientID int) (*RenderedContent, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.Recipients.GetByID(recipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, appErrors.NewValidation("recipient %d not found", recipientID)
	}
	rendered := s.Personalizer.Render(campaign, recipient)
	return &rendered, nil
}

func (s *CampaignService) markFailed(campaign *model.Campaign) {
	from := campaign.Status
	if from != model.CampaignSending {
		// Failures during resolution happen before the sending transition.
		if ok, err := s.Campaigns.TransitionStatus(campaign.ID, from, model.CampaignSending); err != nil || !ok {
			s.Log.Error().Int("campaign_id", campaign.ID).Msg("could not mark campaign failed")
			return
		}
		from = model.CampaignSending
	}
	if _, err := s.Campaigns.TransitionStatus(campaign.ID, from, model.CampaignFailed); err != nil {
		s.Log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("could not mark campaign failed")
	}
}
