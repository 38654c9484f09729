// internal/service/dispatcher.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailleopard-backend/internal/events"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

const (
	defaultWorkers      = 4
	defaultBatchSize    = 10
	defaultPollInterval = time.Second
	defaultSendDelay    = 100 * time.Millisecond
	defaultSendTimeout  = 30 * time.Second
)

// Dispatcher is the bounded worker pool that drains the delivery queue.
// Each worker claims a small batch of eligible jobs, reserves rate-limit
// capacity, sends, and records the outcome. Per-job failures are fully
// contained: a broken send never takes a worker down.
type Dispatcher struct {
	Jobs        repository.DeliveryJobRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Recipients  repository.RecipientRepositoryInterface
	SendConfigs repository.SendConfigRepositoryInterface
	Sender      mailer.Sender
	Recorder    *events.Recorder
	Log         zerolog.Logger

	Workers      int
	BatchSize    int
	PollInterval time.Duration
	SendDelay    time.Duration
	SendTimeout  time.Duration
}

// Run recovers any jobs stranded by a previous crash, then supervises the
// worker pool until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.applyDefaults()

	if requeued, err := d.Jobs.RequeueStuck(); err != nil {
		d.Log.Error().Err(err).Msg("failed to requeue stuck jobs")
	} else if requeued > 0 {
		d.Log.Info().Int64("jobs", requeued).Msg("requeued jobs stranded in sending")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return d.workerLoop(ctx, workerID)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) applyDefaults() {
	if d.Workers <= 0 {
		d.Workers = defaultWorkers
	}
	if d.BatchSize <= 0 {
		d.BatchSize = defaultBatchSize
	}
	if d.PollInterval <= 0 {
		d.PollInterval = defaultPollInterval
	}
	if d.SendDelay <= 0 {
		d.SendDelay = defaultSendDelay
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = defaultSendTimeout
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) error {
	log := d.Log.With().Int("worker", workerID).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		jobs, err := d.Jobs.ClaimBatch(d.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("claim batch failed")
			if !sleepCtx(ctx, d.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if len(jobs) == 0 {
			if !sleepCtx(ctx, d.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		touched := make(map[int]struct{}, len(jobs))
		for _, job := range jobs {
			d.processJob(ctx, log, job)
			touched[job.CampaignID] = struct{}{}
			if !sleepCtx(ctx, d.SendDelay) {
				// Shutting down mid-batch: remaining claimed jobs go back
				// for the next worker generation.
				break
			}
		}
		for campaignID := range touched {
			d.maybeComplete(log, campaignID)
		}
	}
}

// processJob handles one claimed job end to end. All failure paths record an
// outcome for the job; none of them return an error to the loop.
func (d *Dispatcher) processJob(ctx context.Context, log zerolog.Logger, job *model.DeliveryJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("job_id", job.ID).Msg("job processing panicked")
			if err := d.Jobs.ReturnToPending(job.ID); err != nil {
				log.Error().Err(err).Int("job_id", job.ID).Msg("failed to release job after panic")
			}
		}
	}()

	campaign, err := d.Campaigns.GetByID(job.CampaignID)
	if err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("campaign lookup failed, releasing job")
		d.release(log, job)
		return
	}

	// Claiming targets sending campaigns, but pause/cancel can race the
	// claim.
	switch campaign.Status {
	case model.CampaignSending:
	case model.CampaignCancelled:
		if err := d.Jobs.MarkCancelled(job.ID); err != nil {
			log.Error().Err(err).Int("job_id", job.ID).Msg("failed to cancel claimed job")
		}
		return
	default:
		d.release(log, job)
		return
	}

	cfg, err := d.SendConfigs.GetByID(campaign.SendConfigID)
	if err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("send config lookup failed, releasing job")
		d.release(log, job)
		return
	}

	// Gate, then reserve. Exhaustion is backpressure, not an error: the job
	// goes back to pending with no attempt charged and waits for capacity.
	if !cfg.CanSend() {
		d.release(log, job)
		return
	}
	reserved, err := d.SendConfigs.Reserve(cfg.ID)
	if err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("rate limit reservation failed, releasing job")
		d.release(log, job)
		return
	}
	if !reserved {
		d.release(log, job)
		return
	}

	recipient, err := d.Recipients.GetByID(job.RecipientID)
	if err != nil || recipient == nil {
		d.recordFailure(log, campaign, job, "recipient no longer available")
		return
	}

	fromEmail := campaign.FromEmail
	if fromEmail == "" {
		fromEmail = cfg.FromEmail
	}
	fromName := campaign.FromName
	if fromName == "" {
		fromName = cfg.FromName
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	err = d.Sender.Send(sendCtx, cfg, mailer.Message{
		To:          recipient.Email,
		Subject:     job.Subject,
		HTML:        job.HTMLBody,
		Text:        job.TextBody,
		FromAddress: fromEmail,
		FromName:    fromName,
		ReplyTo:     campaign.ReplyTo,
	})
	cancel()

	if err != nil {
		d.recordFailure(log, campaign, job, err.Error())
		return
	}

	if err := d.Jobs.MarkSent(job.ID); err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("failed to mark job sent")
		return
	}
	if err := d.Campaigns.IncrementSent(campaign.ID); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to increment sent counter")
	}
	if err := d.Recorder.Record(campaign.ID, job.RecipientID, model.EventSent, nil); err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("failed to record sent event")
	}
	log.Debug().Int("job_id", job.ID).Int("campaign_id", campaign.ID).Msg("job sent")
}

func (d *Dispatcher) recordFailure(log zerolog.Logger, campaign *model.Campaign, job *model.DeliveryJob, reason string) {
	terminal, err := d.Jobs.MarkFailed(job.ID, reason)
	if err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("failed to mark job failed")
		return
	}
	if !terminal {
		log.Warn().Int("job_id", job.ID).Str("error", reason).Msg("send failed, job will retry")
		return
	}
	if err := d.Campaigns.IncrementFailed(campaign.ID); err != nil {
		log.Error().Err(err).Int("campaign_id", campaign.ID).Msg("failed to increment failed counter")
	}
	if err := d.Recorder.Record(campaign.ID, job.RecipientID, model.EventFailed,
		map[string]string{"error": reason}); err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("failed to record failed event")
	}
	log.Warn().Int("job_id", job.ID).Str("error", reason).Msg("job terminally failed")
}

func (d *Dispatcher) release(log zerolog.Logger, job *model.DeliveryJob) {
	if err := d.Jobs.ReturnToPending(job.ID); err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("failed to return job to pending")
	}
}

// maybeComplete transitions a campaign to completed once nothing remains
// pending, retrying, or sending. The CAS transition guarantees exactly one
// worker wins even when several observe the drained queue simultaneously.
func (d *Dispatcher) maybeComplete(log zerolog.Logger, campaignID int) {
	outstanding, err := d.Jobs.HasOutstanding(campaignID)
	if err != nil {
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("completion check failed")
		return
	}
	if outstanding {
		return
	}
	done, err := d.Campaigns.TransitionStatus(campaignID, model.CampaignSending, model.CampaignCompleted)
	if err != nil {
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("completion transition failed")
		return
	}
	if done {
		log.Info().Int("campaign_id", campaignID).Msg("campaign completed")
	}
}

// sleepCtx sleeps for d unless the context ends first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
