package repository

import (
	"database/sql"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// DeliveryJobRepositoryInterface is the durable delivery queue. Claim
// exclusivity is the core correctness invariant of the engine: ClaimBatch
// must transition jobs to "sending" in the same statement that selects
// them, so concurrent workers (in-process or on other machines) can never
// hold the same job.
type DeliveryJobRepositoryInterface interface {
	// Enqueue inserts a job unless a job for the (campaign, recipient) pair
	// already exists. Returns true when a row was inserted, which makes
	// campaign resume idempotent.
	Enqueue(job *model.DeliveryJob) (bool, error)
	// ClaimBatch atomically selects up to limit eligible jobs (pending, or
	// retrying past their backoff window) belonging to campaigns that are
	// sending, marks them "sending", and returns them.
	ClaimBatch(limit int) ([]*model.DeliveryJob, error)
	MarkSent(jobID int) error
	// MarkFailed applies the retry policy: attempts+1; below max_attempts
	// the job becomes "retrying" with a linear backoff window, otherwise
	// terminally "failed". Returns whether the failure was terminal.
	MarkFailed(jobID int, sendErr string) (terminal bool, err error)
	// ReturnToPending releases a claimed job without charging an attempt
	// (rate-limit backpressure, pause races).
	ReturnToPending(jobID int) error
	MarkCancelled(jobID int) error
	CancelPending(campaignID int) (int64, error)
	// RequeueStuck returns jobs stranded in "sending" (crashed worker) to
	// "pending".
	RequeueStuck() (int64, error)
	CountByStatus(campaignID int) (map[model.JobStatus]int, error)
	// HasOutstanding reports whether any pending/retrying/sending job
	// remains for the campaign.
	HasOutstanding(campaignID int) (bool, error)
}

type DeliveryJobRepository struct {
	DB *sql.DB
}

const jobColumns = `id, campaign_id, recipient_id, status, priority, subject, html_body,
	COALESCE(text_body, ''), attempts, max_attempts, COALESCE(last_error, ''),
	not_before, created_at, sent_at`

func scanJob(row interface{ Scan(...any) error }) (*model.DeliveryJob, error) {
	var j model.DeliveryJob
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.RecipientID, &j.Status, &j.Priority, &j.Subject, &j.HTMLBody,
		&j.TextBody, &j.Attempts, &j.MaxAttempts, &j.LastError,
		&j.NotBefore, &j.CreatedAt, &j.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *DeliveryJobRepository) Enqueue(job *model.DeliveryJob) (bool, error) {
	if job.MaxAttempts == 0 {
		job.MaxAttempts = model.DefaultMaxAttempts
	}
	query := `
		INSERT INTO delivery_jobs
			(campaign_id, recipient_id, status, priority, subject, html_body, text_body,
			 attempts, max_attempts, not_before, created_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6, 0, $7, NOW(), NOW())
		ON CONFLICT (campaign_id, recipient_id) DO NOTHING
		RETURNING id
	`
	err := r.DB.QueryRow(query,
		job.CampaignID, job.RecipientID, job.Priority,
		job.Subject, job.HTMLBody, nullable(job.TextBody), job.MaxAttempts,
	).Scan(&job.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	job.Status = model.JobPending
	return true, nil
}

// ClaimBatch selects with FOR UPDATE SKIP LOCKED so concurrent claimers never
// block on or double-claim the same rows, then flips them to "sending" in the
// same statement. Campaigns whose send configuration is exhausted or unusable
// are excluded here, so their backlog never crowds other campaigns out of the
// batch.
func (r *DeliveryJobRepository) ClaimBatch(limit int) ([]*model.DeliveryJob, error) {
	query := `
		UPDATE delivery_jobs
		SET status='sending'
		WHERE id IN (
			SELECT d.id
			FROM delivery_jobs d
			JOIN campaigns c ON c.id = d.campaign_id
			JOIN send_configurations sc ON sc.id = c.send_config_id
			WHERE c.status = 'sending'
			  AND (d.status = 'pending' OR d.status = 'retrying')
			  AND d.not_before <= NOW()
			  AND sc.is_active AND sc.is_verified
			  AND sc.daily_used < sc.daily_limit
			  AND sc.monthly_used < sc.monthly_limit
			ORDER BY d.priority ASC, d.not_before ASC, d.id ASC
			FOR UPDATE OF d SKIP LOCKED
			LIMIT $1
		)
		RETURNING ` + jobColumns
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*model.DeliveryJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *DeliveryJobRepository) MarkSent(jobID int) error {
	_, err := r.DB.Exec(`UPDATE delivery_jobs SET status='sent', sent_at=NOW() WHERE id=$1`, jobID)
	return err
}

func (r *DeliveryJobRepository) MarkFailed(jobID int, sendErr string) (bool, error) {
	query := `
		UPDATE delivery_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'retrying' END,
		    not_before = CASE WHEN attempts + 1 >= max_attempts
		                      THEN not_before
		                      ELSE NOW() + (attempts + 1) * INTERVAL '5 minutes' END
		WHERE id = $1
		RETURNING status
	`
	var status model.JobStatus
	if err := r.DB.QueryRow(query, jobID, sendErr).Scan(&status); err != nil {
		return false, err
	}
	return status == model.JobFailed, nil
}

func (r *DeliveryJobRepository) ReturnToPending(jobID int) error {
	_, err := r.DB.Exec(`UPDATE delivery_jobs SET status='pending' WHERE id=$1 AND status='sending'`, jobID)
	return err
}

func (r *DeliveryJobRepository) MarkCancelled(jobID int) error {
	_, err := r.DB.Exec(`UPDATE delivery_jobs SET status='cancelled' WHERE id=$1 AND status='sending'`, jobID)
	return err
}

func (r *DeliveryJobRepository) CancelPending(campaignID int) (int64, error) {
	res, err := r.DB.Exec(`
		UPDATE delivery_jobs SET status='cancelled'
		WHERE campaign_id=$1 AND status IN ('pending', 'retrying')`, campaignID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RequeueStuck recovers jobs claimed by a worker that died before recording
// an outcome. Called once at worker startup, before the pool begins
// claiming.
func (r *DeliveryJobRepository) RequeueStuck() (int64, error) {
	res, err := r.DB.Exec(`
		UPDATE delivery_jobs SET status='pending'
		WHERE status='sending'
		  AND campaign_id IN (SELECT id FROM campaigns WHERE status IN ('sending', 'paused'))`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *DeliveryJobRepository) CountByStatus(campaignID int) (map[model.JobStatus]int, error) {
	rows, err := r.DB.Query(`
		SELECT status, COUNT(*) FROM delivery_jobs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.JobStatus]int{
		model.JobPending:   0,
		model.JobSending:   0,
		model.JobSent:      0,
		model.JobFailed:    0,
		model.JobRetrying:  0,
		model.JobCancelled: 0,
	}
	for rows.Next() {
		var status model.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *DeliveryJobRepository) HasOutstanding(campaignID int) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM delivery_jobs
			WHERE campaign_id=$1 AND status IN ('pending', 'retrying', 'sending')
		)`, campaignID).Scan(&exists)
	return exists, err
}

var _ DeliveryJobRepositoryInterface = (*DeliveryJobRepository)(nil)
