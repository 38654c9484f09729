package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// In-memory repository fakes. They reproduce the semantics the services rely
// on: CAS transitions, idempotent enqueue, atomic batch claims, atomic
// rate-limit reservation.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func newFakeCampaignRepo(campaigns ...*model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
	for _, c := range campaigns {
		if c.ID == 0 {
			c.ID = r.nextID
		}
		if c.ID >= r.nextID {
			r.nextID = c.ID + 1
		}
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now()
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status == "" || string(c.Status) == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *fakeCampaignRepo) SetRecipientCount(campaignID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		c.RecipientCount = count
	}
	return nil
}

func (r *fakeCampaignRepo) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, appErrors.NewInvalidTransition(string(from), string(to))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	now := time.Now()
	if to == model.CampaignSending && c.StartedAt == nil {
		c.StartedAt = &now
	}
	if to == model.CampaignCompleted {
		c.CompletedAt = &now
	}
	return true, nil
}

func (r *fakeCampaignRepo) bump(campaignID int, f func(c *model.Campaign)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		f(c)
	}
	return nil
}

func (r *fakeCampaignRepo) IncrementSent(id int) error {
	return r.bump(id, func(c *model.Campaign) { c.EmailsSent++; c.EmailsDelivered++ })
}
func (r *fakeCampaignRepo) IncrementFailed(id int) error {
	return r.bump(id, func(c *model.Campaign) { c.EmailsFailed++ })
}
func (r *fakeCampaignRepo) IncrementBounced(id int) error {
	return r.bump(id, func(c *model.Campaign) { c.EmailsBounced++ })
}
func (r *fakeCampaignRepo) IncrementUnsubscribed(id int) error {
	return r.bump(id, func(c *model.Campaign) { c.Unsubscribes++ })
}
func (r *fakeCampaignRepo) IncrementComplained(id int) error {
	return r.bump(id, func(c *model.Campaign) { c.Complaints++ })
}
func (r *fakeCampaignRepo) RecordOpen(id int, unique bool) error {
	return r.bump(id, func(c *model.Campaign) {
		c.TotalOpens++
		if unique {
			c.UniqueOpens++
		}
	})
}
func (r *fakeCampaignRepo) RecordClick(id int, unique bool) error {
	return r.bump(id, func(c *model.Campaign) {
		c.TotalClicks++
		if unique {
			c.UniqueClicks++
		}
	})
}

func (r *fakeCampaignRepo) status(campaignID int) (model.CampaignStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return "", false
	}
	return c.Status, true
}

func (r *fakeCampaignRepo) sendConfigID(campaignID int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return 0, false
	}
	return c.SendConfigID, true
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      map[int]*model.DeliveryJob
	nextID    int
	campaigns *fakeCampaignRepo
	configs   *fakeSendConfigRepo
	// backoff applied by MarkFailed; zero keeps retries immediately eligible.
	backoff time.Duration
	// enqueueDelay slows Enqueue down to widen materialization windows.
	enqueueDelay time.Duration
}

func newFakeJobRepo(campaigns *fakeCampaignRepo, configs *fakeSendConfigRepo) *fakeJobRepo {
	return &fakeJobRepo{jobs: map[int]*model.DeliveryJob{}, nextID: 1, campaigns: campaigns, configs: configs}
}

func (r *fakeJobRepo) Enqueue(job *model.DeliveryJob) (bool, error) {
	if r.enqueueDelay > 0 {
		time.Sleep(r.enqueueDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.CampaignID == job.CampaignID && existing.RecipientID == job.RecipientID {
			return false, nil
		}
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = model.DefaultMaxAttempts
	}
	job.ID = r.nextID
	r.nextID++
	job.Status = model.JobPending
	job.NotBefore = time.Now()
	job.CreatedAt = time.Now()
	cp := *job
	r.jobs[job.ID] = &cp
	return true, nil
}

func (r *fakeJobRepo) ClaimBatch(limit int) ([]*model.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()

	eligible := []*model.DeliveryJob{}
	for _, j := range r.jobs {
		if j.Status != model.JobPending && j.Status != model.JobRetrying {
			continue
		}
		if j.NotBefore.After(now) {
			continue
		}
		if status, ok := r.campaigns.status(j.CampaignID); !ok || status != model.CampaignSending {
			continue
		}
		if configID, ok := r.campaigns.sendConfigID(j.CampaignID); !ok || !r.configs.canSend(configID) {
			continue
		}
		eligible = append(eligible, j)
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.NotBefore.Equal(b.NotBefore) {
			return a.NotBefore.Before(b.NotBefore)
		}
		return a.ID < b.ID
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*model.DeliveryJob, 0, len(eligible))
	for _, j := range eligible {
		j.Status = model.JobSending
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *fakeJobRepo) MarkSent(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		now := time.Now()
		j.Status = model.JobSent
		j.SentAt = &now
	}
	return nil
}

func (r *fakeJobRepo) MarkFailed(jobID int, sendErr string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("job %d not found", jobID)
	}
	j.Attempts++
	j.LastError = sendErr
	if j.Attempts >= j.MaxAttempts {
		j.Status = model.JobFailed
		return true, nil
	}
	j.Status = model.JobRetrying
	j.NotBefore = time.Now().Add(time.Duration(j.Attempts) * r.backoff)
	return false, nil
}

func (r *fakeJobRepo) ReturnToPending(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == model.JobSending {
		j.Status = model.JobPending
	}
	return nil
}

func (r *fakeJobRepo) MarkCancelled(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == model.JobSending {
		j.Status = model.JobCancelled
	}
	return nil
}

func (r *fakeJobRepo) CancelPending(campaignID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.CampaignID == campaignID && (j.Status == model.JobPending || j.Status == model.JobRetrying) {
			j.Status = model.JobCancelled
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) RequeueStuck() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.Status != model.JobSending {
			continue
		}
		status, ok := r.campaigns.status(j.CampaignID)
		if ok && (status == model.CampaignSending || status == model.CampaignPaused) {
			j.Status = model.JobPending
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) CountByStatus(campaignID int) (map[model.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.JobStatus]int{}
	for _, j := range r.jobs {
		if j.CampaignID == campaignID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *fakeJobRepo) HasOutstanding(campaignID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.CampaignID != campaignID {
			continue
		}
		switch j.Status {
		case model.JobPending, model.JobRetrying, model.JobSending:
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) job(jobID int) model.DeliveryJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[jobID]
}

func (r *fakeJobRepo) statusCounts(campaignID int) map[model.JobStatus]int {
	counts, _ := r.CountByStatus(campaignID)
	return counts
}

var _ repository.DeliveryJobRepositoryInterface = (*fakeJobRepo)(nil)

type fakeRecipientRepo struct {
	mu         sync.Mutex
	recipients map[int]*model.Recipient
	audience   map[int][]model.Recipient
	resolveErr error
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{
		recipients: map[int]*model.Recipient{},
		audience:   map[int][]model.Recipient{},
	}
}

func (r *fakeRecipientRepo) addAudience(campaignID int, recipients ...model.Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range recipients {
		rec := recipients[i]
		r.recipients[rec.ID] = &rec
	}
	r.audience[campaignID] = append(r.audience[campaignID], recipients...)
}

func (r *fakeRecipientRepo) ResolveForCampaign(campaignID int) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return append([]model.Recipient{}, r.audience[campaignID]...), nil
}

func (r *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecipientRepo) MarkUnsubscribed(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recipients[id]; ok {
		rec.Status = model.RecipientUnsubscribed
	}
	return nil
}

var _ repository.RecipientRepositoryInterface = (*fakeRecipientRepo)(nil)

type fakeSendConfigRepo struct {
	mu      sync.Mutex
	configs map[int]*model.SendConfiguration
}

func newFakeSendConfigRepo(configs ...*model.SendConfiguration) *fakeSendConfigRepo {
	r := &fakeSendConfigRepo{configs: map[int]*model.SendConfiguration{}}
	for _, c := range configs {
		r.configs[c.ID] = c
	}
	return r
}

func (r *fakeSendConfigRepo) GetByID(id int) (*model.SendConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil, appErrors.NewSendConfigNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeSendConfigRepo) Reserve(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return false, appErrors.NewSendConfigNotFound(id)
	}
	if !c.Active || !c.Verified || c.DailyUsed >= c.DailyLimit || c.MonthlyUsed >= c.MonthlyLimit {
		return false, nil
	}
	c.DailyUsed++
	c.MonthlyUsed++
	return true, nil
}

func (r *fakeSendConfigRepo) canSend(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return false
	}
	return c.CanSend()
}

var _ repository.SendConfigRepositoryInterface = (*fakeSendConfigRepo)(nil)

type fakeEventStore struct {
	mu     sync.Mutex
	events []*model.DeliveryEvent
}

func (s *fakeEventStore) Insert(ev *model.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) byKind(kind model.EventKind) []*model.DeliveryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.DeliveryEvent{}
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
