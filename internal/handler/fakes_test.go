package handler

import (
	"fmt"
	"sync"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// Minimal in-memory stubs for exercising the HTTP layer.

type stubCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int

	totalOpens, uniqueOpens   int
	totalClicks, uniqueClicks int
	unsubscribes              int
}

func newStubCampaignRepo(campaigns ...*model.Campaign) *stubCampaignRepo {
	r := &stubCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
	for _, c := range campaigns {
		if c.ID >= r.nextID {
			r.nextID = c.ID + 1
		}
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *stubCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID
	r.nextID++
	r.campaigns[c.ID] = c
	return nil
}

func (r *stubCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *stubCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *stubCampaignRepo) SetRecipientCount(campaignID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		c.RecipientCount = count
	}
	return nil
}

func (r *stubCampaignRepo) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
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
	return true, nil
}

func (r *stubCampaignRepo) IncrementSent(int) error       { return nil }
func (r *stubCampaignRepo) IncrementFailed(int) error     { return nil }
func (r *stubCampaignRepo) IncrementBounced(int) error    { return nil }
func (r *stubCampaignRepo) IncrementComplained(int) error { return nil }

func (r *stubCampaignRepo) IncrementUnsubscribed(int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribes++
	return nil
}

func (r *stubCampaignRepo) RecordOpen(_ int, unique bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalOpens++
	if unique {
		r.uniqueOpens++
	}
	return nil
}

func (r *stubCampaignRepo) RecordClick(_ int, unique bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalClicks++
	if unique {
		r.uniqueClicks++
	}
	return nil
}

var _ repository.CampaignRepositoryInterface = (*stubCampaignRepo)(nil)

type stubJobRepo struct {
	mu   sync.Mutex
	jobs []*model.DeliveryJob
}

func (r *stubJobRepo) Enqueue(job *model.DeliveryJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.CampaignID == job.CampaignID && j.RecipientID == job.RecipientID {
			return false, nil
		}
	}
	job.ID = len(r.jobs) + 1
	job.Status = model.JobPending
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return true, nil
}

func (r *stubJobRepo) ClaimBatch(int) ([]*model.DeliveryJob, error) { return nil, nil }
func (r *stubJobRepo) MarkSent(int) error                           { return nil }
func (r *stubJobRepo) MarkFailed(int, string) (bool, error)         { return false, nil }
func (r *stubJobRepo) ReturnToPending(int) error                    { return nil }
func (r *stubJobRepo) MarkCancelled(int) error                      { return nil }
func (r *stubJobRepo) RequeueStuck() (int64, error)                 { return 0, nil }

func (r *stubJobRepo) CancelPending(campaignID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.CampaignID == campaignID && j.Status == model.JobPending {
			j.Status = model.JobCancelled
			n++
		}
	}
	return n, nil
}

func (r *stubJobRepo) CountByStatus(campaignID int) (map[model.JobStatus]int, error) {
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

func (r *stubJobRepo) HasOutstanding(campaignID int) (bool, error) {
	counts, _ := r.CountByStatus(campaignID)
	return counts[model.JobPending]+counts[model.JobRetrying]+counts[model.JobSending] > 0, nil
}

var _ repository.DeliveryJobRepositoryInterface = (*stubJobRepo)(nil)

type stubRecipientRepo struct {
	mu           sync.Mutex
	audience     []model.Recipient
	unsubscribed []int
}

func (r *stubRecipientRepo) ResolveForCampaign(int) ([]model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Recipient{}, r.audience...), nil
}

func (r *stubRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.audience {
		if r.audience[i].ID == id {
			cp := r.audience[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *stubRecipientRepo) MarkUnsubscribed(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed = append(r.unsubscribed, id)
	return nil
}

var _ repository.RecipientRepositoryInterface = (*stubRecipientRepo)(nil)

type stubSendConfigRepo struct {
	config *model.SendConfiguration
}

func (r *stubSendConfigRepo) GetByID(id int) (*model.SendConfiguration, error) {
	if r.config == nil || r.config.ID != id {
		return nil, appErrors.NewSendConfigNotFound(id)
	}
	cp := *r.config
	return &cp, nil
}

func (r *stubSendConfigRepo) Reserve(id int) (bool, error) {
	if r.config == nil || r.config.ID != id {
		return false, appErrors.NewSendConfigNotFound(id)
	}
	if !r.config.CanSend() {
		return false, nil
	}
	r.config.DailyUsed++
	r.config.MonthlyUsed++
	return true, nil
}

var _ repository.SendConfigRepositoryInterface = (*stubSendConfigRepo)(nil)

type stubEventRepo struct {
	mu      sync.Mutex
	events  []*model.DeliveryEvent
	claimed map[string]struct{}
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{claimed: map[string]struct{}{}}
}

func (r *stubEventRepo) Insert(ev *model.DeliveryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *stubEventRepo) MarkEngagementUnique(campaignID, recipientID int, kind model.EventKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s:%d:%d", kind, campaignID, recipientID)
	if _, seen := r.claimed[key]; seen {
		return false, nil
	}
	r.claimed[key] = struct{}{}
	return true, nil
}

func (r *stubEventRepo) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.EventKind{}
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

var _ repository.EventRepositoryInterface = (*stubEventRepo)(nil)
