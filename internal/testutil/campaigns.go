package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

type CampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	steps     map[string][]*model.CampaignStep
	targets   map[string]*model.CampaignTarget
	// StepLoads counts ListSteps calls.
	StepLoads int
	// FailSteps makes ListSteps fail for the given campaign id.
	FailSteps map[string]error
}

var _ repository.CampaignRepositoryInterface = (*CampaignRepo)(nil)

func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{
		campaigns: map[string]*model.Campaign{},
		steps:     map[string][]*model.CampaignStep{},
		targets:   map[string]*model.CampaignTarget{},
		FailSteps: map[string]error{},
	}
}

func (r *CampaignRepo) AddCampaign(c *model.Campaign, steps ...*model.CampaignStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	for i, s := range steps {
		s.CampaignID = c.ID
		if s.ID == "" {
			s.ID = fmt.Sprintf("%s-step-%d", c.ID, i)
		}
		s.OrderIndex = i
	}
	r.steps[c.ID] = steps
}

func (r *CampaignRepo) SetCampaignStatus(id, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].Status = status
}

func (r *CampaignRepo) AddTarget(t *model.CampaignTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Status == "" {
		t.Status = model.TargetPending
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(r.targets)) * time.Second)
	}
	cp := cloneTarget(t)
	r.targets[t.ID] = cp
}

func cloneTarget(t *model.CampaignTarget) *model.CampaignTarget {
	cp := *t
	if t.ConditionState != nil {
		cs := *t.ConditionState
		cp.ConditionState = &cs
	}
	return &cp
}

// Target returns a snapshot of one target.
func (r *CampaignRepo) Target(id string) *model.CampaignTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return nil
	}
	return cloneTarget(t)
}

func processable(s model.TargetStatus) bool {
	for _, p := range model.ProcessableTargetStatuses {
		if s == p {
			return true
		}
	}
	return false
}

// notDue mirrors the SQL filter that hides duration waits still running.
func notDue(t *model.CampaignTarget, now time.Time) bool {
	if t.Status != model.TargetWaiting || t.WaitUntil == nil {
		return false
	}
	if t.ConditionState != nil && t.ConditionState.Type == model.WaitReply {
		return false
	}
	return t.WaitUntil.After(now)
}

func (r *CampaignRepo) ListProcessableTargets(_ context.Context, now time.Time, limit int) ([]*model.CampaignTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.CampaignTarget{}
	for _, t := range r.targets {
		c, ok := r.campaigns[t.CampaignID]
		if !ok || c.Status != model.CampaignRunning || !processable(t.Status) || notDue(t, now) {
			continue
		}
		cp := cloneTarget(t)
		cp.CampaignName = c.Name
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CampaignRepo) ListSteps(_ context.Context, campaignID string) ([]*model.CampaignStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StepLoads++
	if err := r.FailSteps[campaignID]; err != nil {
		return nil, err
	}
	return append([]*model.CampaignStep(nil), r.steps[campaignID]...), nil
}

func (r *CampaignRepo) ClaimTarget(_ context.Context, id string, expected, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok || !t.UpdatedAt.Equal(expected) || !processable(t.Status) {
		return false, nil
	}
	t.UpdatedAt = now
	return true, nil
}

func (r *CampaignRepo) SaveTargetState(_ context.Context, t *model.CampaignTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.targets[t.ID]
	if !ok {
		return fmt.Errorf("target %s not found", t.ID)
	}
	next := cloneTarget(t)
	if next.CurrentStepIndex < stored.CurrentStepIndex {
		next.CurrentStepIndex = stored.CurrentStepIndex
	}
	if stored.ChatID != nil {
		next.ChatID = stored.ChatID
	}
	r.targets[t.ID] = next
	return nil
}

// Touch changes a target's updated_at as a concurrent writer would.
func (r *CampaignRepo) Touch(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[id].UpdatedAt = at
}
