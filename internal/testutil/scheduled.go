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

// ScheduledRepo enforces the same conditional transitions as the SQL
// repository under a single mutex.
type ScheduledRepo struct {
	mu      sync.Mutex
	records map[string]*model.ScheduledMessage
	nextID  int
	// FailMark makes MarkSent and MarkFailed return this error.
	FailMark error
	// FailClaim makes Claim return this error.
	FailClaim error
}

var _ repository.ScheduledMessageRepositoryInterface = (*ScheduledRepo)(nil)

func NewScheduledRepo() *ScheduledRepo {
	return &ScheduledRepo{records: map[string]*model.ScheduledMessage{}}
}

func (r *ScheduledRepo) Create(_ context.Context, m *model.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if m.ID == "" {
		m.ID = fmt.Sprintf("sched-%d", r.nextID)
	}
	if m.Status == "" {
		m.Status = model.ScheduledPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Microsecond)
	}
	m.UpdatedAt = m.CreatedAt
	cp := *m
	r.records[m.ID] = &cp
	return nil
}

func (r *ScheduledRepo) GetByID(_ context.Context, id string) (*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *ScheduledRepo) ListByChat(_ context.Context, chatID string) ([]*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.ScheduledMessage{}
	for _, m := range r.records {
		if m.ChatID == chatID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledSendAt.After(out[j].ScheduledSendAt) })
	return out, nil
}

func (r *ScheduledRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.ScheduledMessage{}
	for _, m := range r.records {
		if m.Status == model.ScheduledPending && !m.ScheduledSendAt.After(now) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledSendAt.Equal(out[j].ScheduledSendAt) {
			return out[i].ScheduledSendAt.Before(out[j].ScheduledSendAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ScheduledRepo) transition(id string, from []model.ScheduledStatus, apply func(*model.ScheduledMessage)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[id]
	if !ok {
		return false
	}
	for _, s := range from {
		if m.Status == s {
			apply(m)
			return true
		}
	}
	return false
}

func (r *ScheduledRepo) Claim(_ context.Context, id string, now time.Time) (bool, error) {
	if r.FailClaim != nil {
		return false, r.FailClaim
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[id]
	if !ok || m.Status != model.ScheduledPending || m.ScheduledSendAt.After(now) {
		return false, nil
	}
	m.Status = model.ScheduledProcessing
	m.UpdatedAt = now
	return true, nil
}

func (r *ScheduledRepo) MarkSent(_ context.Context, id string, now time.Time) error {
	if r.FailMark != nil {
		return r.FailMark
	}
	r.transition(id, []model.ScheduledStatus{model.ScheduledProcessing}, func(m *model.ScheduledMessage) {
		m.Status = model.ScheduledSent
		m.SentAt = &now
		m.UpdatedAt = now
		m.LastError = nil
	})
	return nil
}

func (r *ScheduledRepo) MarkFailed(_ context.Context, id string, now time.Time, lastError string) error {
	if r.FailMark != nil {
		return r.FailMark
	}
	r.transition(id, []model.ScheduledStatus{model.ScheduledProcessing}, func(m *model.ScheduledMessage) {
		m.Status = model.ScheduledFailed
		m.UpdatedAt = now
		m.LastError = &lastError
	})
	return nil
}

func (r *ScheduledRepo) Cancel(_ context.Context, id string, now time.Time) (bool, error) {
	return r.transition(id, []model.ScheduledStatus{model.ScheduledPending, model.ScheduledProcessing}, func(m *model.ScheduledMessage) {
		m.Status = model.ScheduledCancelled
		m.CancelledAt = &now
		m.UpdatedAt = now
	}), nil
}

// Put stores m as-is, overwriting any record with the same id.
func (r *ScheduledRepo) Put(m *model.ScheduledMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.records[m.ID] = &cp
}
