// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/gateway"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

const defaultWaitSeconds = 60

const (
	ResultSent    = "sent"
	ResultWaiting = "waiting"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// CampaignService advances campaign targets through their steps, one
// bounded batch per call.
type CampaignService struct {
	Repo     repository.CampaignRepositoryInterface
	Messages repository.MessageRepositoryInterface
	Sender   MessageSender
	Events   queue.Publisher
	Log      *logger.Logger
	Location *time.Location
}

type CampaignResult struct {
	TargetID   string `json:"targetId"`
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// stepCache loads each campaign's steps at most once per batch.
type stepCache struct {
	repo  repository.CampaignRepositoryInterface
	steps map[string][]*model.CampaignStep
	errs  map[string]error
}

func (c *stepCache) get(ctx context.Context, campaignID string) ([]*model.CampaignStep, error) {
	if steps, ok := c.steps[campaignID]; ok {
		return steps, nil
	}
	if err, ok := c.errs[campaignID]; ok {
		return nil, err
	}
	steps, err := c.repo.ListSteps(ctx, campaignID)
	if err != nil {
		c.errs[campaignID] = err
		return nil, err
	}
	c.steps[campaignID] = steps
	return steps, nil
}

// ProcessPendingTargets runs one batch. Targets are processed in order and
// a failure on one target never stops the rest.
func (s *CampaignService) ProcessPendingTargets(ctx context.Context, now time.Time, limit int) ([]CampaignResult, error) {
	if limit <= 0 {
		limit = 25
	}
	targets, err := s.Repo.ListProcessableTargets(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list campaign targets: %w", err)
	}

	cache := &stepCache{repo: s.Repo, steps: map[string][]*model.CampaignStep{}, errs: map[string]error{}}
	results := make([]CampaignResult, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.processTarget(ctx, cache, t, now)
		results = append(results, res)
		if res.Status != ResultSkipped && s.Events != nil {
			if err := s.Events.Publish(ctx, queue.TopicCampaignTarget, res); err != nil {
				s.Log.Warn("Failed to publish campaign event", "target_id", t.ID, "error", err)
			}
		}
	}
	return results, nil
}

func (s *CampaignService) processTarget(ctx context.Context, cache *stepCache, t *model.CampaignTarget, now time.Time) CampaignResult {
	log := s.Log.With("target_id", t.ID, "campaign_id", t.CampaignID)
	result := CampaignResult{TargetID: t.ID, CampaignID: t.CampaignID}

	steps, stepsErr := cache.get(ctx, t.CampaignID)
	if stepsErr == nil && !durationWaitDue(t, now) {
		result.Status = ResultWaiting
		return result
	}

	claimed, err := s.Repo.ClaimTarget(ctx, t.ID, t.UpdatedAt, now)
	if err != nil {
		log.Error("Failed to claim campaign target", "error", err)
		result.Status = ResultFailed
		result.Error = err.Error()
		return result
	}
	if !claimed {
		log.Debug("Campaign target changed since it was listed")
		result.Status = ResultSkipped
		return result
	}
	t.UpdatedAt = now

	status := ResultFailed
	if stepsErr == nil {
		status, err = s.run(ctx, t, steps, now)
	} else {
		err = fmt.Errorf("load steps: %w", stepsErr)
	}
	if err != nil {
		log.Warn("Campaign step failed", "step_index", t.CurrentStepIndex, "error", err)
		result.Status = ResultFailed
		result.Error = err.Error()
		s.fail(ctx, t, now, err)
		return result
	}

	if err := s.Repo.SaveTargetState(ctx, t); err != nil {
		log.Error("Failed to save campaign target", "error", err)
		result.Status = ResultFailed
		result.Error = err.Error()
		return result
	}
	result.Status = status
	return result
}

// durationWaitDue is false only for a target parked on a duration wait
// whose wait_until is still in the future. Reply waits are checked on
// every tick.
func durationWaitDue(t *model.CampaignTarget, now time.Time) bool {
	if t.Status != model.TargetWaiting || t.WaitUntil == nil {
		return true
	}
	if t.ConditionState != nil && t.ConditionState.Type == model.WaitReply {
		return true
	}
	return !now.Before(*t.WaitUntil)
}

// run executes steps from the current index until the target parks on a
// wait, finishes, or completes one send. A send that lands on a wait step
// enters that wait in the same tick.
func (s *CampaignService) run(ctx context.Context, t *model.CampaignTarget, steps []*model.CampaignStep, now time.Time) (string, error) {
	sent := false
	for {
		if t.CurrentStepIndex >= len(steps) {
			s.advanceTo(t, len(steps), len(steps), now)
			return ResultSent, nil
		}
		step := steps[t.CurrentStepIndex]

		switch step.StepType {
		case model.StepMessage, model.StepAttachment:
			if sent {
				return ResultSent, nil
			}
			if err := s.send(ctx, t, step, now); err != nil {
				return "", err
			}
			sent = true
			s.advanceTo(t, t.CurrentStepIndex+1, len(steps), now)
			if t.CurrentStepIndex >= len(steps) || steps[t.CurrentStepIndex].StepType != model.StepWaitCondition {
				return ResultSent, nil
			}

		case model.StepWaitCondition:
			done, err := s.evaluateWait(ctx, t, step, now)
			if err != nil {
				return "", err
			}
			if !done {
				t.Status = model.TargetWaiting
				t.LastExecutionAt = &now
				t.LastError = nil
				if sent {
					return ResultSent, nil
				}
				return ResultWaiting, nil
			}
			s.advanceTo(t, t.CurrentStepIndex+1, len(steps), now)

		default:
			return "", fmt.Errorf("unsupported step type %q", step.StepType)
		}
	}
}

func (s *CampaignService) send(ctx context.Context, t *model.CampaignTarget, step *model.CampaignStep, now time.Time) error {
	vars := TemplateVars(t, now, s.Location)

	var (
		res *SendResult
		err error
	)
	switch step.StepType {
	case model.StepMessage:
		if step.Config.Message == nil || strings.TrimSpace(step.Config.Message.Body) == "" {
			return fmt.Errorf("message step %s has no body", step.ID)
		}
		res, err = s.Sender.SendText(ctx, t.Phone, RenderTemplate(step.Config.Message.Body, vars))
	case model.StepAttachment:
		cfg := step.Config.Attachment
		if cfg == nil {
			return fmt.Errorf("attachment step %s has no attachment", step.ID)
		}
		res, err = s.Sender.SendMedia(ctx, gateway.MediaRequest{
			Phone:    t.Phone,
			Kind:     gateway.MediaKind(strings.ToLower(strings.TrimSpace(cfg.AttachmentType))),
			Payload:  cfg.Payload,
			Caption:  RenderTemplate(cfg.Caption, vars),
			FileName: cfg.FileName,
			MimeType: cfg.MimeType,
		})
	}
	if err != nil {
		return err
	}
	if t.ChatID == nil && res != nil && res.Chat != nil {
		id := res.Chat.ID
		t.ChatID = &id
	}
	return nil
}

func waitConfig(step *model.CampaignStep) model.WaitStepConfig {
	if step.Config.Wait == nil {
		d := defaultWaitSeconds
		return model.WaitStepConfig{Strategy: model.WaitDuration, DurationSeconds: &d}
	}
	cfg := *step.Config.Wait
	if cfg.Strategy == "" {
		cfg.Strategy = model.WaitDuration
	}
	if cfg.Strategy == model.WaitDuration && cfg.DurationSeconds == nil {
		d := defaultWaitSeconds
		cfg.DurationSeconds = &d
	}
	return cfg
}

// evaluateWait enters the wait on first sight and reports whether it is
// satisfied.
func (s *CampaignService) evaluateWait(ctx context.Context, t *model.CampaignTarget, step *model.CampaignStep, now time.Time) (bool, error) {
	cfg := waitConfig(step)

	if t.ConditionState == nil || t.ConditionState.Type != cfg.Strategy {
		switch cfg.Strategy {
		case model.WaitDuration:
			if *cfg.DurationSeconds <= 0 {
				return true, nil
			}
			until := now.Add(time.Duration(*cfg.DurationSeconds) * time.Second)
			t.WaitUntil = &until
			t.ConditionState = &model.ConditionState{Type: model.WaitDuration, StartedAt: now}
			return false, nil
		case model.WaitReply:
			if t.ChatID == nil {
				s.Log.Warn("Reply wait without chat; advancing", "target_id", t.ID)
				return true, nil
			}
			t.WaitUntil = nil
			if cfg.TimeoutSeconds != nil && *cfg.TimeoutSeconds > 0 {
				until := now.Add(time.Duration(*cfg.TimeoutSeconds) * time.Second)
				t.WaitUntil = &until
			}
			t.ConditionState = &model.ConditionState{Type: model.WaitReply, StartedAt: now, TimeoutSeconds: cfg.TimeoutSeconds}
			return false, nil
		default:
			return false, fmt.Errorf("unsupported wait strategy %q", cfg.Strategy)
		}
	}

	elapsed := t.WaitUntil == nil || !now.Before(*t.WaitUntil)
	if cfg.Strategy == model.WaitDuration {
		return elapsed, nil
	}

	if t.ChatID == nil {
		return true, nil
	}
	replied, err := s.Messages.HasInboundSince(ctx, *t.ChatID, t.ConditionState.StartedAt)
	if err != nil {
		return false, fmt.Errorf("check reply: %w", err)
	}
	if replied {
		return true, nil
	}
	return t.WaitUntil != nil && elapsed, nil
}

func (s *CampaignService) advanceTo(t *model.CampaignTarget, index, total int, now time.Time) {
	t.CurrentStepIndex = index
	t.WaitUntil = nil
	t.ConditionState = nil
	t.LastError = nil
	t.LastExecutionAt = &now
	if index >= total {
		t.Status = model.TargetCompleted
	} else {
		t.Status = model.TargetInProgress
	}
}

func (s *CampaignService) fail(ctx context.Context, t *model.CampaignTarget, now time.Time, cause error) {
	msg := cause.Error()
	t.Status = model.TargetFailed
	t.LastError = &msg
	t.WaitUntil = nil
	t.ConditionState = nil
	t.LastExecutionAt = &now
	if err := s.Repo.SaveTargetState(ctx, t); err != nil {
		s.Log.Error("Failed to record campaign failure", "target_id", t.ID, "error", err)
	}
}
