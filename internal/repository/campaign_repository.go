package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

type CampaignRepositoryInterface interface {
	// ListProcessableTargets returns targets of running campaigns whose
	// status is pending, in_progress or waiting, least recently touched first.
	// Duration waits that are not due at now are left out.
	ListProcessableTargets(ctx context.Context, now time.Time, limit int) ([]*model.CampaignTarget, error)
	ListSteps(ctx context.Context, campaignID string) ([]*model.CampaignStep, error)

	// ClaimTarget bumps updated_at only if it still equals expected.
	ClaimTarget(ctx context.Context, id string, expected, now time.Time) (bool, error)
	SaveTargetState(ctx context.Context, t *model.CampaignTarget) error
}

type CampaignRepository struct {
	DB *sql.DB
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

func processableStatuses() pq.StringArray {
	out := make(pq.StringArray, 0, len(model.ProcessableTargetStatuses))
	for _, s := range model.ProcessableTargetStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *CampaignRepository) ListProcessableTargets(ctx context.Context, now time.Time, limit int) ([]*model.CampaignTarget, error) {
	query := `
        SELECT t.id, t.campaign_id, c.name, t.phone, t.chat_id, t.current_step_index, t.status,
               t.wait_until, t.condition_state, t.metadata, t.last_error, t.last_execution_at,
               t.created_at, t.updated_at
        FROM whatsapp_campaign_targets t
        JOIN whatsapp_campaigns c ON c.id = t.campaign_id
        WHERE c.status = $1 AND t.status = ANY($2)
          AND NOT (
              t.status = $3 AND t.wait_until IS NOT NULL AND t.wait_until > $4
              AND COALESCE(t.condition_state->>'type', $5) <> $6
          )
        ORDER BY t.updated_at ASC, t.id ASC
        LIMIT $7
    `
	rows, err := r.DB.QueryContext(ctx, query, model.CampaignRunning, processableStatuses(),
		model.TargetWaiting, now, string(model.WaitDuration), string(model.WaitReply), limit)
	if err != nil {
		return nil, fmt.Errorf("list campaign targets: %w", err)
	}
	defer rows.Close()

	targets := []*model.CampaignTarget{}
	for rows.Next() {
		t := &model.CampaignTarget{}
		var condition, metadata []byte
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.CampaignName, &t.Phone, &t.ChatID, &t.CurrentStepIndex, &t.Status,
			&t.WaitUntil, &condition, &metadata, &t.LastError, &t.LastExecutionAt,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if len(condition) > 0 && string(condition) != "null" {
			state := &model.ConditionState{}
			if err := json.Unmarshal(condition, state); err == nil && state.Type != "" {
				t.ConditionState = state
			}
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &t.Metadata)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *CampaignRepository) ListSteps(ctx context.Context, campaignID string) ([]*model.CampaignStep, error) {
	query := `
        SELECT id, campaign_id, name, step_type, order_index, config
        FROM whatsapp_campaign_steps
        WHERE campaign_id=$1
        ORDER BY order_index ASC
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign steps: %w", err)
	}
	defer rows.Close()

	steps := []*model.CampaignStep{}
	for rows.Next() {
		s := &model.CampaignStep{}
		var config []byte
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Name, &s.StepType, &s.OrderIndex, &config); err != nil {
			return nil, err
		}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &s.Config); err != nil {
				return nil, fmt.Errorf("decode config of step %s: %w", s.ID, err)
			}
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *CampaignRepository) ClaimTarget(ctx context.Context, id string, expected, now time.Time) (bool, error) {
	query := `
        UPDATE whatsapp_campaign_targets
        SET updated_at=$3
        WHERE id=$1 AND updated_at=$2 AND status = ANY($4)
    `
	res, err := r.DB.ExecContext(ctx, query, id, expected, now, processableStatuses())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveTargetState persists the engine-owned fields. The step index never
// moves backwards and a known chat id is never cleared.
func (r *CampaignRepository) SaveTargetState(ctx context.Context, t *model.CampaignTarget) error {
	var condition interface{}
	if t.ConditionState != nil {
		b, err := json.Marshal(t.ConditionState)
		if err != nil {
			return err
		}
		condition = string(b)
	}
	query := `
        UPDATE whatsapp_campaign_targets
        SET status=$2,
            current_step_index=GREATEST(current_step_index, $3),
            wait_until=$4,
            condition_state=$5,
            last_error=$6,
            last_execution_at=$7,
            chat_id=COALESCE(chat_id, $8),
            updated_at=$9
        WHERE id=$1
    `
	_, err := r.DB.ExecContext(ctx, query,
		t.ID, t.Status, t.CurrentStepIndex, t.WaitUntil, condition, t.LastError, t.LastExecutionAt, t.ChatID, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save campaign target %s: %w", t.ID, err)
	}
	return nil
}
