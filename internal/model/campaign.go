// internal/model/campaign.go
package model

import "time"

const CampaignRunning = "running"

type StepType string

const (
	StepMessage       StepType = "message"
	StepAttachment    StepType = "attachment"
	StepWaitCondition StepType = "wait_condition"
)

type TargetStatus string

const (
	TargetPending    TargetStatus = "pending"
	TargetInProgress TargetStatus = "in_progress"
	TargetWaiting    TargetStatus = "waiting"
	TargetCompleted  TargetStatus = "completed"
	TargetFailed     TargetStatus = "failed"
)

// ProcessableTargetStatuses are the statuses the step engine picks up.
var ProcessableTargetStatuses = []TargetStatus{TargetPending, TargetInProgress, TargetWaiting}

type WaitStrategy string

const (
	WaitDuration WaitStrategy = "duration"
	WaitReply    WaitStrategy = "reply"
)

type Campaign struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type MessageStepConfig struct {
	Body string `json:"body"`
}

type AttachmentStepConfig struct {
	AttachmentType string `json:"attachmentType"`
	Payload        string `json:"payload"`
	Caption        string `json:"caption,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
}

type WaitStepConfig struct {
	Strategy        WaitStrategy `json:"strategy"`
	DurationSeconds *int         `json:"durationSeconds,omitempty"`
	TimeoutSeconds  *int         `json:"timeoutSeconds,omitempty"`
}

// StepConfig is stored as jsonb on the step row.
type StepConfig struct {
	Message    *MessageStepConfig    `json:"message,omitempty"`
	Attachment *AttachmentStepConfig `json:"attachment,omitempty"`
	Wait       *WaitStepConfig       `json:"wait,omitempty"`
}

type CampaignStep struct {
	ID         string     `db:"id" json:"id"`
	CampaignID string     `db:"campaign_id" json:"campaign_id"`
	Name       string     `db:"name" json:"name"`
	StepType   StepType   `db:"step_type" json:"step_type"`
	OrderIndex int        `db:"order_index" json:"order_index"`
	Config     StepConfig `db:"config" json:"config"`
}

// ConditionState records an in-flight wait on a target.
type ConditionState struct {
	Type           WaitStrategy `json:"type"`
	StartedAt      time.Time    `json:"startedAt"`
	TimeoutSeconds *int         `json:"timeoutSeconds,omitempty"`
}

type CampaignTarget struct {
	ID               string          `db:"id" json:"id"`
	CampaignID       string          `db:"campaign_id" json:"campaign_id"`
	CampaignName     string          `db:"campaign_name" json:"campaign_name"`
	Phone            string          `db:"phone" json:"phone"`
	ChatID           *string         `db:"chat_id" json:"chat_id"`
	CurrentStepIndex int             `db:"current_step_index" json:"current_step_index"`
	Status           TargetStatus    `db:"status" json:"status"`
	WaitUntil        *time.Time      `db:"wait_until" json:"wait_until"`
	ConditionState   *ConditionState `db:"condition_state" json:"condition_state"`
	Metadata         map[string]any  `db:"metadata" json:"metadata"`
	LastError        *string         `db:"last_error" json:"last_error"`
	LastExecutionAt  *time.Time      `db:"last_execution_at" json:"last_execution_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
