// internal/model/scheduled_message.go
package model

import "time"

type ScheduledStatus string

const (
	ScheduledPending    ScheduledStatus = "pending"
	ScheduledProcessing ScheduledStatus = "processing"
	ScheduledSent       ScheduledStatus = "sent"
	ScheduledFailed     ScheduledStatus = "failed"
	ScheduledCancelled  ScheduledStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ScheduledStatus) Terminal() bool {
	return s == ScheduledSent || s == ScheduledFailed || s == ScheduledCancelled
}

type ScheduledMessage struct {
	ID              string          `db:"id" json:"id"`
	ChatID          string          `db:"chat_id" json:"chat_id"`
	Phone           string          `db:"phone" json:"phone"`
	Message         string          `db:"message" json:"message"`
	ScheduledSendAt time.Time       `db:"scheduled_send_at" json:"scheduled_send_at"`
	Status          ScheduledStatus `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	SentAt          *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CancelledAt     *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	LastError       *string         `db:"last_error" json:"last_error,omitempty"`
}
