// internal/model/chat.go
package model

import (
	"encoding/json"
	"time"
)

type Chat struct {
	ID                 string     `db:"id" json:"id"`
	Phone              string     `db:"phone" json:"phone"`
	ChatName           *string    `db:"chat_name" json:"chat_name"`
	IsGroup            bool       `db:"is_group" json:"is_group"`
	SenderPhoto        *string    `db:"sender_photo" json:"sender_photo"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ChatUpsert carries the fields to write; unset fields are left untouched
// on an existing chat.
type ChatUpsert struct {
	Phone              string
	ChatName           Optional[*string]
	IsGroup            Optional[bool]
	SenderPhoto        Optional[*string]
	LastMessageAt      Optional[*time.Time]
	LastMessagePreview Optional[*string]
}

// Apply copies the supplied fields onto c.
func (u ChatUpsert) Apply(c *Chat) {
	if u.ChatName.Set {
		c.ChatName = u.ChatName.Value
	}
	if u.IsGroup.Set {
		c.IsGroup = u.IsGroup.Value
	}
	if u.SenderPhoto.Set {
		c.SenderPhoto = u.SenderPhoto.Value
	}
	if u.LastMessageAt.Set {
		c.LastMessageAt = u.LastMessageAt.Value
	}
	if u.LastMessagePreview.Set {
		c.LastMessagePreview = u.LastMessagePreview.Value
	}
}

type Message struct {
	ID         string          `db:"id" json:"id"`
	ChatID     string          `db:"chat_id" json:"chat_id"`
	MessageID  *string         `db:"message_id" json:"message_id"`
	FromMe     bool            `db:"from_me" json:"from_me"`
	Status     *string         `db:"status" json:"status"`
	Text       *string         `db:"text" json:"text"`
	Moment     *time.Time      `db:"moment" json:"moment"`
	RawPayload json.RawMessage `db:"raw_payload" json:"raw_payload,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
