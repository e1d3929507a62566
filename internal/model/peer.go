// internal/model/peer.go
package model

import "time"

// Peer unifies every phone and chat-lid alias seen for one contact.
type Peer struct {
	ID                string    `db:"id" json:"id"`
	NormalizedPhone   *string   `db:"normalized_phone" json:"normalized_phone,omitempty"`
	NormalizedChatLid *string   `db:"normalized_chat_lid" json:"normalized_chat_lid,omitempty"`
	RawChatLid        *string   `db:"raw_chat_lid" json:"raw_chat_lid,omitempty"`
	ChatLidHistory    []string  `db:"chat_lid_history" json:"chat_lid_history"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type PeerResolution struct {
	PeerID            string  `json:"peerId"`
	CanonicalPhone    *string `json:"canonicalPhone"`
	NormalizedChatLid *string `json:"normalizedChatLid"`
	RawChatLid        *string `json:"rawChatLid"`
}
