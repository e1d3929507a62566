package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

type PeerRepositoryInterface interface {
	// FindByIdentifiers returns peers matching any phone or chat lid,
	// oldest first.
	FindByIdentifiers(ctx context.Context, phones, chatLids []string) ([]*model.Peer, error)
	Create(ctx context.Context, p *model.Peer) error
	Update(ctx context.Context, p *model.Peer) error
	Delete(ctx context.Context, id string) error
}

type PeerRepository struct {
	DB *sql.DB
}

var _ PeerRepositoryInterface = (*PeerRepository)(nil)

const peerColumns = `id, normalized_phone, normalized_chat_lid, raw_chat_lid, chat_lid_history, created_at, updated_at`

func (r *PeerRepository) FindByIdentifiers(ctx context.Context, phones, chatLids []string) ([]*model.Peer, error) {
	if len(phones) == 0 && len(chatLids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + peerColumns + `
        FROM whatsapp_chat_peers
        WHERE normalized_phone = ANY($1) OR normalized_chat_lid = ANY($2)
        ORDER BY created_at ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, query, pq.Array(phones), pq.Array(chatLids))
	if err != nil {
		return nil, fmt.Errorf("find peers: %w", err)
	}
	defer rows.Close()

	var peers []*model.Peer
	for rows.Next() {
		p := &model.Peer{}
		var history pq.StringArray
		if err := rows.Scan(&p.ID, &p.NormalizedPhone, &p.NormalizedChatLid, &p.RawChatLid, &history, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ChatLidHistory = []string(history)
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (r *PeerRepository) Create(ctx context.Context, p *model.Peer) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `
        INSERT INTO whatsapp_chat_peers (id, normalized_phone, normalized_chat_lid, raw_chat_lid, chat_lid_history, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        RETURNING created_at, updated_at
    `
	return r.DB.QueryRowContext(ctx, query,
		p.ID, p.NormalizedPhone, p.NormalizedChatLid, p.RawChatLid, historyArray(p.ChatLidHistory), now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PeerRepository) Update(ctx context.Context, p *model.Peer) error {
	query := `
        UPDATE whatsapp_chat_peers
        SET normalized_phone=$1, normalized_chat_lid=$2, raw_chat_lid=$3, chat_lid_history=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at
    `
	err := r.DB.QueryRowContext(ctx, query,
		p.NormalizedPhone, p.NormalizedChatLid, p.RawChatLid, historyArray(p.ChatLidHistory), p.ID,
	).Scan(&p.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update peer %s: not found", p.ID)
	}
	return err
}

func (r *PeerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM whatsapp_chat_peers WHERE id=$1`, id)
	return err
}

func historyArray(history []string) interface{} {
	if len(history) == 0 {
		return nil
	}
	return pq.StringArray(history)
}
