package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexamarkco/kifersaude-sub002/internal/identity"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

// PeerResolver maps gateway payloads onto a single Peer row per contact.
// Concurrent first sightings may insert duplicates; the next resolution
// that sees both folds them into the oldest row.
type PeerResolver struct {
	Peers repository.PeerRepositoryInterface
	Log   *logger.Logger
}

type PeerInput struct {
	Payload identity.Payload
	// Phone and TargetPhone are the caller's best phone guesses; they may
	// still carry lid markers.
	Phone       string
	TargetPhone string
	IsGroup     bool
	FromMe      bool
}

// peerCandidates keeps first-seen order for every identifier set.
type peerCandidates struct {
	phones    []string
	realPhone map[string]bool
	lids      []string
	lidRaw    map[string]string
	raws      []string
	rawSeen   map[string]bool
}

func newPeerCandidates() *peerCandidates {
	return &peerCandidates{
		realPhone: map[string]bool{},
		lidRaw:    map[string]string{},
		rawSeen:   map[string]bool{},
	}
}

func (c *peerCandidates) addPhone(raw string) {
	digits := identity.PhoneDigits(raw)
	if digits == "" {
		return
	}
	isReal := !identity.HasLidMarker(raw)
	if seenReal, seen := c.realPhone[digits]; seen {
		c.realPhone[digits] = seenReal || isReal
		return
	}
	c.phones = append(c.phones, digits)
	c.realPhone[digits] = isReal
}

func (c *peerCandidates) addChatLid(raw string) {
	lid, ok := identity.ChatLid(raw)
	if !ok {
		return
	}
	raw = strings.TrimSpace(raw)
	if _, seen := c.lidRaw[lid]; !seen {
		c.lids = append(c.lids, lid)
		c.lidRaw[lid] = raw
	}
	if !c.rawSeen[raw] {
		c.raws = append(c.raws, raw)
		c.rawSeen[raw] = true
	}
	if _, seen := c.realPhone[lid]; !seen {
		c.phones = append(c.phones, lid)
		c.realPhone[lid] = false
	}
}

func (c *peerCandidates) hasChatLid(key string) bool {
	_, ok := c.lidRaw[key]
	return ok
}

func (c *peerCandidates) firstRealPhone() string {
	for _, p := range c.phones {
		if c.realPhone[p] {
			return p
		}
	}
	return ""
}

func (c *peerCandidates) firstLid() (string, string) {
	if len(c.lids) == 0 {
		return "", ""
	}
	return c.lids[0], c.lidRaw[c.lids[0]]
}

func collectPeerCandidates(in PeerInput) *peerCandidates {
	c := newPeerCandidates()
	c.addPhone(in.Phone)
	c.addPhone(in.TargetPhone)

	for _, id := range identity.ChatIdentifiers(in.Payload) {
		c.addChatLid(id)
	}
	for _, raw := range identity.RawPhoneCandidates(in.Payload) {
		if identity.IsGroup(raw) {
			continue
		}
		key, ok := identity.ChatLid(raw)
		if !ok {
			key = identity.PhoneDigits(raw)
		}
		if key == "" || c.hasChatLid(key) {
			continue
		}
		c.addPhone(raw)
	}
	return c
}

// Resolve finds, creates or merges the Peer for in. It returns nil for
// groups and for payloads without any usable identifier.
func (r *PeerResolver) Resolve(ctx context.Context, in PeerInput) (*model.PeerResolution, error) {
	if in.IsGroup {
		return nil, nil
	}
	c := collectPeerCandidates(in)
	if len(c.phones) == 0 && len(c.lids) == 0 {
		return nil, nil
	}

	// Lid digits double as phone keys and vice versa, so a peer created from
	// either form of the same identity is found by the other.
	peers, err := r.Peers.FindByIdentifiers(ctx, c.phones, unionHistory(c.lids, c.phones))
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}

	var peer *model.Peer
	if len(peers) == 0 {
		peer, err = r.create(ctx, in, c)
		if err != nil || peer == nil {
			return nil, err
		}
	} else {
		before := snapshotPeer(peers[0])
		peer = r.merge(ctx, peers)
		if err := r.backfill(ctx, in, c, peer, before); err != nil {
			return nil, err
		}
	}
	return resolution(peer, c), nil
}

func (r *PeerResolver) create(ctx context.Context, in PeerInput, c *peerCandidates) (*model.Peer, error) {
	lid, raw := c.firstLid()
	phone := ""
	// Outgoing payloads seed the phone only when no lid identifies the peer.
	if !in.FromMe || lid == "" {
		phone = c.firstRealPhone()
	}
	if phone == "" && lid == "" {
		return nil, nil
	}

	peer := &model.Peer{
		NormalizedPhone:   model.StringPtr(phone),
		NormalizedChatLid: model.StringPtr(lid),
		RawChatLid:        model.StringPtr(raw),
		ChatLidHistory:    unionHistory(nil, c.raws),
	}
	if err := r.Peers.Create(ctx, peer); err != nil {
		return nil, fmt.Errorf("create peer: %w", err)
	}
	r.Log.Info("Created WhatsApp peer", "peer_id", peer.ID, "phone", phone, "chat_lid", lid)
	return peer, nil
}

// merge keeps the oldest peer, folds the others into it and deletes them.
func (r *PeerResolver) merge(ctx context.Context, peers []*model.Peer) *model.Peer {
	survivor := peers[0]
	for _, dup := range peers[1:] {
		if phoneUnset(survivor) && dup.NormalizedPhone != nil && !identity.HasLidMarker(*dup.NormalizedPhone) {
			survivor.NormalizedPhone = dup.NormalizedPhone
		}
		if survivor.NormalizedChatLid == nil {
			survivor.NormalizedChatLid = dup.NormalizedChatLid
		}
		if survivor.RawChatLid == nil {
			survivor.RawChatLid = dup.RawChatLid
		}
		history := dup.ChatLidHistory
		if dup.RawChatLid != nil {
			history = append(append([]string(nil), history...), *dup.RawChatLid)
		}
		survivor.ChatLidHistory = unionHistory(survivor.ChatLidHistory, history)

		if err := r.Peers.Delete(ctx, dup.ID); err != nil {
			r.Log.Warn("Could not remove duplicate WhatsApp peer", "peer_id", dup.ID, "survivor_id", survivor.ID, "error", err)
			continue
		}
		r.Log.Info("Merged duplicate WhatsApp peer", "peer_id", dup.ID, "survivor_id", survivor.ID)
	}
	return survivor
}

func phoneUnset(p *model.Peer) bool {
	return p.NormalizedPhone == nil || strings.TrimSpace(*p.NormalizedPhone) == "" || identity.HasLidMarker(*p.NormalizedPhone)
}

// backfill fills missing canonical fields and writes only when something
// changed. A stored phone carrying a lid marker, or copied from the chat
// lid, is replaced by a real phone when one arrives.
func (r *PeerResolver) backfill(ctx context.Context, in PeerInput, c *peerCandidates, peer *model.Peer, before string) error {
	if !in.FromMe {
		if phone := c.firstRealPhone(); phone != "" {
			stored := strings.TrimSpace(model.Deref(peer.NormalizedPhone))
			copiedFromLid := stored != "" && peer.NormalizedChatLid != nil && stored == *peer.NormalizedChatLid
			if (phoneUnset(peer) || copiedFromLid) && stored != phone {
				peer.NormalizedPhone = &phone
			}
		}
	}
	lid, raw := c.firstLid()
	if peer.NormalizedChatLid == nil && lid != "" {
		peer.NormalizedChatLid = &lid
	}
	if peer.RawChatLid == nil && raw != "" {
		peer.RawChatLid = &raw
	}
	peer.ChatLidHistory = unionHistory(peer.ChatLidHistory, c.raws)

	if snapshotPeer(peer) == before {
		return nil
	}
	if err := r.Peers.Update(ctx, peer); err != nil {
		return fmt.Errorf("update peer %s: %w", peer.ID, err)
	}
	return nil
}

func snapshotPeer(p *model.Peer) string {
	return strings.Join([]string{
		model.Deref(p.NormalizedPhone),
		model.Deref(p.NormalizedChatLid),
		model.Deref(p.RawChatLid),
		strings.Join(p.ChatLidHistory, "\x00"),
	}, "\x01")
}

// unionHistory appends unseen, non-empty additions to existing.
func unionHistory(existing []string, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	var out []string
	for _, list := range [][]string{existing, additions} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func resolution(peer *model.Peer, c *peerCandidates) *model.PeerResolution {
	res := &model.PeerResolution{
		PeerID:            peer.ID,
		NormalizedChatLid: peer.NormalizedChatLid,
		RawChatLid:        peer.RawChatLid,
	}
	if !phoneUnset(peer) {
		res.CanonicalPhone = peer.NormalizedPhone
	} else if phone := c.firstRealPhone(); phone != "" {
		res.CanonicalPhone = &phone
	} else if len(c.phones) > 0 {
		phone := c.phones[0]
		res.CanonicalPhone = &phone
	}
	if res.NormalizedChatLid == nil {
		if lid, _ := c.firstLid(); lid != "" {
			res.NormalizedChatLid = &lid
		}
	}
	if res.RawChatLid == nil {
		if _, raw := c.firstLid(); raw != "" {
			res.RawChatLid = &raw
		}
	}
	return res
}
