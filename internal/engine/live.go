package engine

import (
	"time"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/optimistic"
)

// ApplyLive merges push-channel entities into the collection. Each item
// is classified as a pure insert or an update of a known ID; both kinds
// are announced individually (for notification badges) before the
// consolidated snapshot goes out.
func (s *Screen) ApplyLive(items []entity.Entity) {
	s.post(func() {
		changes := s.col.ApplyLive(items)
		for _, ch := range changes {
			kind := "screen." + s.name + ".item_new"
			if ch.Updated {
				kind = "screen." + s.name + ".item_updated"
			}
			s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: ch.Entity.Clone()})
		}
		s.saveToCache(items)
		s.publish()
	})
}

// Send applies an optimistic send: temp appears at the newest edge
// immediately, remote runs off the owning goroutine.
func (s *Screen) Send(temp entity.Entity, remote optimistic.RemoteCreate) error {
	return s.call(func() error { return s.coord.Send(temp, remote) })
}

// Edit applies an optimistic in-place edit.
func (s *Screen) Edit(id string, apply func(entity.Entity), remote optimistic.RemoteCall) error {
	return s.call(func() error { return s.coord.Edit(id, apply, remote) })
}

// Delete applies an optimistic tombstone.
func (s *Screen) Delete(id string, apply func(entity.Entity), remote optimistic.RemoteCall) error {
	return s.call(func() error { return s.coord.Delete(id, apply, remote) })
}

// Toggle applies an instant local flip with a debounced remote call.
func (s *Screen) Toggle(id string, op optimistic.Op, apply func(entity.Entity), remote optimistic.RemoteToggle) error {
	return s.call(func() error { return s.coord.Toggle(id, op, apply, remote) })
}

// SetPresence records a userStatusUpdate event. Conversations with the
// user as peer mirror the flag in place; position never changes.
func (s *Screen) SetPresence(userID string, active bool) {
	s.post(func() {
		s.presence[userID] = active
		for _, e := range s.col.Items() {
			if c, ok := e.(*entity.Conversation); ok && c.PeerID == userID {
				c.PeerActive = active
			}
		}
		s.publish()
	})
}

// SetTyping records a typing start/stop event for a conversation.
func (s *Screen) SetTyping(conversationID string, typing bool) {
	s.post(func() {
		if typing {
			s.typing[conversationID] = true
		} else {
			delete(s.typing, conversationID)
		}
		s.publish()
	})
}

// ApplyReadReceipt updates a conversation's unread count in place; the
// entity keeps its position.
func (s *Screen) ApplyReadReceipt(conversationID string, unread int) {
	s.post(func() {
		e := s.col.Get(conversationID)
		conv, ok := e.(*entity.Conversation)
		if !ok {
			return
		}
		conv.UnreadCount = unread
		s.publish()
	})
}
