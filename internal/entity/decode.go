package entity

import (
	"encoding/json"
	"fmt"
)

// Wire shapes for push-channel payloads and REST responses. Optional
// fields decode to documented defaults rather than failing the payload;
// only a missing identifier rejects it.

type messageWire struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
	MediaURL       string `json:"mediaUrl"`
	CreatedAt      int64  `json:"createdAt"`
	Edited         bool   `json:"edited"`
	Deleted        bool   `json:"deleted"`
}

type conversationWire struct {
	ID             string `json:"id"`
	PeerID         string `json:"peerId"`
	PeerName       string `json:"peerName"`
	LastMessage    string `json:"lastMessage"`
	UnreadCount    int    `json:"unreadCount"`
	LastActivityAt int64  `json:"lastActivityAt"`
	Muted          bool   `json:"muted"`
}

type postWire struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Text       string `json:"text"`
	MediaURL   string `json:"mediaUrl"`
	LikeCount  int    `json:"likeCount"`
	Liked      bool   `json:"liked"`
	Interested bool   `json:"interested"`
	CreatedAt  int64  `json:"createdAt"`
}

// UserStatus is the payload of a userStatusUpdate push event.
type UserStatus struct {
	UserID   string `json:"userId"`
	IsActive bool   `json:"isActive"`
}

// ReadReceipt is the payload of a messageRead push event.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

// TypingNotice is the payload of typing start/stop push events.
type TypingNotice struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Typing         bool   `json:"typing"`
}

// DecodeMessage decodes one message payload. Entities from the wire are
// always Confirmed.
func DecodeMessage(raw []byte) (*Message, error) {
	var w messageWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("decode message: missing id")
	}
	return &Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		ReceiverID:     w.ReceiverID,
		Text:           w.Text,
		MediaURL:       w.MediaURL,
		CreatedAt:      w.CreatedAt,
		Edited:         w.Edited,
		Deleted:        w.Deleted,
		Lifecycle:      Confirmed,
	}, nil
}

// DecodeConversation decodes one conversation payload.
func DecodeConversation(raw []byte) (*Conversation, error) {
	var w conversationWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("decode conversation: missing id")
	}
	return &Conversation{
		ID:             w.ID,
		PeerID:         w.PeerID,
		PeerName:       w.PeerName,
		LastMessage:    w.LastMessage,
		UnreadCount:    w.UnreadCount,
		LastActivityAt: w.LastActivityAt,
		Muted:          w.Muted,
		Lifecycle:      Confirmed,
	}, nil
}

// DecodePost decodes one feed post payload.
func DecodePost(raw []byte) (*Post, error) {
	var w postWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode post: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("decode post: missing id")
	}
	return &Post{
		ID:         w.ID,
		AuthorID:   w.AuthorID,
		AuthorName: w.AuthorName,
		Text:       w.Text,
		MediaURL:   w.MediaURL,
		LikeCount:  w.LikeCount,
		Liked:      w.Liked,
		Interested: w.Interested,
		CreatedAt:  w.CreatedAt,
		Lifecycle:  Confirmed,
	}, nil
}

// DecodePostBatch decodes a batch-new-posts payload (a JSON array).
// Malformed elements are skipped; the batch fails only if the array
// itself does not parse.
func DecodePostBatch(raw []byte) ([]Entity, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode post batch: %w", err)
	}
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		p, err := DecodePost(item)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
