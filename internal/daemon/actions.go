package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/conn"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/optimistic"
	"github.com/mmarins/livewire/internal/sched"
	"go.uber.org/zap"
)

// typingStopAfter is how long after the last keystroke the stop notice
// goes out.
const typingStopAfter = 4 * time.Second

// Actions is the mutation surface the embedding client drives. Every
// call applies its optimistic local effect through the owning screen
// and runs the remote leg over the matching push channel.
type Actions struct {
	screens *Screens
	conns   *Conns
	logger  *zap.Logger

	clock       sched.Scheduler
	typingMu    sync.Mutex
	typingStops map[string]func()
}

// NewActions wires the mutation surface to the screens and channels.
func NewActions(screens *Screens, conns *Conns, logger *zap.Logger) *Actions {
	return &Actions{
		screens:     screens,
		conns:       conns,
		logger:      logger,
		clock:       sched.Real(),
		typingStops: make(map[string]func()),
	}
}

type ackResult struct {
	IsSuccess bool            `json:"isSuccess"`
	Error     string          `json:"error"`
	Message   json.RawMessage `json:"message"`
}

func decodeAck(raw json.RawMessage) (*ackResult, error) {
	var ack ackResult
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	if !ack.IsSuccess {
		if ack.Error == "" {
			ack.Error = "rejected"
		}
		return nil, fmt.Errorf("server rejected: %s", ack.Error)
	}
	return &ack, nil
}

func (a *Actions) callWithAck(ctx context.Context, m *conn.Manager, event string, payload any) error {
	raw, err := m.EmitWithAck(ctx, event, payload)
	if err != nil {
		return err
	}
	_, err = decodeAck(raw)
	return err
}

// SendMessage posts a local echo immediately and swaps it for the
// server message once the ack arrives.
func (a *Actions) SendMessage(conversationID, receiverID, text string) error {
	temp := &entity.Message{
		ID:             entity.NewLocalID(),
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Text:           text,
		CreatedAt:      time.Now().UnixMilli(),
		Lifecycle:      entity.PendingSend,
	}
	return a.screens.Messages.Send(temp, func(ctx context.Context) (entity.Entity, error) {
		raw, err := a.conns.Chat.EmitWithAck(ctx, "sendMessage", map[string]any{
			"conversationId": conversationID,
			"receiverId":     receiverID,
			"text":           text,
		})
		if err != nil {
			return nil, err
		}
		ack, err := decodeAck(raw)
		if err != nil {
			return nil, err
		}
		return entity.DecodeMessage(ack.Message)
	})
}

// EditMessage rewrites a message's text in place.
func (a *Actions) EditMessage(messageID, text string) error {
	return a.screens.Messages.Edit(messageID, func(e entity.Entity) {
		if m, ok := e.(*entity.Message); ok {
			m.Text = text
			m.Edited = true
		}
	}, func(ctx context.Context) error {
		return a.callWithAck(ctx, a.conns.Chat, "editMessage", map[string]any{
			"messageId": messageID,
			"text":      text,
		})
	})
}

// DeleteMessage tombstones a message; it keeps its place in history.
func (a *Actions) DeleteMessage(messageID string) error {
	return a.screens.Messages.Delete(messageID, func(e entity.Entity) {
		if m, ok := e.(*entity.Message); ok {
			m.Deleted = true
			m.Text = entity.Tombstone
		}
	}, func(ctx context.Context) error {
		return a.callWithAck(ctx, a.conns.Chat, "deleteMessage", map[string]any{
			"messageId": messageID,
		})
	})
}

// ToggleLike flips a post's like flag with a debounced remote call.
func (a *Actions) ToggleLike(postID string) error {
	return a.screens.Feed.Toggle(postID, optimistic.OpLike, func(e entity.Entity) {
		p, ok := e.(*entity.Post)
		if !ok {
			return
		}
		if p.Liked {
			p.Liked = false
			p.LikeCount--
		} else {
			p.Liked = true
			p.LikeCount++
		}
	}, func(ctx context.Context, settled entity.Entity) error {
		p, ok := settled.(*entity.Post)
		if !ok {
			return fmt.Errorf("post %q: unexpected entity %T", postID, settled)
		}
		return a.callWithAck(ctx, a.conns.Feed, "setLike", map[string]any{
			"postId": postID,
			"liked":  p.Liked,
		})
	})
}

// ToggleInterest flips a post's interested flag.
func (a *Actions) ToggleInterest(postID string) error {
	return a.screens.Feed.Toggle(postID, optimistic.OpInterest, func(e entity.Entity) {
		if p, ok := e.(*entity.Post); ok {
			p.Interested = !p.Interested
		}
	}, func(ctx context.Context, settled entity.Entity) error {
		p, ok := settled.(*entity.Post)
		if !ok {
			return fmt.Errorf("post %q: unexpected entity %T", postID, settled)
		}
		return a.callWithAck(ctx, a.conns.Feed, "setInterest", map[string]any{
			"postId":     postID,
			"interested": p.Interested,
		})
	})
}

// ToggleMute flips a conversation's mute flag.
func (a *Actions) ToggleMute(conversationID string) error {
	return a.screens.Conversations.Toggle(conversationID, optimistic.OpMute, func(e entity.Entity) {
		if c, ok := e.(*entity.Conversation); ok {
			c.Muted = !c.Muted
		}
	}, func(ctx context.Context, settled entity.Entity) error {
		c, ok := settled.(*entity.Conversation)
		if !ok {
			return fmt.Errorf("conversation %q: unexpected entity %T", conversationID, settled)
		}
		return a.callWithAck(ctx, a.conns.Chat, "setMuted", map[string]any{
			"conversationId": conversationID,
			"muted":          c.Muted,
		})
	})
}

// MarkAllRead zeroes every unread badge locally and tells the server.
func (a *Actions) MarkAllRead(ctx context.Context) error {
	for _, e := range a.screens.Conversations.Snapshot().Items {
		if c, ok := e.(*entity.Conversation); ok && c.UnreadCount > 0 {
			a.screens.Conversations.ApplyReadReceipt(c.ID, 0)
		}
	}
	return a.callWithAck(ctx, a.conns.Chat, "markAllRead", nil)
}

// OpenConversation retargets the messages screen and clears the
// conversation's unread badge; the server is told in the background.
func (a *Actions) OpenConversation(ctx context.Context, conversationID string) {
	a.screens.OpenConversation(ctx, conversationID)
	a.screens.Conversations.ApplyReadReceipt(conversationID, 0)
	go func() {
		if err := a.callWithAck(ctx, a.conns.Chat, "markRead", map[string]any{
			"conversationId": conversationID,
		}); err != nil {
			a.logger.Warn("mark read failed",
				zap.String("conversation", conversationID), zap.Error(err))
		}
	}()
}

// Typing announces keystroke activity in a conversation. The start
// notice goes out once; the stop notice is sent automatically when
// keystrokes pause. Both legs are fire-and-forget with no local effect.
func (a *Actions) Typing(conversationID string) {
	a.typingMu.Lock()
	defer a.typingMu.Unlock()

	if cancel, ok := a.typingStops[conversationID]; ok {
		cancel()
	} else {
		a.emitTyping(conversationID, true)
	}
	a.typingStops[conversationID] = a.clock.Schedule(typingStopAfter, func() {
		a.typingMu.Lock()
		delete(a.typingStops, conversationID)
		a.typingMu.Unlock()
		a.emitTyping(conversationID, false)
	})
}

func (a *Actions) emitTyping(conversationID string, typing bool) {
	if err := a.conns.Chat.Emit("typing", map[string]any{
		"conversationId": conversationID,
		"typing":         typing,
	}); err != nil {
		a.logger.Debug("typing emit failed", zap.Error(err))
	}
}

// Background pauses both push channels while the app is hidden.
func (a *Actions) Background() {
	a.conns.Chat.Pause()
	a.conns.Feed.Pause()
}

// Foreground resumes delivery and refreshes every screen so changes
// missed while paused are reconciled against the server.
func (a *Actions) Foreground(ctx context.Context) {
	a.conns.Chat.Resume()
	a.conns.Feed.Resume()
	a.screens.Conversations.Refresh(ctx)
	a.screens.Feed.Refresh(ctx)
	if a.screens.activeConversation() != "" {
		a.screens.Messages.Refresh(ctx)
	}
}

// Bind subscribes the actions to app lifecycle events so the embedding
// client can background and foreground the engine over the bus. The
// returned function cancels the subscription.
func (a *Actions) Bind(b *bus.Bus) func() {
	ch, unsub := b.Subscribe("app.", 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				switch evt.Kind {
				case "app.background":
					a.Background()
				case "app.foreground":
					a.Foreground(context.Background())
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		unsub()
		close(done)
	}
}
