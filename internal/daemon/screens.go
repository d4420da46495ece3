package daemon

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/collection"
	"github.com/mmarins/livewire/internal/config"
	"github.com/mmarins/livewire/internal/dispatch"
	"github.com/mmarins/livewire/internal/engine"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/history"
	"github.com/mmarins/livewire/internal/rest"
	"github.com/mmarins/livewire/internal/store"
	"go.uber.org/zap"
)

// Screens groups the live collections the daemon serves and their
// push-event subscriptions. Conversations and feed run for the whole
// session; the messages screen is retargeted as conversations open.
type Screens struct {
	Conversations *engine.Screen
	Messages      *engine.Screen
	Feed          *engine.Screen

	// Conversation the messages screen currently shows; "" when none.
	active  atomic.Value
	cancels []func()
}

func provideScreens(cfg *config.Config, api *rest.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *Screens {
	timeout := cfg.Tuning.MutationTimeout()
	debounce := cfg.Tuning.ToggleDebounce()

	s := &Screens{
		Conversations: engine.NewScreen(engine.Options{
			Name:      "conversations",
			Direction: collection.NewestFirst,
			PageLimit: cfg.Tuning.PageLimit,
			Fetcher:   api.Resource("/conversations", "conversations", asEntity(entity.DecodeConversation)),
			Cache:     db,
			Timeout:   timeout,
			Debounce:  debounce,
		}, b, logger),
		// No cache: cached rows are keyed per screen, and this screen's
		// contents change with the active conversation.
		Messages: engine.NewScreen(engine.Options{
			Name:      "messages",
			Direction: collection.Chronological,
			PageLimit: cfg.Tuning.MessagePageLimit,
			Fetcher:   api.Resource("/messages", "messages", asEntity(entity.DecodeMessage)),
			Timeout:   timeout,
			Debounce:  debounce,
		}, b, logger),
		Feed: engine.NewScreen(engine.Options{
			Name:      "feed",
			Direction: collection.NewestFirst,
			PageLimit: cfg.Tuning.PageLimit,
			Fetcher:   api.Resource("/posts", "posts", asEntity(entity.DecodePost)),
			Cache:     db,
			Timeout:   timeout,
			Debounce:  debounce,
		}, b, logger),
	}
	s.active.Store("")
	s.wire(b, logger)
	return s
}

// Start runs the screens' owning goroutines.
func (s *Screens) Start() {
	s.Conversations.Start()
	s.Messages.Start()
	s.Feed.Start()
}

// Stop cancels the push subscriptions and tears the screens down.
func (s *Screens) Stop() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.Conversations.Stop()
	s.Messages.Stop()
	s.Feed.Stop()
}

// OpenConversation points the messages screen at a conversation and
// loads its history from page 1.
func (s *Screens) OpenConversation(ctx context.Context, conversationID string) {
	s.active.Store(conversationID)
	s.Messages.SetFilters(ctx, history.Filters{ReceiverID: conversationID})
}

// CloseConversation detaches the messages screen.
func (s *Screens) CloseConversation() {
	s.active.Store("")
	s.Messages.Reset(history.Filters{})
}

func (s *Screens) activeConversation() string {
	return s.active.Load().(string)
}

// wire subscribes the screens to their push-channel events.
func (s *Screens) wire(b *bus.Bus, logger *zap.Logger) {
	chat := dispatch.New("chat", b, logger)
	feed := dispatch.New("feed", b, logger)

	s.cancels = append(s.cancels,
		chat.Subscribe("newMessage", dispatch.Single(entity.DecodeMessage), s.routeMessages),
		chat.Subscribe("conversationUpdate", dispatch.Single(entity.DecodeConversation), s.Conversations.ApplyLive),
		chat.SubscribeRaw("userStatusUpdate", func(raw []byte) {
			var u entity.UserStatus
			if err := json.Unmarshal(raw, &u); err != nil {
				return
			}
			s.Conversations.SetPresence(u.UserID, u.IsActive)
		}),
		chat.SubscribeRaw("messageRead", func(raw []byte) {
			var r entity.ReadReceipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return
			}
			s.Conversations.ApplyReadReceipt(r.ConversationID, r.UnreadCount)
		}),
		chat.SubscribeRaw("typing", func(raw []byte) {
			var n entity.TypingNotice
			if err := json.Unmarshal(raw, &n); err != nil {
				return
			}
			s.Conversations.SetTyping(n.ConversationID, n.Typing)
		}),
		feed.Subscribe("newPost", dispatch.Single(entity.DecodePost), s.Feed.ApplyLive),
		feed.Subscribe("newPosts", entity.DecodePostBatch, s.Feed.ApplyLive),
	)
}

// routeMessages forwards live messages belonging to the conversation
// the messages screen currently shows. Messages for other conversations
// surface through conversationUpdate events instead.
func (s *Screens) routeMessages(items []entity.Entity) {
	active := s.activeConversation()
	if active == "" {
		return
	}
	var mine []entity.Entity
	for _, e := range items {
		if m, ok := e.(*entity.Message); ok && m.ConversationID == active {
			mine = append(mine, e)
		}
	}
	if len(mine) > 0 {
		s.Messages.ApplyLive(mine)
	}
}

func asEntity[T entity.Entity](fn func(raw []byte) (T, error)) func(raw []byte) (entity.Entity, error) {
	return func(raw []byte) (entity.Entity, error) {
		e, err := fn(raw)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
