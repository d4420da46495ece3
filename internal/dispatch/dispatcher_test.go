package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/entity"
	"go.uber.org/zap"
)

func push(b *bus.Bus, kind, payload string) {
	b.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: json.RawMessage(payload)})
}

func TestSubscribeDecodesSingleEntity(t *testing.T) {
	b := bus.New()
	d := New("chat", b, zap.NewNop())

	got := make(chan []entity.Entity, 1)
	cancel := d.Subscribe("newMessage", Single(entity.DecodeMessage), func(es []entity.Entity) {
		got <- es
	})
	defer cancel()

	push(b, "push.chat.newMessage", `{"id":"m1","text":"hi","createdAt":1000}`)

	select {
	case es := <-got:
		if len(es) != 1 || es[0].EntityID() != "m1" {
			t.Errorf("entities = %v", es)
		}
		if es[0].Life() != entity.Confirmed {
			t.Error("delivered entity not tagged confirmed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

func TestSubscribeDecodesBatch(t *testing.T) {
	b := bus.New()
	d := New("feed", b, zap.NewNop())

	got := make(chan []entity.Entity, 1)
	cancel := d.Subscribe("newPosts", entity.DecodePostBatch, func(es []entity.Entity) {
		got <- es
	})
	defer cancel()

	push(b, "push.feed.newPosts", `[{"id":"p1","createdAt":1},{"id":"p2","createdAt":2}]`)

	select {
	case es := <-got:
		if len(es) != 2 {
			t.Errorf("got %d entities, want 2", len(es))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

// A malformed payload is dropped; the next event still arrives.
func TestDecodeFailureIsSwallowed(t *testing.T) {
	b := bus.New()
	d := New("chat", b, zap.NewNop())

	got := make(chan []entity.Entity, 2)
	cancel := d.Subscribe("newMessage", Single(entity.DecodeMessage), func(es []entity.Entity) {
		got <- es
	})
	defer cancel()

	push(b, "push.chat.newMessage", `{"text":"no id"}`)
	push(b, "push.chat.newMessage", `not json at all`)
	push(b, "push.chat.newMessage", `{"id":"m2","createdAt":2000}`)

	select {
	case es := <-got:
		if es[0].EntityID() != "m2" {
			t.Errorf("delivered %q, want m2", es[0].EntityID())
		}
	case <-time.After(time.Second):
		t.Fatal("delivery stopped after decode failure")
	}

	select {
	case es := <-got:
		t.Errorf("unexpected extra delivery: %v", es)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := bus.New()
	d := New("chat", b, zap.NewNop())

	got := make(chan []entity.Entity, 1)
	cancel := d.Subscribe("newMessage", Single(entity.DecodeMessage), func(es []entity.Entity) {
		got <- es
	})
	cancel()

	push(b, "push.chat.newMessage", `{"id":"m1"}`)

	select {
	case es := <-got:
		t.Errorf("delivery after cancel: %v", es)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeRaw(t *testing.T) {
	b := bus.New()
	d := New("chat", b, zap.NewNop())

	got := make(chan []byte, 1)
	cancel := d.SubscribeRaw("userStatusUpdate", func(raw []byte) { got <- raw })
	defer cancel()

	push(b, "push.chat.userStatusUpdate", `{"userId":"u1","isActive":true}`)

	select {
	case raw := <-got:
		var st entity.UserStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatal(err)
		}
		if st.UserID != "u1" || !st.IsActive {
			t.Errorf("status = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for raw delivery")
	}
}
