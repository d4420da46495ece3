// Package dispatch decodes named push-channel events into domain
// entities. It bridges the raw frames the connection manager publishes
// on the bus to the typed input the screen engine consumes.
package dispatch

import (
	"encoding/json"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/entity"
	"go.uber.org/zap"
)

// Decoder turns one event payload into zero or more entities.
type Decoder func(raw []byte) ([]entity.Entity, error)

// Single adapts a one-entity decode function to the Decoder shape.
func Single[T entity.Entity](fn func(raw []byte) (T, error)) Decoder {
	return func(raw []byte) ([]entity.Entity, error) {
		e, err := fn(raw)
		if err != nil {
			return nil, err
		}
		return []entity.Entity{e}, nil
	}
}

// Dispatcher routes push events for one screen family to decoders.
type Dispatcher struct {
	family string
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a dispatcher for the given family ("chat", "feed").
func New(family string, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{family: family, bus: b, logger: logger}
}

// Subscribe decodes every "push.<family>.<event>" frame and hands the
// resulting entities to deliver. A payload that fails to decode is
// dropped silently; it never stops delivery of later events. The
// returned function cancels the subscription.
func (d *Dispatcher) Subscribe(event string, decode Decoder, deliver func([]entity.Entity)) func() {
	ch, unsub := d.bus.Subscribe("push."+d.family+"."+event, 256)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				raw, ok := rawPayload(evt.Payload)
				if !ok {
					continue
				}
				entities, err := decode(raw)
				if err != nil {
					d.logger.Debug("dropping undecodable event",
						zap.String("event", event), zap.Error(err))
					continue
				}
				if len(entities) > 0 {
					deliver(entities)
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

// SubscribeRaw hands the raw payload of an event to deliver without
// decoding to entities. Used for side-channel events (presence, read
// receipts, typing) that update derived state rather than the
// collection.
func (d *Dispatcher) SubscribeRaw(event string, deliver func(raw []byte)) func() {
	ch, unsub := d.bus.Subscribe("push."+d.family+"."+event, 256)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt := <-ch:
				if raw, ok := rawPayload(evt.Payload); ok {
					deliver(raw)
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

func rawPayload(p any) ([]byte, bool) {
	switch v := p.(type) {
	case json.RawMessage:
		return v, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
