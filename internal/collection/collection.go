// Package collection holds the ordered, deduplicated entity collection
// and the merge rules that keep it consistent across history pages, live
// push events, and local optimistic mutations. All methods assume a
// single logical owner; the screen engine serializes every caller.
package collection

import (
	"github.com/mmarins/livewire/internal/entity"
)

// Direction is the sort order a screen displays.
type Direction int

const (
	// NewestFirst orders by activity timestamp descending (recent chats,
	// home feed).
	NewestFirst Direction = iota
	// Chronological orders by creation timestamp ascending (message
	// history inside a conversation).
	Chronological
)

// Collection is an ordered sequence of entities plus an identity set for
// O(1) membership tests. The set and the sequence are updated together;
// no entity ID ever appears twice.
type Collection struct {
	dir   Direction
	items []entity.Entity
	ids   map[string]struct{}
}

// New creates an empty collection with the given display order.
func New(dir Direction) *Collection {
	return &Collection{
		dir: dir,
		ids: make(map[string]struct{}),
	}
}

// Len returns the number of entities held.
func (c *Collection) Len() int { return len(c.items) }

// Direction returns the display order.
func (c *Collection) Direction() Direction { return c.dir }

// Has reports whether an entity with the given ID is present.
func (c *Collection) Has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

// Get returns the entity with the given ID, or nil.
func (c *Collection) Get(id string) entity.Entity {
	if !c.Has(id) {
		return nil
	}
	for _, e := range c.items {
		if e.EntityID() == id {
			return e
		}
	}
	return nil
}

// IndexOf returns the position of the entity with the given ID, or -1.
func (c *Collection) IndexOf(id string) int {
	if !c.Has(id) {
		return -1
	}
	for i, e := range c.items {
		if e.EntityID() == id {
			return i
		}
	}
	return -1
}

// Items returns a copy of the ordered sequence. The entities themselves
// are shared; callers that hand them across the ownership boundary must
// clone.
func (c *Collection) Items() []entity.Entity {
	out := make([]entity.Entity, len(c.items))
	copy(out, c.items)
	return out
}

// Snapshot returns a deep copy of the ordered sequence, safe to publish
// outside the owning goroutine.
func (c *Collection) Snapshot() []entity.Entity {
	out := make([]entity.Entity, len(c.items))
	for i, e := range c.items {
		out[i] = e.Clone()
	}
	return out
}

// IDs returns the identity set as a slice (test helper, unordered).
func (c *Collection) IDs() []string {
	out := make([]string, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	return out
}

// Clear drops every entity. Used on teardown and user-context change.
func (c *Collection) Clear() {
	c.items = c.items[:0]
	c.ids = make(map[string]struct{})
}

func (c *Collection) removeAt(i int) {
	id := c.items[i].EntityID()
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.ids, id)
}

func (c *Collection) insertAt(i int, e entity.Entity) {
	c.items = append(c.items, nil)
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = e
	c.ids[e.EntityID()] = struct{}{}
}

// orderedIndex returns the insertion position for e under the
// collection's direction. Ties on the ordering key place the
// later-arriving entity first in NewestFirst order and last in
// Chronological order (stable insertion).
func (c *Collection) orderedIndex(e entity.Entity) int {
	key := e.OrderKey()
	switch c.dir {
	case NewestFirst:
		for i, cur := range c.items {
			if cur.OrderKey() <= key {
				return i
			}
		}
	case Chronological:
		for i, cur := range c.items {
			if cur.OrderKey() > key {
				return i
			}
		}
	}
	return len(c.items)
}
