package collection

import (
	"github.com/mmarins/livewire/internal/entity"
)

// Change records what a live merge did with one incoming entity.
// Updated distinguishes a remove-then-reinsert of a known ID from a pure
// insert; it drives notifications, not merge correctness.
type Change struct {
	Entity  entity.Entity
	Updated bool
}

// Replace adopts a page-1 history response: the current contents are
// discarded and the incoming items taken in server order. Server-side
// duplicates within the page are dropped, keeping the first occurrence.
func (c *Collection) Replace(items []entity.Entity) {
	c.Clear()
	for _, e := range items {
		if c.Has(e.EntityID()) {
			continue
		}
		c.items = append(c.items, e)
		c.ids[e.EntityID()] = struct{}{}
	}
}

// Append adopts a page-N (N > 1) history response: incoming items whose
// ID is already present are filtered out, survivors appended in server
// order. Returns how many items were actually added.
func (c *Collection) Append(items []entity.Entity) int {
	added := 0
	for _, e := range items {
		if c.Has(e.EntityID()) {
			continue
		}
		c.items = append(c.items, e)
		c.ids[e.EntityID()] = struct{}{}
		added++
	}
	return added
}

// ApplyLive merges entities delivered by the push channel. A known ID is
// removed from its current position and reinserted (a server-side
// update or an activity bump); an unknown ID is a pure insert. Insertion
// goes to the newest edge for NewestFirst collections and to the
// timestamp-ordered position for Chronological ones. Applying the same
// payload twice yields the same collection as applying it once.
func (c *Collection) ApplyLive(items []entity.Entity) []Change {
	changes := make([]Change, 0, len(items))
	for _, e := range items {
		updated := false
		if i := c.IndexOf(e.EntityID()); i >= 0 {
			c.removeAt(i)
			updated = true
		}
		switch c.dir {
		case NewestFirst:
			c.insertAt(0, e)
		case Chronological:
			c.insertAt(c.orderedIndex(e), e)
		}
		changes = append(changes, Change{Entity: e, Updated: updated})
	}
	return changes
}

// InsertNewest places a locally fabricated entity at the newest edge:
// position 0 for NewestFirst, the tail for Chronological. No-op if the
// ID is already present.
func (c *Collection) InsertNewest(e entity.Entity) bool {
	if c.Has(e.EntityID()) {
		return false
	}
	switch c.dir {
	case NewestFirst:
		c.insertAt(0, e)
	case Chronological:
		c.insertAt(len(c.items), e)
	}
	return true
}

// Update replaces the entity with the same ID in place, without
// reordering. Returns false if the ID is absent.
func (c *Collection) Update(e entity.Entity) bool {
	i := c.IndexOf(e.EntityID())
	if i < 0 {
		return false
	}
	c.items[i] = e
	return true
}

// Remove drops the entity with the given ID. Returns false if absent.
func (c *Collection) Remove(id string) bool {
	i := c.IndexOf(id)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

// ReplaceID swaps the entity stored under oldID for the replacement the
// server returned (typically a temporary send ID for the authoritative
// one). The replacement lands at its ordered position; if the server
// returns an ID already present elsewhere, that duplicate is dropped
// first so identity uniqueness holds. Returns false if oldID is absent.
func (c *Collection) ReplaceID(oldID string, e entity.Entity) bool {
	i := c.IndexOf(oldID)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	if j := c.IndexOf(e.EntityID()); j >= 0 {
		c.removeAt(j)
	}
	c.insertAt(c.orderedIndex(e), e)
	return true
}

// ResortOne re-sorts the single entity with the given ID to the position
// its (possibly changed) ordering key demands, leaving every other
// entity's relative order untouched. Used when a confirm or revert
// changes an activity timestamp.
func (c *Collection) ResortOne(id string) bool {
	i := c.IndexOf(id)
	if i < 0 {
		return false
	}
	e := c.items[i]
	c.removeAt(i)
	c.insertAt(c.orderedIndex(e), e)
	return true
}
