// Package optimistic applies user mutations to the collection
// immediately and reconciles them against the backend: a remote
// confirmation finalizes the local effect, an explicit failure or a
// deadline expiry reverts it to the snapshot captured at apply time.
package optimistic

import (
	"context"
	"fmt"
	"time"

	"github.com/mmarins/livewire/internal/collection"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/sched"
	"go.uber.org/zap"
)

// Op is the kind of a pending mutation. At most one record exists per
// (entity ID, Op) pair; a repeat supersedes the previous record's timer
// instead of stacking a second one.
type Op string

const (
	OpSend     Op = "send"
	OpEdit     Op = "edit"
	OpDelete   Op = "delete"
	OpLike     Op = "like"
	OpMute     Op = "mute"
	OpInterest Op = "interest"
)

// RemoteCreate performs the backend call for a send and returns the
// authoritative entity the server assigned.
type RemoteCreate func(ctx context.Context) (entity.Entity, error)

// RemoteCall performs a backend call that only succeeds or fails.
type RemoteCall func(ctx context.Context) error

// RemoteToggle performs the coalesced backend call for a toggle. It
// receives a clone of the entity as it stood when the debounce window
// closed, so the payload reflects the settled state.
type RemoteToggle func(ctx context.Context, settled entity.Entity) error

// Hooks are the coordinator's outward effects. Exec serializes a
// closure onto the collection's owning context; every remote completion
// and timer firing goes through it. OnChange fires after any visible
// collection change; OnError carries the user-facing message for a
// failed or timed-out mutation; OnSendFailed hands back the removed
// temporary entity so its text can be offered for retry.
type Hooks struct {
	Exec         func(func())
	OnChange     func()
	OnError      func(msg string)
	OnSendFailed func(temp entity.Entity)
}

type key struct {
	id string
	op Op
}

type record struct {
	snapshot    entity.Entity // nil for send
	cancelTimer func()
}

type debounceState struct {
	snapshot    entity.Entity
	cancelTimer func()
}

// Coordinator tracks pending mutations for one screen. All exported
// methods must be called on the owning context; the Hooks.Exec funnel
// brings asynchronous completions back onto it.
type Coordinator struct {
	ctx       context.Context
	col       *collection.Collection
	scheduler sched.Scheduler
	timeout   time.Duration
	debounce  time.Duration
	hooks     Hooks
	logger    *zap.Logger

	pending   map[key]*record
	debounced map[key]*debounceState
}

// New creates a coordinator. timeout bounds confirmable mutations
// (send, edit, delete); debounce is the coalescing window for toggles.
func New(ctx context.Context, col *collection.Collection, scheduler sched.Scheduler, timeout, debounce time.Duration, hooks Hooks, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		ctx:       ctx,
		col:       col,
		scheduler: scheduler,
		timeout:   timeout,
		debounce:  debounce,
		hooks:     hooks,
		logger:    logger,
		pending:   make(map[key]*record),
		debounced: make(map[key]*debounceState),
	}
}

// PendingCount returns the number of outstanding mutation records.
func (c *Coordinator) PendingCount() int { return len(c.pending) }

// HasPending reports whether a record exists for the given pair.
func (c *Coordinator) HasPending(id string, op Op) bool {
	_, ok := c.pending[key{id, op}]
	return ok
}

// Send inserts the locally fabricated temp entity at the newest edge
// and starts the remote create. On confirm the temporary entity is
// swapped for the server's; on failure or timeout it is removed and
// handed to OnSendFailed.
func (c *Coordinator) Send(temp entity.Entity, remote RemoteCreate) error {
	if !entity.IsLocalID(temp.EntityID()) {
		return fmt.Errorf("send: entity %q does not carry a temporary id", temp.EntityID())
	}
	temp.SetLife(entity.PendingSend)
	if !c.col.InsertNewest(temp) {
		return fmt.Errorf("send: id %q already present", temp.EntityID())
	}

	// The record carries temp itself so a timeout can hand the text
	// back for retry.
	k := key{temp.EntityID(), OpSend}
	c.arm(k, temp, "failed to send message")
	c.hooks.OnChange()

	go func() {
		authoritative, err := remote(c.ctx)
		c.hooks.Exec(func() { c.resolveSend(k, temp, authoritative, err) })
	}()
	return nil
}

func (c *Coordinator) resolveSend(k key, temp, authoritative entity.Entity, err error) {
	rec, ok := c.pending[k]
	if !ok {
		return // timed out already, effect reverted
	}
	rec.cancelTimer()
	delete(c.pending, k)

	if err != nil {
		c.logger.Warn("send failed", zap.String("id", k.id), zap.Error(err))
		c.col.Remove(k.id)
		if c.hooks.OnSendFailed != nil {
			c.hooks.OnSendFailed(temp)
		}
		c.hooks.OnError("failed to send message")
		c.hooks.OnChange()
		return
	}

	authoritative.SetLife(entity.Confirmed)
	c.col.ReplaceID(k.id, authoritative)
	c.hooks.OnChange()
}

// Edit mutates the entity's content in place via apply and starts the
// remote call. The pre-mutation snapshot is restored on failure or
// timeout. A second Edit on the same entity supersedes the first
// record's timer and keeps the original snapshot.
func (c *Coordinator) Edit(id string, apply func(entity.Entity), remote RemoteCall) error {
	return c.confirmable(id, OpEdit, entity.PendingEdit, "failed to edit message", apply, remote)
}

// Delete tombstones the entity in place (the collection keeps its
// position) and starts the remote call. The tombstone is cleared and
// the original content restored on failure or timeout.
func (c *Coordinator) Delete(id string, apply func(entity.Entity), remote RemoteCall) error {
	return c.confirmable(id, OpDelete, entity.PendingDelete, "failed to delete message", apply, remote)
}

func (c *Coordinator) confirmable(id string, op Op, life entity.Lifecycle, errMsg string, apply func(entity.Entity), remote RemoteCall) error {
	e := c.col.Get(id)
	if e == nil {
		return fmt.Errorf("%s: no entity %q", op, id)
	}

	k := key{id, op}
	var snapshot entity.Entity
	if prev, ok := c.pending[k]; ok {
		// Supersede: cancel the previous timer, keep the original
		// snapshot so a revert restores the true pre-mutation state.
		prev.cancelTimer()
		snapshot = prev.snapshot
		delete(c.pending, k)
	} else {
		snapshot = e.Clone()
	}

	apply(e)
	e.SetLife(life)
	c.arm(k, snapshot, errMsg)
	c.resortIfMoved(id, snapshot)
	c.hooks.OnChange()

	go func() {
		err := remote(c.ctx)
		c.hooks.Exec(func() { c.resolveConfirmable(k, err, errMsg) })
	}()
	return nil
}

func (c *Coordinator) resolveConfirmable(k key, err error, errMsg string) {
	rec, ok := c.pending[k]
	if !ok {
		return
	}
	rec.cancelTimer()
	delete(c.pending, k)

	if err != nil {
		c.logger.Warn("mutation failed", zap.String("id", k.id), zap.String("op", string(k.op)), zap.Error(err))
		c.revert(k, rec.snapshot, errMsg)
		return
	}

	if e := c.col.Get(k.id); e != nil {
		e.SetLife(entity.Confirmed)
		c.resortIfMoved(k.id, rec.snapshot)
	}
	c.hooks.OnChange()
}

// arm registers the pending record and its deadline. Timeout firing is
// reconciled exactly like an explicit failure response.
func (c *Coordinator) arm(k key, snapshot entity.Entity, errMsg string) {
	rec := &record{snapshot: snapshot}
	rec.cancelTimer = c.scheduler.Schedule(c.timeout, func() {
		c.hooks.Exec(func() { c.expire(k, errMsg) })
	})
	c.pending[k] = rec
}

func (c *Coordinator) expire(k key, errMsg string) {
	rec, ok := c.pending[k]
	if !ok {
		return
	}
	delete(c.pending, k)
	c.logger.Warn("mutation timed out", zap.String("id", k.id), zap.String("op", string(k.op)))

	if k.op == OpSend {
		c.col.Remove(k.id)
		if c.hooks.OnSendFailed != nil {
			if e := rec.snapshot; e != nil {
				c.hooks.OnSendFailed(e)
			}
		}
		c.hooks.OnError(errMsg)
		c.hooks.OnChange()
		return
	}
	c.revert(k, rec.snapshot, errMsg)
}

func (c *Coordinator) revert(k key, snapshot entity.Entity, errMsg string) {
	if snapshot != nil {
		restored := snapshot.Clone()
		if c.col.Update(restored) {
			c.resortIfMoved(k.id, restored)
		}
	} else if k.op == OpSend {
		c.col.Remove(k.id)
	}
	c.hooks.OnError(errMsg)
	c.hooks.OnChange()
}

// resortIfMoved re-sorts the single entity when a mutation changed its
// ordering key (a conversation bumped by an edit, for example).
func (c *Coordinator) resortIfMoved(id string, before entity.Entity) {
	e := c.col.Get(id)
	if e == nil || before == nil {
		return
	}
	if e.OrderKey() != before.OrderKey() {
		c.col.ResortOne(id)
	}
}

// Toggle flips a boolean flag (like, interest, mute) locally on every
// call and coalesces the remote call: rapid repeats inside the debounce
// window reset the timer, so only the settled state is sent. remote is
// invoked after the window closes and should read the entity's current
// state at that point. An explicit remote failure restores the
// pre-window snapshot.
func (c *Coordinator) Toggle(id string, op Op, apply func(entity.Entity), remote RemoteToggle) error {
	e := c.col.Get(id)
	if e == nil {
		return fmt.Errorf("%s: no entity %q", op, id)
	}

	k := key{id, op}
	st, ok := c.debounced[k]
	if ok {
		st.cancelTimer()
	} else {
		st = &debounceState{snapshot: e.Clone()}
		c.debounced[k] = st
	}

	apply(e)
	c.hooks.OnChange()

	st.cancelTimer = c.scheduler.Schedule(c.debounce, func() {
		c.hooks.Exec(func() { c.flushToggle(k, remote) })
	})
	return nil
}

func (c *Coordinator) flushToggle(k key, remote RemoteToggle) {
	st, ok := c.debounced[k]
	if !ok {
		return
	}
	delete(c.debounced, k)

	e := c.col.Get(k.id)
	if e == nil {
		return
	}
	settled := e.Clone()

	go func() {
		err := remote(c.ctx, settled)
		if err == nil {
			return // fire-and-forget, nothing to finalize
		}
		c.hooks.Exec(func() {
			c.logger.Warn("toggle failed", zap.String("id", k.id), zap.String("op", string(k.op)), zap.Error(err))
			if _, renewed := c.debounced[k]; renewed {
				// A newer window owns the entity's state now; reverting
				// to this window's snapshot would clobber its taps. Its
				// own resolution settles the entity.
				return
			}
			if c.col.Update(st.snapshot.Clone()) {
				c.hooks.OnError(fmt.Sprintf("failed to update %s", k.op))
				c.hooks.OnChange()
			}
		})
	}()
}

// Close cancels every outstanding timer without reverting; the owner is
// tearing the collection down anyway.
func (c *Coordinator) Close() {
	for k, rec := range c.pending {
		rec.cancelTimer()
		delete(c.pending, k)
	}
	for k, st := range c.debounced {
		st.cancelTimer()
		delete(c.debounced, k)
	}
}
