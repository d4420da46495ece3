package optimistic

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/mmarins/livewire/internal/collection"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/sched"
	"go.uber.org/zap"
)

const (
	testTimeout  = 10 * time.Second
	testDebounce = 500 * time.Millisecond
)

// harness wires a coordinator whose Exec funnel is drained explicitly
// by the test, keeping every collection touch on the test goroutine.
type harness struct {
	t       *testing.T
	col     *collection.Collection
	coord   *Coordinator
	clock   *sched.Manual
	execCh  chan func()
	errs    []string
	failed  []entity.Entity
	changes int
}

func newHarness(t *testing.T, dir collection.Direction) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		col:    collection.New(dir),
		clock:  sched.NewManual(),
		execCh: make(chan func(), 32),
	}
	hooks := Hooks{
		Exec:         func(f func()) { h.execCh <- f },
		OnChange:     func() { h.changes++ },
		OnError:      func(msg string) { h.errs = append(h.errs, msg) },
		OnSendFailed: func(e entity.Entity) { h.failed = append(h.failed, e) },
	}
	h.coord = New(context.Background(), h.col, h.clock, testTimeout, testDebounce, hooks, zap.NewNop())
	return h
}

// step runs the next serialized closure, waiting for it to arrive.
func (h *harness) step() {
	h.t.Helper()
	select {
	case f := <-h.execCh:
		f()
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for serialized completion")
	}
}

func (h *harness) ids() []string {
	items := h.col.Items()
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.EntityID()
	}
	return out
}

func (h *harness) assertOrder(want ...string) {
	h.t.Helper()
	got := h.ids()
	if !reflect.DeepEqual(got, want) {
		h.t.Fatalf("collection = %v, want %v", got, want)
	}
}

func seedMessages(h *harness, specs ...*entity.Message) {
	es := make([]entity.Entity, len(specs))
	for i, m := range specs {
		m.Lifecycle = entity.Confirmed
		es[i] = m
	}
	h.col.Replace(es)
}

func TestSendConfirmSwapsTemporaryID(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	seedMessages(h,
		&entity.Message{ID: "A", CreatedAt: 30},
		&entity.Message{ID: "B", CreatedAt: 20},
		&entity.Message{ID: "C", CreatedAt: 10},
	)

	temp := &entity.Message{ID: entity.NewLocalID(), Text: "hi", CreatedAt: 40}
	result := make(chan entity.Entity, 1)
	err := h.coord.Send(temp, func(context.Context) (entity.Entity, error) {
		return <-result, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Optimistic: temp at the head immediately.
	h.assertOrder(temp.ID, "A", "B", "C")
	if h.col.Get(temp.ID).Life() != entity.PendingSend {
		t.Error("temp entity not tagged pending-send")
	}

	result <- &entity.Message{ID: "M1", Text: "hi", CreatedAt: 40}
	h.step()

	h.assertOrder("M1", "A", "B", "C")
	if h.col.Has(temp.ID) {
		t.Error("temporary id still present after confirm")
	}
	if h.col.Get("M1").Life() != entity.Confirmed {
		t.Error("confirmed entity not tagged confirmed")
	}
	if h.coord.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", h.coord.PendingCount())
	}
}

func TestSendFailureRemovesTempAndPreservesText(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	seedMessages(h, &entity.Message{ID: "A", CreatedAt: 30})

	temp := &entity.Message{ID: entity.NewLocalID(), Text: "draft", CreatedAt: 40}
	fail := make(chan error, 1)
	_ = h.coord.Send(temp, func(context.Context) (entity.Entity, error) {
		return nil, <-fail
	})

	fail <- context.DeadlineExceeded
	h.step()

	h.assertOrder("A")
	if len(h.failed) != 1 || h.failed[0].(*entity.Message).Text != "draft" {
		t.Errorf("OnSendFailed = %v, want the draft back", h.failed)
	}
	if len(h.errs) != 1 {
		t.Errorf("errors = %v, want one send failure", h.errs)
	}
}

func TestSendTimeoutBehavesLikeFailure(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	seedMessages(h, &entity.Message{ID: "A", CreatedAt: 30})

	temp := &entity.Message{ID: entity.NewLocalID(), Text: "slow", CreatedAt: 40}
	_ = h.coord.Send(temp, func(ctx context.Context) (entity.Entity, error) {
		<-ctx.Done() // never answers
		return nil, ctx.Err()
	})

	h.clock.Advance(testTimeout)
	h.step()

	h.assertOrder("A")
	if len(h.failed) != 1 || h.failed[0].(*entity.Message).Text != "slow" {
		t.Errorf("OnSendFailed = %v", h.failed)
	}
	if h.coord.PendingCount() != 0 {
		t.Error("record survived timeout")
	}
}

func TestEditRevertIsComplete(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	original := &entity.Message{ID: "M1", Text: "original", CreatedAt: 10, Edited: false}
	seedMessages(h, original)
	before := h.col.Get("M1").Clone()

	fail := make(chan error, 1)
	err := h.coord.Edit("M1", func(e entity.Entity) {
		m := e.(*entity.Message)
		m.Text = "edited"
		m.Edited = true
	}, func(context.Context) error { return <-fail })
	if err != nil {
		t.Fatal(err)
	}

	if h.col.Get("M1").(*entity.Message).Text != "edited" {
		t.Fatal("edit not applied optimistically")
	}

	fail <- context.DeadlineExceeded
	h.step()

	after := h.col.Get("M1")
	if !reflect.DeepEqual(after, before) {
		t.Errorf("revert incomplete:\n got %+v\nwant %+v", after, before)
	}
	if len(h.errs) != 1 {
		t.Errorf("errors = %v", h.errs)
	}
}

func TestEditConfirmKeepsNewContent(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	seedMessages(h, &entity.Message{ID: "M1", Text: "old", CreatedAt: 10})

	ok := make(chan error, 1)
	_ = h.coord.Edit("M1", func(e entity.Entity) {
		e.(*entity.Message).Text = "new"
	}, func(context.Context) error { return <-ok })

	ok <- nil
	h.step()

	m := h.col.Get("M1").(*entity.Message)
	if m.Text != "new" || m.Lifecycle != entity.Confirmed {
		t.Errorf("message = %+v", m)
	}
}

// A second edit before the first resolves supersedes the first record:
// one timer, and a revert restores the state before the first edit.
func TestEditSupersedesPendingRecord(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	seedMessages(h, &entity.Message{ID: "M1", Text: "original", CreatedAt: 10})

	block := make(chan error)
	setText := func(s string) func(entity.Entity) {
		return func(e entity.Entity) { e.(*entity.Message).Text = s }
	}
	_ = h.coord.Edit("M1", setText("first"), func(context.Context) error { return <-block })
	_ = h.coord.Edit("M1", setText("second"), func(context.Context) error { return <-block })

	if h.coord.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 (superseded)", h.coord.PendingCount())
	}
	if h.clock.PendingCount() != 1 {
		t.Fatalf("timers = %d, want 1 (not stacked)", h.clock.PendingCount())
	}

	h.clock.Advance(testTimeout)
	h.step()

	if got := h.col.Get("M1").(*entity.Message).Text; got != "original" {
		t.Errorf("text = %q, want pre-first-edit original", got)
	}
	close(block)
}

func TestDeleteTombstonesAndTimeoutRestores(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	seedMessages(h,
		&entity.Message{ID: "M1", Text: "secret", CreatedAt: 10},
		&entity.Message{ID: "M2", Text: "other", CreatedAt: 20},
	)
	before := h.col.Get("M1").Clone()

	_ = h.coord.Delete("M1", func(e entity.Entity) {
		m := e.(*entity.Message)
		m.Text = entity.Tombstone
		m.Deleted = true
	}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	// Tombstoned in place, position kept.
	h.assertOrder("M1", "M2")
	m := h.col.Get("M1").(*entity.Message)
	if m.Text != entity.Tombstone || !m.Deleted {
		t.Fatalf("message = %+v, want tombstone", m)
	}

	// No ack inside the window: original content comes back.
	h.clock.Advance(testTimeout)
	h.step()

	if !reflect.DeepEqual(h.col.Get("M1"), before) {
		t.Errorf("restore incomplete: %+v", h.col.Get("M1"))
	}
	h.assertOrder("M1", "M2")
}

// like -> unlike -> like inside the debounce window: the flag and
// counter flip locally on every tap, exactly one remote call goes out,
// and it reflects the settled state.
func TestToggleDebounceCoalesces(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	p := &entity.Post{ID: "P1", LikeCount: 5, Liked: false, CreatedAt: 10, Lifecycle: entity.Confirmed}
	h.col.Replace([]entity.Entity{p})

	sent := make(chan bool, 4)
	remote := func(_ context.Context, settled entity.Entity) error {
		sent <- settled.(*entity.Post).Liked
		return nil
	}
	flip := func(e entity.Entity) {
		post := e.(*entity.Post)
		if post.Liked {
			post.Liked = false
			post.LikeCount--
		} else {
			post.Liked = true
			post.LikeCount++
		}
	}

	counts := []int{}
	for i := 0; i < 3; i++ {
		_ = h.coord.Toggle("P1", OpLike, flip, remote)
		counts = append(counts, h.col.Get("P1").(*entity.Post).LikeCount)
		h.clock.Advance(100 * time.Millisecond)
	}
	// Every intermediate tap visible locally: 6, 5, 6.
	if !reflect.DeepEqual(counts, []int{6, 5, 6}) {
		t.Errorf("local counts = %v, want [6 5 6]", counts)
	}
	select {
	case <-sent:
		t.Fatal("remote called inside the debounce window")
	default:
	}

	h.clock.Advance(testDebounce)
	h.step()

	select {
	case liked := <-sent:
		if !liked {
			t.Error("remote saw liked=false, want settled liked state")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote never called after window closed")
	}
	select {
	case <-sent:
		t.Error("remote called more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestToggleFailureRestoresSnapshot(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	p := &entity.Post{ID: "P1", LikeCount: 5, Liked: false, CreatedAt: 10, Lifecycle: entity.Confirmed}
	h.col.Replace([]entity.Entity{p})

	flip := func(e entity.Entity) {
		post := e.(*entity.Post)
		post.Liked = !post.Liked
		post.LikeCount++
	}
	_ = h.coord.Toggle("P1", OpLike, flip, func(context.Context, entity.Entity) error {
		return context.DeadlineExceeded
	})

	h.clock.Advance(testDebounce)
	h.step() // flush
	h.step() // failure reconciliation

	got := h.col.Get("P1").(*entity.Post)
	if got.Liked || got.LikeCount != 5 {
		t.Errorf("post = %+v, want pre-toggle snapshot restored", got)
	}
	if len(h.errs) != 1 {
		t.Errorf("errors = %v", h.errs)
	}
}

// A failure from an earlier window must not revert taps made in a
// newer window on the same entity.
func TestToggleFailureDoesNotClobberNewerWindow(t *testing.T) {
	h := newHarness(t, collection.NewestFirst)
	p := &entity.Post{ID: "P1", LikeCount: 5, Liked: false, CreatedAt: 10, Lifecycle: entity.Confirmed}
	h.col.Replace([]entity.Entity{p})

	flip := func(e entity.Entity) {
		post := e.(*entity.Post)
		if post.Liked {
			post.Liked = false
			post.LikeCount--
		} else {
			post.Liked = true
			post.LikeCount++
		}
	}
	block := make(chan error)
	remote := func(context.Context, entity.Entity) error { return <-block }

	// First window: like, flush, remote hangs.
	_ = h.coord.Toggle("P1", OpLike, flip, remote)
	h.clock.Advance(testDebounce)
	h.step() // flush spawns the first remote

	// Second window opens while the first remote is in flight.
	_ = h.coord.Toggle("P1", OpLike, flip, remote)
	got := h.col.Get("P1").(*entity.Post)
	if got.Liked || got.LikeCount != 5 {
		t.Fatalf("post before failure = %+v", got)
	}

	// First remote fails; the newer window's state must stand.
	block <- context.DeadlineExceeded
	h.step() // failure reconciliation

	got = h.col.Get("P1").(*entity.Post)
	if got.Liked || got.LikeCount != 5 {
		t.Errorf("post = %+v, newer window clobbered by stale revert", got)
	}
	if len(h.errs) != 0 {
		t.Errorf("errors = %v, stale failure surfaced", h.errs)
	}

	// The newer window still resolves on its own.
	h.clock.Advance(testDebounce)
	h.step()
	block <- nil
}

func TestEditUnknownEntityRejectedSynchronously(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	err := h.coord.Edit("ghost", func(entity.Entity) {}, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("edit of unknown entity accepted")
	}
	if h.coord.PendingCount() != 0 {
		t.Error("record created for rejected mutation")
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	h := newHarness(t, collection.Chronological)
	seedMessages(h, &entity.Message{ID: "M1", Text: "x", CreatedAt: 10})
	block := make(chan error)
	_ = h.coord.Edit("M1", func(e entity.Entity) {
		e.(*entity.Message).Text = "y"
	}, func(context.Context) error { return <-block })

	h.coord.Close()
	if h.clock.PendingCount() != 0 {
		t.Errorf("timers = %d after Close, want 0", h.clock.PendingCount())
	}
	close(block)
}

