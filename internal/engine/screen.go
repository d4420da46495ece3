// Package engine runs one screen's live collection: a single goroutine
// owns the ordered collection, pagination cursor, and loading flags,
// and every external completion (history pages, live entities, mutation
// results, timer firings) is serialized onto it. The engine publishes a
// snapshot on the bus after each visible change; presentation code
// subscribes or polls Snapshot.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/collection"
	"github.com/mmarins/livewire/internal/entity"
	"github.com/mmarins/livewire/internal/history"
	"github.com/mmarins/livewire/internal/optimistic"
	"github.com/mmarins/livewire/internal/sched"
	"go.uber.org/zap"
)

// Cache is an optional write-through store for confirmed entities so a
// screen can warm-start before page 1 arrives. DeleteScreen drops the
// screen's rows on a user-context change.
type Cache interface {
	SaveBatch(screen string, items []entity.Entity) error
	LoadRecent(screen string, limit int) ([]entity.Entity, error)
	DeleteScreen(screen string) error
}

// Flags are the loading indicators exposed to presentation code.
type Flags struct {
	IsLoading     bool
	IsLoadingMore bool
	IsRefreshing  bool
}

// State is the externally visible snapshot of a screen.
type State struct {
	Items    []entity.Entity
	Cursor   history.Cursor
	Flags    Flags
	Err      string
	Presence map[string]bool
	Typing   map[string]bool
}

// Options configure a screen.
type Options struct {
	Name      string
	Direction collection.Direction
	PageLimit int
	Fetcher   history.Fetcher
	Cache     Cache
	Scheduler sched.Scheduler
	Timeout   time.Duration // mutation confirm deadline
	Debounce  time.Duration // toggle coalescing window
}

// Screen is one live-synchronized collection and its bookkeeping.
type Screen struct {
	name   string
	bus    *bus.Bus
	logger *zap.Logger
	cache  Cache

	col    *collection.Collection
	loader *history.Loader
	coord  *optimistic.Coordinator

	flags    Flags
	errMsg   string
	presence map[string]bool
	typing   map[string]bool

	cmds     chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewScreen builds a stopped screen. Start must be called before use.
func NewScreen(opts Options, b *bus.Bus, logger *zap.Logger) *Screen {
	s := &Screen{
		name:     opts.Name,
		bus:      b,
		logger:   logger.With(zap.String("screen", opts.Name)),
		cache:    opts.Cache,
		col:      collection.New(opts.Direction),
		loader:   history.NewLoader(opts.Fetcher, opts.PageLimit),
		presence: make(map[string]bool),
		typing:   make(map[string]bool),
		cmds:     make(chan func(), 256),
		done:     make(chan struct{}),
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = sched.Real()
	}
	s.coord = optimistic.New(context.Background(), s.col, scheduler, opts.Timeout, opts.Debounce,
		optimistic.Hooks{
			Exec:     s.post,
			OnChange: s.publish,
			OnError:  func(msg string) { s.errMsg = msg },
			OnSendFailed: func(temp entity.Entity) {
				s.bus.Publish(bus.Event{
					Kind:      "screen." + opts.Name + ".send_failed",
					Timestamp: time.Now(),
					Payload:   temp,
				})
			},
		}, s.logger)
	return s
}

// Start runs the owning goroutine and, when a cache is configured,
// warm-starts the collection from it.
func (s *Screen) Start() {
	go s.loop()
	if s.cache != nil {
		s.post(func() {
			items, err := s.cache.LoadRecent(s.name, s.loader.Cursor().Limit)
			if err != nil {
				s.logger.Warn("cache warm start failed", zap.Error(err))
				return
			}
			if len(items) > 0 && s.col.Len() == 0 {
				s.col.Replace(items)
				s.publish()
			}
		})
	}
}

// Stop terminates the owning goroutine, cancels pending mutation
// timers, and clears the collection. Idempotent.
func (s *Screen) Stop() {
	s.stopOnce.Do(func() {
		s.post(func() {
			s.coord.Close()
			s.loader.Invalidate(history.Filters{})
			s.col.Clear()
			close(s.done)
		})
	})
}

// Reset clears all state for a user-context change (logout,
// conversation switch), drops the screen's cached rows, and installs
// new filters for subsequent loads.
func (s *Screen) Reset(f history.Filters) {
	s.post(func() {
		s.coord.Close()
		s.loader.Invalidate(f)
		s.col.Clear()
		s.presence = make(map[string]bool)
		s.typing = make(map[string]bool)
		s.errMsg = ""
		s.flags = Flags{}
		if s.cache != nil {
			go func() {
				if err := s.cache.DeleteScreen(s.name); err != nil {
					s.logger.Warn("cache purge failed", zap.Error(err))
				}
			}()
		}
		s.publish()
	})
}

func (s *Screen) loop() {
	for {
		select {
		case f := <-s.cmds:
			f()
		case <-s.done:
			return
		}
	}
}

// post serializes a closure onto the owning goroutine. Closures posted
// after Stop are dropped.
func (s *Screen) post(f func()) {
	select {
	case s.cmds <- f:
	case <-s.done:
	}
}

// call posts a closure and waits for it, returning its error. Used by
// the synchronous mutation entry points.
func (s *Screen) call(f func() error) error {
	errCh := make(chan error, 1)
	s.post(func() { errCh <- f() })
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return context.Canceled
	}
}

func (s *Screen) publish() {
	s.bus.Publish(bus.Event{
		Kind:      "screen." + s.name + ".updated",
		Timestamp: time.Now(),
		Payload:   s.snapshotLocked(),
	})
}

func (s *Screen) snapshotLocked() State {
	presence := make(map[string]bool, len(s.presence))
	for k, v := range s.presence {
		presence[k] = v
	}
	typing := make(map[string]bool, len(s.typing))
	for k, v := range s.typing {
		typing[k] = v
	}
	return State{
		Items:    s.col.Snapshot(),
		Cursor:   s.loader.Cursor(),
		Flags:    s.flags,
		Err:      s.errMsg,
		Presence: presence,
		Typing:   typing,
	}
}

// Snapshot returns the current state, serialized through the owner.
func (s *Screen) Snapshot() State {
	ch := make(chan State, 1)
	s.post(func() { ch <- s.snapshotLocked() })
	select {
	case st := <-ch:
		return st
	case <-s.done:
		return State{}
	}
}

// DismissError clears the surfaced error message.
func (s *Screen) DismissError() {
	s.post(func() {
		s.errMsg = ""
		s.publish()
	})
}
