// Package sched abstracts cancellable delayed callbacks so mutation
// timeouts and debounce windows can be driven by a fake in tests.
package sched

import (
	"sync"
	"time"
)

// Scheduler schedules a callback after a delay. The returned cancel
// function stops the callback if it has not fired yet.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type wallClock struct{}

// Real returns a Scheduler backed by time.AfterFunc.
func Real() Scheduler { return wallClock{} }

func (wallClock) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Manual is a Scheduler for tests: nothing fires until Advance moves
// the fake clock past a task's deadline.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	next  int
	tasks map[int]*task
}

type task struct {
	at time.Duration
	fn func()
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{tasks: make(map[int]*task)}
}

func (m *Manual) Schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.tasks[id] = &task{at: m.now + d, fn: fn}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	}
}

// Advance moves the clock forward and fires every task whose deadline
// passed, in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []*task
	for id, t := range m.tasks {
		if t.at <= m.now {
			due = append(due, t)
			delete(m.tasks, id)
		}
	}
	m.mu.Unlock()

	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].at < due[i].at {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	for _, t := range due {
		t.fn()
	}
}

// PendingCount returns how many tasks have not fired or been cancelled.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
