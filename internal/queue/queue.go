// Package queue is the narrow enqueue surface over the durable task
// transport. Delivery of tasks is at-least-once; consumers must tolerate
// redelivery (the store's conditional claim makes duplicates no-ops).
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/hookline/hookline/internal/delivery"
)

// Publisher enqueues delivery tasks, immediately or no earlier than a delay.
type Publisher interface {
	Enqueue(ctx context.Context, t delivery.Task) error
	// EnqueueAfter makes the task visible no earlier than now+delay.
	// This is a delayed-queue primitive, not a busy wait.
	EnqueueAfter(ctx context.Context, t delivery.Task, delay time.Duration) error
}

// Delayed is one recorded publication on the Memory fake.
type Delayed struct {
	Task  delivery.Task
	Delay time.Duration
}

// Memory records publications for tests.
type Memory struct {
	mu    sync.Mutex
	items []Delayed

	// FailNext makes the next Enqueue/EnqueueAfter return this error once.
	FailNext error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) publish(t delivery.Task, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	m.items = append(m.items, Delayed{Task: t, Delay: delay})
	return nil
}

func (m *Memory) Enqueue(_ context.Context, t delivery.Task) error {
	return m.publish(t, 0)
}

func (m *Memory) EnqueueAfter(_ context.Context, t delivery.Task, delay time.Duration) error {
	return m.publish(t, delay)
}

// Items returns a copy of everything published so far.
func (m *Memory) Items() []Delayed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delayed, len(m.items))
	copy(out, m.items)
	return out
}

// Drain returns and clears the published tasks.
func (m *Memory) Drain() []Delayed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}
