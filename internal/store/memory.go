package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hookline/hookline/internal/delivery"
)

// Memory is an in-process Store used by tests. Same conditional-update
// semantics as Postgres, guarded by a single mutex.
type Memory struct {
	mu            sync.Mutex
	subscriptions map[string]Subscription
	deliveries    map[string]*Delivery
	attempts      map[string][]Attempt
	nextAttemptID int64

	now func() time.Time

	// Unavailable makes every call fail with ErrUnavailable, for
	// fail-closed tests.
	Unavailable bool
}

func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string]Subscription),
		deliveries:    make(map[string]*Delivery),
		attempts:      make(map[string][]Attempt),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for deterministic tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

// PutSubscription seeds or replaces a subscription.
func (m *Memory) PutSubscription(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	m.subscriptions[s.ID] = s
}

// DeleteSubscription removes a subscription, simulating a management-layer
// deletion.
func (m *Memory) DeleteSubscription(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, id)
}

func (m *Memory) check() error {
	if m.Unavailable {
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) GetSubscription(_ context.Context, id string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return Subscription{}, err
	}
	s, ok := m.subscriptions[id]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) CreateDelivery(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	now := m.now()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *Memory) GetDelivery(_ context.Context, id string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return Delivery{}, err
	}
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, ErrNotFound
	}
	return *d, nil
}

func (m *Memory) ClaimDelivery(_ context.Context, id string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return Delivery{}, err
	}
	d, ok := m.deliveries[id]
	if !ok {
		return Delivery{}, ErrNotFound
	}
	if d.Status.Terminal() {
		return Delivery{}, ErrTerminal
	}
	if !delivery.CanTransition(d.Status, delivery.StatusProcessing) {
		return Delivery{}, ErrAlreadyClaimed
	}
	d.Status = delivery.StatusProcessing
	d.UpdatedAt = m.now()
	return *d, nil
}

func (m *Memory) FinishDelivery(_ context.Context, id string, to delivery.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status != delivery.StatusProcessing || !delivery.CanTransition(d.Status, to) {
		return ErrAlreadyClaimed
	}
	d.Status = to
	d.UpdatedAt = m.now()
	t := at
	d.LastAttemptAt = &t
	return nil
}

func (m *Memory) AppendAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.nextAttemptID++
	a.ID = m.nextAttemptID
	a.Number = len(m.attempts[a.DeliveryID]) + 1
	if a.At.IsZero() {
		a.At = m.now()
	}
	m.attempts[a.DeliveryID] = append(m.attempts[a.DeliveryID], *a)
	return nil
}

func (m *Memory) NextAttemptNumber(_ context.Context, deliveryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	return len(m.attempts[deliveryID]) + 1, nil
}

func (m *Memory) Attempts(_ context.Context, deliveryID string) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]Attempt, len(m.attempts[deliveryID]))
	copy(out, m.attempts[deliveryID])
	return out, nil
}

func (m *Memory) RecentAttempts(_ context.Context, subscriptionID string, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []Attempt
	for id, atts := range m.attempts {
		d, ok := m.deliveries[id]
		if !ok || d.SubscriptionID != subscriptionID {
			continue
		}
		out = append(out, atts...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) staleByStatus(status delivery.Status, cutoff time.Time, limit int) []Delivery {
	var out []Delivery
	for _, d := range m.deliveries {
		if d.Status == status && d.UpdatedAt.Before(cutoff) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) StaleProcessing(_ context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.staleByStatus(delivery.StatusProcessing, cutoff, limit), nil
}

func (m *Memory) StalePending(_ context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.staleByStatus(delivery.StatusPending, cutoff, limit), nil
}

func (m *Memory) StaleRetrying(_ context.Context, cutoff time.Time, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.staleByStatus(delivery.StatusRetrying, cutoff, limit), nil
}

func (m *Memory) PurgeAttempts(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	var purged int64
	for id, atts := range m.attempts {
		kept := atts[:0]
		for _, a := range atts {
			if a.At.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(m.attempts, id)
			continue
		}
		m.attempts[id] = kept
	}
	return purged, nil
}

func (m *Memory) PurgeTerminalDeliveries(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	var purged int64
	for id, d := range m.deliveries {
		if d.Status.Terminal() && d.UpdatedAt.Before(cutoff) {
			delete(m.deliveries, id)
			delete(m.attempts, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) Stats(_ context.Context, since time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return Stats{}, err
	}
	st := Stats{TotalSubscriptions: len(m.subscriptions)}
	for _, d := range m.deliveries {
		if d.CreatedAt.Before(since) {
			continue
		}
		switch d.Status {
		case delivery.StatusSucceeded:
			st.RecentSucceeded++
		case delivery.StatusFailed:
			st.RecentFailed++
		}
	}
	return st, nil
}

func (m *Memory) RecentActivity(_ context.Context, limit int) ([]ActivityItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []ActivityItem
	for _, s := range m.subscriptions {
		out = append(out, ActivityItem{
			Type:    "subscription_created",
			ID:      s.ID,
			At:      s.CreatedAt,
			Details: "Subscribed: " + truncate(s.TargetURL, 50),
		})
	}
	for id, atts := range m.attempts {
		for _, a := range atts {
			out = append(out, ActivityItem{
				Type:    "delivery_attempt",
				ID:      strconv.FormatInt(a.ID, 10),
				At:      a.At,
				Details: "Delivery " + truncate(id, 8) + " attempt #" + strconv.Itoa(a.Number) + " - " + a.Outcome,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
