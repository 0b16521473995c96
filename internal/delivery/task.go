package delivery

// Task is the queue message referencing a persisted delivery. The store is
// the source of truth; the task carries only what a worker needs to claim
// the row plus trace propagation headers. Attempt is informational (the last
// recorded attempt number at publish time): the store assigns real attempt
// numbers at append time, so redelivered or recovered tasks cannot skew the
// sequence.
type Task struct {
	DeliveryID     string            `json:"delivery_id"`
	SubscriptionID string            `json:"subscription_id"`
	Attempt        int               `json:"attempt"`
	EnqueuedAt     string            `json:"enqueued_at"` // RFC3339
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
}
