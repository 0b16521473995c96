// Package store is the durable record of subscriptions, deliveries and
// their attempt history. All state transitions go through conditional
// updates keyed on the expected prior status, which is what makes
// concurrent claims safe without external locking.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hookline/hookline/internal/delivery"
)

var (
	// ErrNotFound: unknown subscription or delivery id.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClaimed: the conditional claim matched no row because
	// another worker holds it.
	ErrAlreadyClaimed = errors.New("delivery already claimed")
	// ErrTerminal: the delivery reached succeeded/failed; late retries
	// are no-ops.
	ErrTerminal = errors.New("delivery in terminal state")
	// ErrUnavailable wraps driver or network failures from the
	// persistence layer. Ingestion fails closed on it.
	ErrUnavailable = errors.New("store unavailable")
)

// Subscription is the engine's read-only view of a registered endpoint.
type Subscription struct {
	ID        string
	TargetURL string
	Secret    string // empty: payloads accepted unsigned
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delivery is one payload destined for one subscription's endpoint.
// Payload is opaque and immutable after creation.
type Delivery struct {
	ID             string
	SubscriptionID string
	Payload        []byte
	Status         delivery.Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAttemptAt  *time.Time
}

// Attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Attempt is one concrete network try to fulfil a delivery. Append-only.
type Attempt struct {
	ID           int64
	DeliveryID   string
	Number       int // 1-based, gapless per delivery
	At           time.Time
	Outcome      string
	StatusCode   *int
	ResponseBody *string
	ErrorMessage *string
}

// Stats is the aggregate dashboard projection.
type Stats struct {
	TotalSubscriptions int `json:"total_subscriptions"`
	RecentSucceeded    int `json:"recent_success_count"`
	RecentFailed       int `json:"recent_failed_count"`
}

// ActivityItem is one entry of the merged recent-activity feed.
type ActivityItem struct {
	Type    string    `json:"type"` // subscription_created, delivery_attempt
	ID      string    `json:"id"`
	At      time.Time `json:"timestamp"`
	Details string    `json:"details"`
}

// Store is the narrow persistence interface the engine consumes.
type Store interface {
	GetSubscription(ctx context.Context, id string) (Subscription, error)

	// CreateDelivery persists d. Caller sets ID, SubscriptionID, Payload
	// and Status (pending); the store stamps CreatedAt/UpdatedAt.
	CreateDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id string) (Delivery, error)

	// ClaimDelivery is the exclusive claim: pending|retrying -> processing.
	// Exactly one concurrent caller wins; losers get ErrAlreadyClaimed,
	// or ErrTerminal when the row already finished.
	ClaimDelivery(ctx context.Context, id string) (Delivery, error)

	// FinishDelivery is the conditional transition processing -> to.
	// Returns ErrAlreadyClaimed if the row is not in processing.
	FinishDelivery(ctx context.Context, id string, to delivery.Status, at time.Time) error

	// AppendAttempt stores a and assigns its gapless 1-based Number and
	// its ID. Safe because the claim is exclusive per delivery.
	AppendAttempt(ctx context.Context, a *Attempt) error
	NextAttemptNumber(ctx context.Context, deliveryID string) (int, error)
	Attempts(ctx context.Context, deliveryID string) ([]Attempt, error)
	RecentAttempts(ctx context.Context, subscriptionID string, limit int) ([]Attempt, error)

	// Recovery sweep scans. Cutoff compares against UpdatedAt.
	StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error)
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error)
	StaleRetrying(ctx context.Context, cutoff time.Time, limit int) ([]Delivery, error)

	// Retention. Both are idempotent range deletes on age.
	PurgeAttempts(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeTerminalDeliveries(ctx context.Context, cutoff time.Time) (int64, error)

	Stats(ctx context.Context, since time.Time) (Stats, error)
	RecentActivity(ctx context.Context, limit int) ([]ActivityItem, error)
}
