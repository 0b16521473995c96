// Package ingest is the ingestion gateway: it authenticates an inbound
// payload, persists the delivery, and enqueues its task. Acceptance is
// asynchronous; the caller gets a delivery id back long before the first
// attempt runs.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/cache"
	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/signature"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

// ErrInvalidPayload means the request body was not valid JSON.
var ErrInvalidPayload = errors.New("invalid payload")

type Service struct {
	store store.Store
	cache *cache.SubscriptionCache
	queue queue.Publisher
	log   *logging.Logger
}

func NewService(st store.Store, c *cache.SubscriptionCache, q queue.Publisher, log *logging.Logger) *Service {
	return &Service{store: st, cache: c, queue: q, log: log}
}

// Ingest validates and accepts one payload for subscriptionID.
//
// The subscription resolves through the cache; when it carries a secret the
// raw body is verified against sigHeader before anything is persisted. A
// failed enqueue after the row exists is deliberately not surfaced: the
// recovery sweep re-enqueues pending deliveries no worker has seen.
func (s *Service) Ingest(ctx context.Context, subscriptionID string, body []byte, sigHeader string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Ingest",
		attribute.String("subscription_id", subscriptionID),
	)
	defer span.End()

	sub, err := s.cache.Get(ctx, subscriptionID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		if errors.Is(err, store.ErrNotFound) {
			metrics.RecordIngest("not_found")
		} else {
			metrics.RecordIngest("store_error")
		}
		return "", err
	}

	if err := signature.Verify(sub.Secret, body, sigHeader); err != nil {
		tracing.SetSpanError(ctx, err)
		if errors.Is(err, signature.ErrMalformed) {
			metrics.RecordIngest("malformed")
		} else {
			metrics.RecordIngest("auth_failed")
		}
		return "", err
	}

	// Verified against the raw bytes; now require JSON before storing.
	if !json.Valid(body) {
		metrics.RecordIngest("malformed")
		return "", fmt.Errorf("%w: body is not valid JSON", ErrInvalidPayload)
	}

	d := &store.Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Payload:        body,
		Status:         delivery.StatusPending,
	}
	tracing.AddSpanEvent(ctx, "db.create_delivery")
	if err := s.store.CreateDelivery(ctx, d); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordIngest("store_error")
		return "", err
	}
	span.SetAttributes(attribute.String("delivery_id", d.ID))

	task := delivery.Task{
		DeliveryID:     d.ID,
		SubscriptionID: sub.ID,
		Attempt:        0,
		EnqueuedAt:     time.Now().UTC().Format(time.RFC3339),
		TraceHeaders:   tracing.PropagateTraceToTask(ctx),
	}
	tracing.AddSpanEvent(ctx, "queue.enqueue")
	if err := s.queue.Enqueue(ctx, task); err != nil {
		// The row is durable; the recovery sweep picks it up.
		tracing.SetSpanError(ctx, err)
		metrics.RecordIngest("queue_error")
		s.log.WithContext(ctx).WithDelivery(d.ID).WithSubscription(sub.ID).
			WithError(err).Error("enqueue failed, deferring to recovery sweep")
		return d.ID, nil
	}

	metrics.RecordIngest("accepted")
	return d.ID, nil
}

// DeliveryStatus is the read-only projection of one delivery and its
// attempt history.
type DeliveryStatus struct {
	Delivery store.Delivery  `json:"delivery"`
	Attempts []store.Attempt `json:"attempts"`
}

func (s *Service) DeliveryStatus(ctx context.Context, deliveryID string) (DeliveryStatus, error) {
	d, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return DeliveryStatus{}, err
	}
	attempts, err := s.store.Attempts(ctx, deliveryID)
	if err != nil {
		return DeliveryStatus{}, err
	}
	return DeliveryStatus{Delivery: d, Attempts: attempts}, nil
}

func (s *Service) RecentAttempts(ctx context.Context, subscriptionID string, limit int) ([]store.Attempt, error) {
	return s.store.RecentAttempts(ctx, subscriptionID, limit)
}

// Stats aggregates dashboard counters over the trailing 24 hours.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx, time.Now().UTC().Add(-24*time.Hour))
}

func (s *Service) RecentActivity(ctx context.Context, limit int) ([]store.ActivityItem, error) {
	return s.store.RecentActivity(ctx, limit)
}

// InvalidateSubscription is the onSubscriptionChanged hook for the
// management layer; it must complete before the mutation is acknowledged.
func (s *Service) InvalidateSubscription(id string) {
	s.cache.Invalidate(id)
}
