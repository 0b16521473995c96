// Package worker executes delivery tasks: claim, outbound POST, outcome
// classification, attempt bookkeeping, and retry scheduling.
package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/hookline/internal/cache"
	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/ingest"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

// Outbound signing headers: HMAC-SHA256 over body||timestamp with the
// subscription secret, so receivers can authenticate us the same way we
// authenticate producers.
const (
	SignatureHeader = "X-Hookline-Signature" // sha256=<hex>
	TimestampHeader = "X-Hookline-Timestamp" // unix seconds
)

// Policy is the slice of engine configuration the processor needs.
type Policy struct {
	MaxRetries        int
	Backoff           BackoffPolicy
	ResponseBodyLimit int64
}

// Disposition tells the transport what to do with the consumed message.
type Disposition struct {
	Requeue bool
	Delay   time.Duration
}

var finish = Disposition{}

func requeueAfter(d time.Duration) Disposition {
	return Disposition{Requeue: true, Delay: d}
}

type Processor struct {
	store  store.Store
	cache  *cache.SubscriptionCache
	client *http.Client
	policy Policy
	log    *logging.Logger
	now    func() time.Time
}

func NewProcessor(st store.Store, c *cache.SubscriptionCache, client *http.Client, policy Policy, log *logging.Logger) *Processor {
	return &Processor{
		store:  st,
		cache:  c,
		client: client,
		policy: policy,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for deterministic tests.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Process runs one attempt for the task's delivery.
//
// The claim is the concurrency control: a conditional pending|retrying ->
// processing transition in the store. A lost race, a terminal row, or a
// vanished row all finish the message without side effects, which is what
// makes queue redelivery and late retry messages harmless.
func (p *Processor) Process(ctx context.Context, t delivery.Task) (Disposition, error) {
	ctx, span := tracing.StartSpan(ctx, "worker.delivery",
		attribute.String("delivery_id", t.DeliveryID),
		attribute.String("subscription_id", t.SubscriptionID),
	)
	defer span.End()

	tracing.AddSpanEvent(ctx, "db.claim_delivery")
	d, err := p.store.ClaimDelivery(ctx, t.DeliveryID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrTerminal), errors.Is(err, store.ErrAlreadyClaimed):
		p.log.WithContext(ctx).WithDelivery(t.DeliveryID).
			WithField("reason", err.Error()).Debug("skipping delivery")
		return finish, nil
	case errors.Is(err, store.ErrNotFound):
		p.log.WithContext(ctx).WithDelivery(t.DeliveryID).Warn("delivery not found, dropping task")
		return finish, nil
	default:
		// Store down: leave the claim unmade and retry the message soon.
		tracing.SetSpanError(ctx, err)
		return requeueAfter(p.policy.Backoff.Initial), err
	}

	attemptNumber, err := p.store.NextAttemptNumber(ctx, d.ID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return requeueAfter(p.policy.Backoff.Initial), err
	}
	span.SetAttributes(attribute.Int("attempt", attemptNumber))

	// Resolve through the cache so a URL change takes effect on this
	// attempt.
	sub, err := p.cache.Get(ctx, d.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Subscription deleted underneath us: permanent.
			msg := "subscription no longer exists"
			p.record(ctx, d, attemptNumber, store.Attempt{
				Outcome:      store.OutcomeFailure,
				ErrorMessage: &msg,
			}, delivery.StatusFailed)
			return finish, nil
		}
		tracing.SetSpanError(ctx, err)
		return requeueAfter(p.policy.Backoff.Initial), err
	}

	status, body, latency, doErr := p.post(ctx, sub, d)
	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	attempt := store.Attempt{Outcome: store.OutcomeFailure}
	if doErr != nil {
		msg := doErr.Error()
		attempt.ErrorMessage = &msg
	} else {
		sc := status
		attempt.StatusCode = &sc
		if body != "" {
			b := body
			attempt.ResponseBody = &b
		}
	}

	switch delivery.Classify(doErr, status) {
	case delivery.ClassSuccess:
		attempt.Outcome = store.OutcomeSuccess
		p.record(ctx, d, attemptNumber, attempt, delivery.StatusSucceeded)
		metrics.RecordDelivery("succeeded", latency)
		p.log.WithContext(ctx).WithDelivery(d.ID).WithSubscription(sub.ID).
			WithField("status_code", status).Info("delivery succeeded")
		return finish, nil

	case delivery.ClassPermanent:
		if doErr == nil {
			msg := fmt.Sprintf("target rejected payload with status %d", status)
			attempt.ErrorMessage = &msg
		}
		p.record(ctx, d, attemptNumber, attempt, delivery.StatusFailed)
		metrics.RecordDelivery("failed", latency)
		p.log.WithContext(ctx).WithDelivery(d.ID).WithSubscription(sub.ID).
			WithField("status_code", status).Warn("delivery failed permanently")
		return finish, nil

	default: // retryable
		reason := delivery.Reason(doErr, status)
		span.SetAttributes(attribute.String("failure_reason", reason))
		metrics.RecordRetry(reason)

		if attemptNumber >= p.policy.MaxRetries {
			p.record(ctx, d, attemptNumber, attempt, delivery.StatusFailed)
			metrics.RecordDelivery("failed", latency)
			p.log.WithContext(ctx).WithDelivery(d.ID).WithSubscription(sub.ID).
				WithField("attempts", attemptNumber).Warn("retries exhausted, delivery failed")
			return finish, nil
		}

		p.record(ctx, d, attemptNumber, attempt, delivery.StatusRetrying)
		metrics.RecordDelivery("retrying", latency)
		delay := p.policy.Backoff.Delay(attemptNumber)
		tracing.AddSpanEvent(ctx, "delivery.requeue",
			attribute.Int("attempt", attemptNumber),
			attribute.String("delay", delay.String()),
		)
		p.log.WithContext(ctx).WithDelivery(d.ID).WithSubscription(sub.ID).WithFields(map[string]any{
			"attempt": attemptNumber,
			"reason":  reason,
			"delay":   delay.String(),
		}).Info("requeue delivery")
		return requeueAfter(delay), nil
	}
}

// post performs the single outbound HTTP call for this attempt.
func (p *Processor) post(ctx context.Context, sub store.Subscription, d store.Delivery) (status int, body string, latency time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ingest.DeliveryIDHeader, d.ID)

	if sub.Secret != "" {
		ts := strconv.FormatInt(p.now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(sub.Secret))
		mac.Write(d.Payload)
		mac.Write([]byte(ts))
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	tracing.AddSpanEvent(ctx, "http.send_webhook")
	resp, doErr := p.client.Do(req)
	latency = time.Since(start)
	if doErr != nil {
		return 0, "", latency, doErr
	}
	defer resp.Body.Close()

	// Cap what we keep; one byte past the limit tells us to truncate.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, p.policy.ResponseBodyLimit+1))
	if int64(len(raw)) > p.policy.ResponseBodyLimit {
		raw = raw[:p.policy.ResponseBodyLimit]
	}
	return resp.StatusCode, string(raw), latency, nil
}

// record appends the attempt and drives the conditional transition out of
// processing. Invariant: every transition out of processing carries exactly
// one attempt row.
func (p *Processor) record(ctx context.Context, d store.Delivery, number int, a store.Attempt, to delivery.Status) {
	a.DeliveryID = d.ID
	a.At = p.now()
	if err := p.store.AppendAttempt(ctx, &a); err != nil {
		tracing.SetSpanError(ctx, err)
		p.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("append attempt failed")
	} else if a.Number != number {
		// The store assigns numbers; a mismatch means another writer got
		// in despite the claim. Log loudly, keep the stored number.
		p.log.WithContext(ctx).WithDelivery(d.ID).WithFields(map[string]any{
			"expected": number,
			"stored":   a.Number,
		}).Warn("attempt number drift")
	}
	if err := p.store.FinishDelivery(ctx, d.ID, to, a.At); err != nil {
		tracing.SetSpanError(ctx, err)
		p.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Errorf("transition to %s failed", to)
	}
}
