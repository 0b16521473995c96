package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/store"
)

// recordingDelegate captures the consumer response for a message.
type recordingDelegate struct {
	finished int
	requeued int
	delay    time.Duration
}

func (d *recordingDelegate) OnFinish(*nsq.Message) { d.finished++ }
func (d *recordingDelegate) OnRequeue(_ *nsq.Message, delay time.Duration, _ bool) {
	d.requeued++
	d.delay = delay
}
func (d *recordingDelegate) OnTouch(*nsq.Message) {}

func newMessage(t *testing.T, body []byte) (*nsq.Message, *recordingDelegate) {
	t.Helper()
	m := nsq.NewMessage(nsq.MessageID{}, body)
	d := &recordingDelegate{}
	m.Delegate = d
	return m, d
}

func TestNSQHandlerSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := store.NewMemory()
	task := seed(t, st, ts.URL, "")
	p := newProcessor(t, st, testPolicy())
	handler := NSQHandler(p, logging.New("test"))

	body, _ := json.Marshal(task)
	m, d := newMessage(t, body)

	if err := handler(m); err != nil {
		t.Fatalf("handler unexpected error: %v", err)
	}
	if d.finished != 1 || d.requeued != 0 {
		t.Errorf("responses = %d finish / %d requeue, want 1 / 0", d.finished, d.requeued)
	}

	got, _ := st.GetDelivery(context.Background(), task.DeliveryID)
	if got.Status != delivery.StatusSucceeded {
		t.Errorf("delivery status = %s, want succeeded", got.Status)
	}
}

func TestNSQHandlerRequeuesRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	st := store.NewMemory()
	task := seed(t, st, ts.URL, "")
	p := newProcessor(t, st, testPolicy())
	handler := NSQHandler(p, logging.New("test"))

	body, _ := json.Marshal(task)
	m, d := newMessage(t, body)

	if err := handler(m); err != nil {
		t.Fatalf("handler unexpected error: %v", err)
	}
	if d.requeued != 1 {
		t.Fatalf("requeued = %d, want 1", d.requeued)
	}
	if d.delay != testPolicy().Backoff.Initial {
		t.Errorf("requeue delay = %v, want first backoff step", d.delay)
	}
}

func TestNSQHandlerBadPayload(t *testing.T) {
	st := store.NewMemory()
	p := newProcessor(t, st, testPolicy())
	handler := NSQHandler(p, logging.New("test"))

	m, d := newMessage(t, []byte("not json"))

	if err := handler(m); err != nil {
		t.Fatalf("handler unexpected error: %v", err)
	}
	// Bad payloads are finished, never requeued: redelivery cannot fix them.
	if d.finished != 1 || d.requeued != 0 {
		t.Errorf("responses = %d finish / %d requeue, want 1 / 0", d.finished, d.requeued)
	}
}
