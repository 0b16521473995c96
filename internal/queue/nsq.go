package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/delivery"
)

// NSQ publishes delivery tasks to an nsqd topic. DeferredPublish backs
// EnqueueAfter, so delayed re-enqueues need no scheduler of our own.
type NSQ struct {
	prod  *nsq.Producer
	topic string
}

func NewNSQ(nsqdTCPAddr, topic string) (*NSQ, error) {
	prod, err := nsq.NewProducer(nsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &NSQ{prod: prod, topic: topic}, nil
}

func (q *NSQ) Enqueue(_ context.Context, t delivery.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.prod.Publish(q.topic, b)
}

func (q *NSQ) EnqueueAfter(_ context.Context, t delivery.Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(context.Background(), t)
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.prod.DeferredPublish(q.topic, delay, b)
}

// Stop flushes and stops the underlying producer.
func (q *NSQ) Stop() {
	q.prod.Stop()
}
