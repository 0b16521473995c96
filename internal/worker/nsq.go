package worker

import (
	"context"
	"encoding/json"

	"github.com/nsqio/go-nsq"

	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/tracing"
)

// NSQHandler adapts the processor to an NSQ consumer. Responses are manual:
// the disposition maps onto Finish or Requeue(delay), so NSQ's own retry
// machinery never fights the backoff policy.
func NSQHandler(p *Processor, log *logging.Logger) nsq.HandlerFunc {
	return func(m *nsq.Message) error {
		m.DisableAutoResponse()
		defer func() {
			if !m.HasResponded() {
				log.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var t delivery.Task
		if err := json.Unmarshal(m.Body, &t); err != nil {
			// Terminal: a bad payload never improves on redelivery.
			log.Plain().WithError(err).Error("bad task payload")
			m.Finish()
			return nil
		}

		ctx := tracing.ExtractTraceFromTask(context.Background(), t.TraceHeaders)
		disp, err := p.Process(ctx, t)
		if err != nil {
			log.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("process task")
		}
		if disp.Requeue {
			m.Requeue(disp.Delay)
			return nil
		}
		m.Finish()
		return nil
	}
}
