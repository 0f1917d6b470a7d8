package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher forwards dispatch events to Kafka, keyed by tenant so a tenant's events
// stay ordered within a partition.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewPublisher(writer MessageWriter, log logrus.FieldLogger) *Publisher {
	return &Publisher{writer: writer, timeout: 2 * time.Second, log: log}
}

func (p *Publisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(e.TenantID),
		Value: b,
		Time:  e.At,
	})
}

// Run publishes events until ctx is done or the channel closes. Publish failures
// are logged and the event is dropped.
func (p *Publisher) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, e); err != nil {
				p.log.WithError(err).WithFields(logrus.Fields{
					"tenant_id": e.TenantID,
					"job_id":    e.JobID,
					"type":      e.Type,
				}).Warn("publish dispatch event failed")
			}
		}
	}
}
