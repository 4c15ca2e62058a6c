package kafka

import (
	"context"
	"encoding/json"

	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return newProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// StatusPublisher writes parcel status events to one topic.
type StatusPublisher struct {
	p     *Producer
	topic string
}

func NewStatusPublisher(p *Producer, topic string) *StatusPublisher {
	return &StatusPublisher{p: p, topic: topic}
}

func (s *StatusPublisher) PublishStatusChanged(ctx context.Context, ev messages.ParcelStatusChanged) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal parcel status changed")
	}
	return s.p.Publish(ctx, s.topic, ev.Key(), b)
}
