package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

// NewConsumer reads topic as part of groupID, or the whole topic from
// partition 0 when groupID is empty.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler and commits it once handler
// succeeds. A handler error stops the loop with the message uncommitted.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeStatusChanges decodes parcel status events. Undecodable messages
// are logged and committed so they cannot block the partition.
func (c *Consumer) ConsumeStatusChanges(ctx context.Context, handler func(ctx context.Context, ev messages.ParcelStatusChanged) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		ev, err := messages.DecodeParcelStatusChanged(value)
		if err != nil {
			slog.Warn("skip bad parcel status event", "key", string(key), "error", err.Error())
			return nil
		}
		return handler(ctx, ev)
	})
}
