package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatapp/internal/jsonapi"
	"github.com/npezzotti/go-chatapp/internal/types"
	"github.com/segmentio/kafka-go"
)

// MessageCreated is exported for every message pushed to sockets.
type MessageCreated struct {
	jsonapi.Event
	ConversationAuthor string `json:"conversationAuthor"`
}

func NewMessageCreated(conversationId, conversationAuthor string, m types.Message) MessageCreated {
	return MessageCreated{
		Event:              jsonapi.NewMessageCreatedEvent(conversationId, m),
		ConversationAuthor: conversationAuthor,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev MessageCreated) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, MessageCreated) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev MessageCreated) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", ev.Event.Event, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// encode keys messages by conversation id so one conversation's events stay
// on a single partition, in order.
func encode(ev MessageCreated) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.ConversationId),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Event.Event)},
		},
	}, nil
}
