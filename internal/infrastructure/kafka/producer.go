package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ticket-shotgun/internal/infrastructure/store"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events. Messages are keyed by order id so the
// events of one order stay in one partition, in order.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer}
}

// Emit implements store.EventSink.
func (p *Producer) Emit(ctx context.Context, event store.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s %s: %w", event.EventType, event.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// DecodeEvent parses a message value written by Producer.
func DecodeEvent(value []byte) (store.Event, error) {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return store.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.ID == "" || event.EventType == "" {
		return store.Event{}, fmt.Errorf("decode event: missing id or type")
	}
	return event, nil
}
