package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

const DefaultStockTopic = "inventory.stock-changed"

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewStockWriter returns a writer that hashes on the message key so every
// event of one product lands on the same partition and stays ordered.
func NewStockWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

type KafkaStockEventPublisher struct {
	writer MessageWriter
}

func NewKafkaStockEventPublisher(writer MessageWriter) *KafkaStockEventPublisher {
	return &KafkaStockEventPublisher{writer: writer}
}

func (p *KafkaStockEventPublisher) Publish(ctx context.Context, event domain.StockChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(int64(event.ProductID), 10)),
		Value:   payload,
		Headers: injectTraceContext(ctx),
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write stock event: %w", err)
	}
	return nil
}

func (p *KafkaStockEventPublisher) Close() error {
	return p.writer.Close()
}

func injectTraceContext(ctx context.Context) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

func extractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
