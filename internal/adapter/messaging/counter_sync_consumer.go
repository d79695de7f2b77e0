package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

// MessageReader is the subset of *kafka.Reader used by the consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StockEventApplier receives decoded stock events.
type StockEventApplier interface {
	Apply(ctx context.Context, event domain.StockChanged) error
}

func NewStockReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// CounterSyncConsumer feeds StockChanged events from Kafka into the cache
// counter. Offsets are committed only after the counter was written, so an
// event is retried until it applies or is found to be malformed.
type CounterSyncConsumer struct {
	reader     MessageReader
	applier    StockEventApplier
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewCounterSyncConsumer(reader MessageReader, applier StockEventApplier, logger *zap.Logger) *CounterSyncConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterSyncConsumer{
		reader:     reader,
		applier:    applier,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (c *CounterSyncConsumer) Run(ctx context.Context) error {
	c.logger.Info("counter sync consumer started")
	defer c.logger.Info("counter sync consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *CounterSyncConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event domain.StockChanged
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("dropping malformed stock event",
			zap.ByteString("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return c.commit(ctx, msg)
	}

	msgCtx := extractTraceContext(ctx, msg.Headers)
	for {
		err := c.applier.Apply(msgCtx, event)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrInvalidStockID) {
			c.logger.Error("dropping stock event without stock id",
				zap.String("event_id", event.EventID),
				zap.Int64("offset", msg.Offset))
			break
		}

		c.logger.Warn("failed to apply stock event, retrying",
			zap.String("event_id", event.EventID),
			zap.Int64("stock_id", int64(event.StockID)),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retryDelay):
		}
	}

	c.logger.Debug("stock event applied",
		zap.String("event_id", event.EventID),
		zap.Int64("stock_id", int64(event.StockID)),
		zap.Int64("version", event.Version))
	return c.commit(ctx, msg)
}

func (c *CounterSyncConsumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func (c *CounterSyncConsumer) Close() error {
	return c.reader.Close()
}
