package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bankdapp/internal/infrastructure/telemetry"
	"bankdapp/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	retryDelay     = 500 * time.Millisecond
	handleAttempts = 3
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Handler receives one decoded activity message. A failing message is
// retried in place and, after the last attempt, committed and dropped.
type Handler func(ctx context.Context, msg streaming.Message) error

type Consumer struct {
	reader messageReader
	delay  time.Duration
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = "bankdapp-activity"
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, delay: retryDelay}, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run fetches until ctx is done. Undecodable messages are committed and
// skipped. Offsets only advance past a message once it is handled or dropped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("kafka fetch error", "err", err)
			if err := c.wait(ctx); err != nil {
				return err
			}
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("activity decode error", "offset", message.Offset, "err", err)
			c.commit(ctx, message)
			continue
		}

		for attempt := 1; ; attempt++ {
			err = c.handle(ctx, message, decoded, handle)
			if err == nil {
				break
			}
			if attempt == handleAttempts {
				slog.Error("dropping activity message", "id", decoded.ID, "offset", message.Offset, "attempts", attempt, "err", err)
				break
			}
			slog.Warn("activity handler error", "id", decoded.ID, "attempt", attempt, "err", err)
			if err := c.wait(ctx); err != nil {
				return err
			}
		}
		c.commit(ctx, message)
	}
}

func (c *Consumer) handle(ctx context.Context, message kafka.Message, decoded streaming.Message, handle Handler) error {
	ctx = telemetry.ActivityContext(ctx, message.Headers, decoded.TraceID)
	ctx, span := otel.Tracer("bankdapp/kafka").Start(ctx, "activity.consume", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("activity.type", string(decoded.Type)),
		attribute.String("activity.outcome", string(decoded.Outcome)),
		attribute.Int64("messaging.kafka.offset", message.Offset),
	)
	if err := handle(ctx, decoded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Consumer) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.delay):
		return nil
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil && ctx.Err() == nil {
		slog.Error("kafka commit error", "offset", message.Offset, "err", err)
	}
}
