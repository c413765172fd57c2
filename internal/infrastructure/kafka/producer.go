package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"fundsync/internal/infrastructure/telemetry"
	"fundsync/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes deferred-sync work to the reconciliation topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = "fundsync-reconcile"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishPendingSync(ctx context.Context, txHash, ownerRef string, attempt int) error {
	return p.publish(ctx, streaming.Message{
		Type:     streaming.MessageTypePendingSync,
		TxHash:   txHash,
		OwnerRef: ownerRef,
		Attempt:  attempt,
	}, []byte(txHash))
}

func (p *Producer) PublishReconcile(ctx context.Context, campaignID uint64, attempt int) error {
	return p.publish(ctx, streaming.Message{
		Type:       streaming.MessageTypeReconcile,
		CampaignID: campaignID,
		Attempt:    attempt,
	}, campaignKey(campaignID))
}

// publish keys messages so that all work for one campaign or transaction
// lands on one partition and is applied in order.
func (p *Producer) publish(ctx context.Context, msg streaming.Message, key []byte) error {
	tracer := otel.Tracer("fundsync/kafka")

	spanCtx := ctx
	if !trace.SpanContextFromContext(ctx).IsValid() {
		if traceID, traceIDHex, ok := telemetry.NewTraceID(); ok {
			msg.TraceID = traceIDHex
			if sc, ok := telemetry.NewSpanContext(traceID); ok {
				spanCtx = trace.ContextWithSpanContext(ctx, sc)
			}
		}
	}

	spanCtx, span := tracer.Start(spanCtx, "kafka.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("message.type", string(msg.Type)),
		attribute.String("messaging.destination", p.topic),
	)

	payload, err := streaming.Encode(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	kafkaMsg := kafka.Message{Key: key, Value: payload}
	telemetry.InjectKafkaHeaders(spanCtx, &kafkaMsg.Headers)

	if err := p.writer.WriteMessages(spanCtx, kafkaMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func campaignKey(campaignID uint64) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(campaignID)
		campaignID >>= 8
	}
	return key
}
