package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fundsync/internal/application"
	"fundsync/internal/config"
	"fundsync/internal/infrastructure/clickhouse"
	kafkainfra "fundsync/internal/infrastructure/kafka"
	"fundsync/internal/infrastructure/ledgerrpc"
	"fundsync/internal/infrastructure/logging"
	"fundsync/internal/infrastructure/mysql"
	"fundsync/internal/infrastructure/sqlite"
	"fundsync/internal/infrastructure/telemetry"
	"fundsync/internal/interfaces/httpapi"
	"fundsync/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/syncworker.log"
	}
	if _, err := logging.Init(logging.Config{
		Service:    "fundsync-syncworker",
		Level:      cfg.LogLevel,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}); err != nil {
		slog.Error("logger init error", "err", err)
	}

	if cfg.LedgerRPCURL == "" {
		slog.Error("LEDGER_RPC_URL is required for the sync worker")
		os.Exit(1)
	}
	ledger, err := ledgerrpc.NewClient(ledgerrpc.Config{
		URL:          cfg.LedgerRPCURL,
		PollInterval: cfg.ConfirmPollInterval,
	})
	if err != nil {
		slog.Error("ledger client error", "err", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("cache store error", "err", err)
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "fundsync-syncworker", cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	var audit application.AuditSink
	if cfg.ClickhouseDSN != "" {
		auditRepo, err := clickhouse.NewAuditRepository(cfg.ClickhouseDSN)
		if err != nil {
			slog.Warn("reconciliation audit disabled", "err", err)
		} else {
			defer auditRepo.Close()
			audit = auditRepo
		}
	}

	producer, err := kafkainfra.NewProducer(kafkainfra.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		slog.Error("kafka producer error", "err", err)
		os.Exit(1)
	}
	defer producer.Close()

	metrics := httpapi.NewMetrics()
	reconciler, err := application.NewReconciler(ledger, store, metrics, audit)
	if err != nil {
		slog.Error("reconciler error", "err", err)
		os.Exit(1)
	}
	service, err := application.NewService(ledger, reconciler, store, producer, metrics, application.ServiceConfig{
		ConfirmTimeout: cfg.ConfirmTimeout,
		SyncAttempts:   cfg.SyncAttempts,
		SyncBackoff:    cfg.SyncBackoff,
	})
	if err != nil {
		slog.Error("service error", "err", err)
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("sync worker started", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	consume(ctx, reader, producer, service, metrics, cfg.SyncAttempts)
	_ = reader.Close()
}

func consume(ctx context.Context, reader *kafka.Reader, producer *kafkainfra.Producer, service *application.Service, metrics *httpapi.Metrics, maxAttempts int) {
	tracer := otel.Tracer("fundsync/syncworker")

	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			slog.Warn("kafka fetch error", "err", err)
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "err", err)
			metrics.IncWorkerError()
			_ = reader.CommitMessages(ctx, message)
			continue
		}

		messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
		if !trace.SpanContextFromContext(messageCtx).IsValid() && decoded.TraceID != "" {
			if ctxWithTrace, ok := telemetry.ContextWithTraceID(messageCtx, decoded.TraceID); ok {
				messageCtx = ctxWithTrace
			}
		}
		messageCtx, span := tracer.Start(messageCtx, "syncworker.process_message", trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(
			attribute.String("message.type", string(decoded.Type)),
			attribute.Int("message.attempt", decoded.Attempt),
		)

		metrics.IncWorkerMessage()
		if err := apply(messageCtx, service, decoded); err != nil {
			metrics.IncWorkerError()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			requeue(messageCtx, producer, metrics, decoded, maxAttempts, err)
		}
		span.End()

		if err := reader.CommitMessages(ctx, message); err != nil {
			slog.Warn("kafka commit error", "err", err)
		}
	}
}

func apply(ctx context.Context, service *application.Service, msg streaming.Message) error {
	switch msg.Type {
	case streaming.MessageTypePendingSync:
		return service.ProcessPendingSync(ctx, msg.TxHash, msg.OwnerRef)
	case streaming.MessageTypeReconcile:
		return service.Reconcile(ctx, msg.CampaignID)
	default:
		return errors.New("unknown message type")
	}
}

// requeue re-publishes failed work with an incremented attempt counter, and
// drops it once the attempt budget is exhausted. Dropped work is counted so
// drift stays visible.
func requeue(ctx context.Context, producer *kafkainfra.Producer, metrics *httpapi.Metrics, msg streaming.Message, maxAttempts int, cause error) {
	if msg.Attempt >= maxAttempts {
		metrics.IncWorkerDropped()
		slog.Error("deferred sync dropped after max attempts",
			"type", msg.Type,
			"tx_hash", msg.TxHash,
			"campaign_id", msg.CampaignID,
			"attempts", msg.Attempt,
			"err", cause,
		)
		return
	}

	time.Sleep(time.Duration(msg.Attempt) * time.Second)
	var err error
	switch msg.Type {
	case streaming.MessageTypePendingSync:
		err = producer.PublishPendingSync(ctx, msg.TxHash, msg.OwnerRef, msg.Attempt+1)
	case streaming.MessageTypeReconcile:
		err = producer.PublishReconcile(ctx, msg.CampaignID, msg.Attempt+1)
	}
	if err != nil {
		metrics.IncWorkerDropped()
		slog.Error("deferred sync requeue failed", "type", msg.Type, "err", err)
	}
}

func openStore(cfg config.Config) (application.CacheStore, error) {
	if cfg.DBDSN != "" {
		base, err := mysql.NewStore(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		cached, err := mysql.NewCachedStore(base, mysql.CacheConfig{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("redis cache disabled", "err", err)
			return base, nil
		}
		return cached, nil
	}
	return sqlite.NewStore(cfg.SQLitePath)
}
