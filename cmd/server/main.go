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
	"fundsync/internal/infrastructure/kafka"
	"fundsync/internal/infrastructure/ledgerrpc"
	"fundsync/internal/infrastructure/logging"
	"fundsync/internal/infrastructure/mysql"
	"fundsync/internal/infrastructure/sqlite"
	"fundsync/internal/infrastructure/telemetry"
	"fundsync/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/server.log"
	}
	if _, err := logging.Init(logging.Config{
		Service:    "fundsync-server",
		Level:      cfg.LogLevel,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}); err != nil {
		slog.Error("logger init error", "err", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("cache store error", "err", err)
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "fundsync-server", cfg.OtelEndpoint)
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

	// The ledger client is an explicit optional dependency: without a URL
	// the service runs unconfigured, list reads answer empty and writes 503.
	var ledger application.LedgerClient
	if cfg.LedgerRPCURL != "" {
		client, err := ledgerrpc.NewClient(ledgerrpc.Config{
			URL:          cfg.LedgerRPCURL,
			PollInterval: cfg.ConfirmPollInterval,
		})
		if err != nil {
			slog.Error("ledger client error", "err", err)
			os.Exit(1)
		}
		probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if count, err := client.CampaignCount(probeCtx); err != nil {
			slog.Warn("ledger probe failed, reads will degrade until reachable", "err", err)
		} else {
			slog.Info("ledger reachable", "campaign_count", count)
		}
		cancel()
		ledger = client
	} else {
		slog.Warn("LEDGER_RPC_URL not set, running unconfigured")
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

	var queue application.SyncQueue
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	})
	if err != nil {
		slog.Warn("sync queue disabled", "err", err)
	} else {
		defer producer.Close()
		queue = producer
	}

	metrics := httpapi.NewMetrics()
	reconciler, err := application.NewReconciler(ledger, store, metrics, audit)
	if err != nil {
		slog.Error("reconciler error", "err", err)
		os.Exit(1)
	}
	service, err := application.NewService(ledger, reconciler, store, queue, metrics, application.ServiceConfig{
		ConfirmTimeout: cfg.ConfirmTimeout,
		SyncAttempts:   cfg.SyncAttempts,
		SyncBackoff:    cfg.SyncBackoff,
	})
	if err != nil {
		slog.Error("service error", "err", err)
		os.Exit(1)
	}

	httpServer, err := httpapi.NewServer(service, store, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("http server listening", "addr", cfg.HTTPAddr, "configured", service.Configured())
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server stopped", "err", err)
		os.Exit(1)
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
