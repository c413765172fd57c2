package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// LedgerRPCURL may be empty: the service then runs unconfigured, list
	// reads return empty and writes answer 503.
	LedgerRPCURL        string
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration

	DBDSN         string
	SQLitePath    string
	RedisAddr     string
	ClickhouseDSN string

	HTTPAddr     string
	OtelEndpoint string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	SyncAttempts int
	SyncBackoff  time.Duration

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	rpcURL, _ := source.Lookup("LEDGER_RPC_URL")
	rpcURL = strings.TrimSpace(rpcURL)

	confirmPollInterval, err := parseDurationEnv(source, "CONFIRM_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	confirmTimeout, err := parseDurationEnv(source, "CONFIRM_TIMEOUT", 90*time.Second)
	if err != nil {
		return Config{}, err
	}

	dbDSN, _ := source.Lookup("DB_DSN")
	dbDSN = strings.TrimSpace(dbDSN)

	sqlitePath := "data/fundsync.db"
	if raw, ok := source.Lookup("SQLITE_PATH"); ok && strings.TrimSpace(raw) != "" {
		sqlitePath = strings.TrimSpace(raw)
	}

	redisAddr := ""
	if raw, ok := source.Lookup("REDIS_ADDR"); ok {
		redisAddr = strings.TrimSpace(raw)
	}

	clickhouseDSN, _ := source.Lookup("CLICKHOUSE_DSN")
	clickhouseDSN = strings.TrimSpace(clickhouseDSN)

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelEndpoint = strings.TrimSpace(otelEndpoint)

	kafkaBrokers, err := parseList(source, "KAFKA_BROKERS", "localhost:9092")
	if err != nil {
		return Config{}, err
	}
	kafkaTopic, ok := source.Lookup("KAFKA_TOPIC")
	if !ok || kafkaTopic == "" {
		kafkaTopic = "fundsync-reconcile"
	}
	kafkaGroupID, ok := source.Lookup("KAFKA_GROUP_ID")
	if !ok || kafkaGroupID == "" {
		kafkaGroupID = "fundsync-syncworker"
	}

	syncAttempts, err := parseIntEnv(source, "SYNC_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	syncBackoff, err := parseDurationEnv(source, "SYNC_BACKOFF", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}

	logLevel, _ := source.Lookup("LOG_LEVEL")
	logFile, _ := source.Lookup("LOG_FILE")
	logMaxSizeMB, err := parseIntEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseIntEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		LedgerRPCURL:        rpcURL,
		ConfirmPollInterval: confirmPollInterval,
		ConfirmTimeout:      confirmTimeout,
		DBDSN:               dbDSN,
		SQLitePath:          sqlitePath,
		RedisAddr:           redisAddr,
		ClickhouseDSN:       clickhouseDSN,
		HTTPAddr:            httpAddr,
		OtelEndpoint:        otelEndpoint,
		KafkaBrokers:        kafkaBrokers,
		KafkaTopic:          kafkaTopic,
		KafkaGroupID:        kafkaGroupID,
		SyncAttempts:        syncAttempts,
		SyncBackoff:         syncBackoff,
		LogLevel:            logLevel,
		LogFile:             logFile,
		LogMaxSizeMB:        logMaxSizeMB,
		LogMaxBackups:       logMaxBackups,
	}, nil
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseList(source EnvSource, key string, defaultValue string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	items := strings.Split(raw, ",")
	var values []string
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return values, nil
}
