package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	RPCURL              string
	RPCTimeout          time.Duration
	ContractAddress     common.Address
	ContractABIFile     string
	ChainID             uint64
	WalletPrivateKey    string
	WalletKeystore      string
	WalletPassword      string
	WalletAutoConnect   bool
	LogFromBlock        uint64
	LogWindowBlocks     uint64
	LogChunkSize        uint64
	LogCacheDepth       uint64
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	NotifyDuration      time.Duration
	HTTPAddr            string
	RedisAddr           string
	CacheTTL            time.Duration
	EventStoreDriver    string
	EventStoreDSN       string
	KafkaBrokers        []string
	KafkaTopic          string
	KafkaGroupID        string
	OtelEndpoint        string
	LogLevel            string
	LogFormat           string
	LogFile             string
	LogMaxSizeMB        int
	LogMaxBackups       int
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

	rpcURL, ok := source.Lookup("RPC_URL")
	if !ok || strings.TrimSpace(rpcURL) == "" {
		return Config{}, errors.New("RPC_URL is required")
	}

	rawAddress, _ := source.Lookup("CONTRACT_ADDRESS")
	rawAddress = strings.TrimSpace(rawAddress)
	if rawAddress == "" {
		return Config{}, errors.New("CONTRACT_ADDRESS is required")
	}
	if !common.IsHexAddress(rawAddress) {
		return Config{}, fmt.Errorf("invalid CONTRACT_ADDRESS: %s", rawAddress)
	}

	chainID, err := parseUintEnv(source, "CHAIN_ID", 0)
	if err != nil {
		return Config{}, err
	}
	logFromBlock, err := parseUintEnv(source, "LOG_FROM_BLOCK", 0)
	if err != nil {
		return Config{}, err
	}
	logWindowBlocks, err := parseUintEnv(source, "LOG_WINDOW_BLOCKS", 0)
	if err != nil {
		return Config{}, err
	}
	logChunkSize, err := parseUintEnv(source, "LOG_CHUNK_SIZE", 0)
	if err != nil {
		return Config{}, err
	}
	logCacheDepth, err := parseUintEnv(source, "LOG_CACHE_DEPTH", 64)
	if err != nil {
		return Config{}, err
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	rpcTimeout, err := parseDurationEnv(source, "RPC_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	receiptPoll, err := parseDurationEnv(source, "RECEIPT_POLL_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}
	receiptTimeout, err := parseDurationEnv(source, "RECEIPT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}
	notifyDuration, err := parseDurationEnv(source, "NOTIFY_DURATION", 4*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDurationEnv(source, "CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}

	autoConnect, err := parseBoolEnv(source, "WALLET_AUTO_CONNECT", false)
	if err != nil {
		return Config{}, err
	}

	privateKey, _ := source.Lookup("WALLET_PRIVATE_KEY")
	keystore, _ := source.Lookup("WALLET_KEYSTORE")
	password, _ := source.Lookup("WALLET_PASSWORD")
	abiFile, _ := source.Lookup("CONTRACT_ABI_FILE")

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	redisAddr, _ := source.Lookup("REDIS_ADDR")
	redisAddr = strings.TrimSpace(redisAddr)

	storeDriver := "sqlite"
	if raw, ok := source.Lookup("EVENT_STORE_DRIVER"); ok && strings.TrimSpace(raw) != "" {
		storeDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	switch storeDriver {
	case "sqlite", "mysql", "none":
	default:
		return Config{}, fmt.Errorf("invalid EVENT_STORE_DRIVER: %s", storeDriver)
	}
	storeDSN, ok := source.Lookup("EVENT_STORE_DSN")
	if !ok || strings.TrimSpace(storeDSN) == "" {
		if storeDriver == "mysql" {
			storeDSN = "root:@tcp(127.0.0.1:3306)/bankdapp?parseTime=true"
		} else {
			storeDSN = ":memory:"
		}
	}

	kafkaBrokers := parseList(source, "KAFKA_BROKERS")
	kafkaTopic, ok := source.Lookup("KAFKA_TOPIC")
	if !ok || kafkaTopic == "" {
		kafkaTopic = "bankdapp-activity"
	}
	kafkaGroupID, _ := source.Lookup("KAFKA_GROUP_ID")

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelEndpoint = strings.TrimSpace(otelEndpoint)

	logLevel, _ := source.Lookup("LOG_LEVEL")
	logFormat, _ := source.Lookup("LOG_FORMAT")
	logFile, _ := source.Lookup("LOG_FILE")

	return Config{
		RPCURL:              strings.TrimSpace(rpcURL),
		RPCTimeout:          rpcTimeout,
		ContractAddress:     common.HexToAddress(rawAddress),
		ContractABIFile:     strings.TrimSpace(abiFile),
		ChainID:             chainID,
		WalletPrivateKey:    strings.TrimSpace(privateKey),
		WalletKeystore:      strings.TrimSpace(keystore),
		WalletPassword:      password,
		WalletAutoConnect:   autoConnect,
		LogFromBlock:        logFromBlock,
		LogWindowBlocks:     logWindowBlocks,
		LogChunkSize:        logChunkSize,
		LogCacheDepth:       logCacheDepth,
		ReceiptPollInterval: receiptPoll,
		ReceiptTimeout:      receiptTimeout,
		NotifyDuration:      notifyDuration,
		HTTPAddr:            httpAddr,
		RedisAddr:           redisAddr,
		CacheTTL:            cacheTTL,
		EventStoreDriver:    storeDriver,
		EventStoreDSN:       storeDSN,
		KafkaBrokers:        kafkaBrokers,
		KafkaTopic:          kafkaTopic,
		KafkaGroupID:        strings.TrimSpace(kafkaGroupID),
		OtelEndpoint:        otelEndpoint,
		LogLevel:            logLevel,
		LogFormat:           strings.ToLower(strings.TrimSpace(logFormat)),
		LogFile:             strings.TrimSpace(logFile),
		LogMaxSizeMB:        int(logMaxSize),
		LogMaxBackups:       int(logMaxBackups),
	}, nil
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
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
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseBoolEnv(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
