package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"bankdapp/internal/application"
	"bankdapp/internal/config"
	"bankdapp/internal/contract"
	"bankdapp/internal/infrastructure/ethrpc"
	"bankdapp/internal/infrastructure/kafka"
	"bankdapp/internal/infrastructure/logging"
	"bankdapp/internal/infrastructure/mysql"
	"bankdapp/internal/infrastructure/sqlite"
	"bankdapp/internal/infrastructure/storage"
	"bankdapp/internal/infrastructure/telemetry"
	"bankdapp/internal/infrastructure/wallet"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Service string
	// Quiet keeps log records off stdout.
	Quiet    bool
	Observer application.PanelObserver
	Approver wallet.Approver
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config   config.Config
	RPC      *ethrpc.Client
	Bank     *contract.Bank
	Wallet   *wallet.Connector
	Panel    *application.Panel
	Activity *application.ActivityLog

	store    *storage.Repository
	consumer *kafka.Consumer
	closers  []func() error
}

// New builds every dependency in order. On failure whatever was already
// opened is closed before the error is returned.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			_ = app.Close()
		}
	}()

	logFile := cfg.LogFile
	if logFile == "" && opts.Service != "" {
		logFile = "logs/" + opts.Service + ".log"
	}
	writer, err := logging.Init(logging.Config{
		Service:    opts.Service,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Quiet:      opts.Quiet,
	})
	if err != nil {
		slog.Error("logger init error", "err", err)
	} else if writer != nil {
		app.closers = append(app.closers, writer.Close)
	}

	shutdownTracing, err := telemetry.InitTracer(ctx, opts.Service, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		app.closers = append(app.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shutdownTracing(shutdownCtx)
		})
	}

	app.RPC, err = ethrpc.NewClient(ethrpc.Config{URL: cfg.RPCURL, Timeout: cfg.RPCTimeout})
	if err != nil {
		return nil, fmt.Errorf("rpc: %w", err)
	}

	app.Bank, err = loadBank(cfg)
	if err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}

	approver := opts.Approver
	if approver == nil {
		approver = wallet.ApproveAll
	}
	app.Wallet, err = wallet.NewConnector(wallet.SourceFromConfig(cfg.WalletPrivateKey, cfg.WalletKeystore, cfg.WalletPassword), approver)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}

	chainID := resolveChainID(ctx, cfg, app.RPC)

	var chunks application.ChunkStore
	if chainID != 0 {
		chunks, err = app.openStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("event store: %w", err)
		}
	} else if cfg.EventStoreDriver != "none" {
		slog.Warn("chain id unknown, event chunk store disabled")
	}

	history, err := application.NewHistory(app.RPC, app.Bank, chunks, application.HistoryConfig{
		ChainID:      chainID,
		FromBlock:    cfg.LogFromBlock,
		WindowBlocks: cfg.LogWindowBlocks,
		ChunkSize:    cfg.LogChunkSize,
		CacheDepth:   cfg.LogCacheDepth,
	})
	if err != nil {
		return nil, err
	}

	txCfg := application.TransactorConfig{
		PollInterval: cfg.ReceiptPollInterval,
		Timeout:      cfg.ReceiptTimeout,
	}
	if chainID != 0 {
		txCfg.ChainID = new(big.Int).SetUint64(chainID)
	}
	transactor, err := application.NewTransactor(app.RPC, app.Wallet, txCfg)
	if err != nil {
		return nil, err
	}

	var publisher application.ActivityPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		publisher = producer

		if cfg.KafkaGroupID != "" {
			app.consumer, err = kafka.NewConsumer(kafka.ConsumerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroupID})
			if err != nil {
				return nil, fmt.Errorf("kafka consumer: %w", err)
			}
			app.closers = append(app.closers, app.consumer.Close)
			app.Activity = application.NewActivityLog(0)
		}
	}

	app.Panel, err = application.NewPanel(app.Bank, app.RPC, history, transactor, publisher, opts.Observer, application.PanelConfig{
		ChainID:        chainID,
		NotifyDuration: cfg.NotifyDuration,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("panel ready",
		"contract", app.Bank.Address().Hex(),
		"chain_id", chainID,
		"event_store", cfg.EventStoreDriver,
		"kafka", len(cfg.KafkaBrokers) > 0,
	)
	ready = true
	return app, nil
}

func (a *App) RunActivity(ctx context.Context) error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Run(ctx, a.Activity.Record)
}

func (a *App) Store() Pinger {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(cfg config.Config) (application.ChunkStore, error) {
	var (
		repo *storage.Repository
		err  error
	)
	switch cfg.EventStoreDriver {
	case "none":
		return nil, nil
	case "mysql":
		repo, err = mysql.NewRepository(cfg.EventStoreDSN)
	default:
		repo, err = sqlite.NewRepository(cfg.EventStoreDSN)
	}
	if err != nil {
		return nil, err
	}
	a.store = repo
	a.closers = append(a.closers, repo.Close)

	cached, err := storage.NewCachedRepository(repo, storage.CacheConfig{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, cached.Close)
	return cached, nil
}

func loadBank(cfg config.Config) (*contract.Bank, error) {
	if cfg.ContractABIFile == "" {
		return contract.NewBank(cfg.ContractAddress)
	}
	f, err := os.Open(cfg.ContractABIFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return contract.NewBankFromABI(cfg.ContractAddress, f)
}

// resolveChainID prefers the configured id and falls back to the node.
// Zero means the node could not be reached.
func resolveChainID(ctx context.Context, cfg config.Config, rpc *ethrpc.Client) uint64 {
	if cfg.ChainID != 0 {
		return cfg.ChainID
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	id, err := rpc.ChainID(ctx)
	if err != nil {
		slog.Warn("chain id lookup failed", "err", err)
		return 0
	}
	if !id.IsUint64() {
		slog.Warn("chain id out of range", "chain_id", id.String())
		return 0
	}
	return id.Uint64()
}

var (
	_ application.ChainClient       = (*ethrpc.Client)(nil)
	_ application.Signer            = (*wallet.Connector)(nil)
	_ application.ActivityPublisher = (*kafka.Producer)(nil)
	_ application.ChunkStore        = (*storage.CachedRepository)(nil)
)
