package application

import (
	"context"
	"math/big"
	"time"

	"bankdapp/internal/domain"
	"bankdapp/internal/streaming"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error)
}

type ContractReader interface {
	Call(ctx context.Context, req domain.CallRequest) ([]byte, error)
}

type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, req domain.CallRequest) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error)
}

type ChainClient interface {
	LogSource
	ContractReader
	TxBackend
}

type Signer interface {
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type ActivityPublisher interface {
	Publish(ctx context.Context, msg streaming.Message) error
}

type PanelObserver interface {
	OnAction(action string, outcome string, elapsed time.Duration)
	OnRefresh(elapsed time.Duration, err error)
}
