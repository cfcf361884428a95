package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type TransactorConfig struct {
	// ChainID is used for signing; when nil it is read from the node once.
	ChainID      *big.Int
	PollInterval time.Duration
	Timeout      time.Duration
}

type Transactor struct {
	backend TxBackend
	signer  Signer
	cfg     TransactorConfig

	mu      sync.Mutex
	chainID *big.Int
}

type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

func NewTransactor(backend TxBackend, signer Signer, cfg TransactorConfig) (*Transactor, error) {
	if backend == nil || signer == nil {
		return nil, errors.New("transactor dependencies must not be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	t := &Transactor{backend: backend, signer: signer, cfg: cfg}
	if cfg.ChainID != nil && cfg.ChainID.Sign() > 0 {
		t.chainID = new(big.Int).Set(cfg.ChainID)
	}
	return t, nil
}

func (t *Transactor) Send(ctx context.Context, op string, req TxRequest) (domain.Receipt, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	call := domain.CallRequest{From: req.From, To: req.To, Data: req.Data, Value: value}

	// Estimating simulates the call, so a revert shows up before the user
	// is asked to sign.
	gas, err := t.backend.EstimateGas(ctx, call)
	if err != nil {
		return domain.Receipt{}, t.classify(op, "estimate gas", err)
	}
	chainID, err := t.chainIDFor(ctx)
	if err != nil {
		return domain.Receipt{}, newActionError(KindTransport, op, fmt.Errorf("chain id: %w", err))
	}
	nonce, err := t.backend.PendingNonceAt(ctx, req.From)
	if err != nil {
		return domain.Receipt{}, newActionError(KindTransport, op, fmt.Errorf("nonce: %w", err))
	}
	gasPrice, err := t.backend.GasPrice(ctx)
	if err != nil {
		return domain.Receipt{}, newActionError(KindTransport, op, fmt.Errorf("gas price: %w", err))
	}

	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := t.signer.SignTx(tx, chainID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserRejected):
			return domain.Receipt{}, newActionError(KindUserRejected, op, err)
		case errors.Is(err, domain.ErrNotConnected):
			return domain.Receipt{}, newActionError(KindNotConnected, op, err)
		default:
			return domain.Receipt{}, newActionError(KindTransport, op, fmt.Errorf("sign: %w", err))
		}
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return domain.Receipt{}, newActionError(KindTransport, op, fmt.Errorf("encode tx: %w", err))
	}

	hash, err := t.backend.SendRawTransaction(ctx, raw)
	if err != nil {
		return domain.Receipt{}, t.classify(op, "send", err)
	}
	slog.Info("transaction sent", "op", op, "tx", hash, "from", req.From.Hex(), "nonce", nonce, "gas", gas)

	receipt, err := t.waitReceipt(ctx, hash)
	if err != nil {
		return domain.Receipt{}, newActionError(KindTransport, op, err)
	}
	if !receipt.Succeeded() {
		return receipt, newActionError(KindReverted, op, fmt.Errorf("%w: %s", ErrReverted, hash))
	}
	return receipt, nil
}

func (t *Transactor) chainIDFor(ctx context.Context) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chainID != nil {
		return t.chainID, nil
	}
	chainID, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	t.chainID = chainID
	return chainID, nil
}

func (t *Transactor) waitReceipt(ctx context.Context, hash string) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, ok, err := t.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("receipt %s: %w", hash, err)
		}
		if ok {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return domain.Receipt{}, fmt.Errorf("wait receipt %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *Transactor) classify(op, step string, err error) error {
	if reverted := wrapRevert(err); reverted != nil {
		return newActionError(KindReverted, op, reverted)
	}
	return newActionError(KindTransport, op, fmt.Errorf("%s: %w", step, err))
}
