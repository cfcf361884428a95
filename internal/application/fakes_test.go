package application

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"bankdapp/internal/contract"
	"bankdapp/internal/domain"
	"bankdapp/internal/streaming"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	bankAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testChainID = big.NewInt(31337)
)

func weiOf(value string) *big.Int {
	wei, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("bad wei literal " + value)
	}
	return wei
}

// fakeBank is an in-memory node running the Bank contract.
type fakeBank struct {
	t    *testing.T
	bank *contract.Bank

	mu        sync.Mutex
	block     uint64
	balances  map[common.Address]*big.Int
	logs      []domain.LogEntry
	receipts  map[string]domain.Receipt
	nonces    map[common.Address]uint64
	calls     int
	logCalls  int
	callErr   error
	logsErr   error
	sendErr   error
	mineFails bool
	gates     map[common.Address]chan struct{}
	// afterSend runs once a transaction is accepted.
	afterSend func()
	// slowReceipts is the number of receipt polls answered with "not yet".
	slowReceipts int
}

func newFakeBank(t *testing.T) *fakeBank {
	t.Helper()
	bank, err := contract.NewBank(bankAddress)
	if err != nil {
		t.Fatalf("bind bank: %v", err)
	}
	return &fakeBank{
		t:        t,
		bank:     bank,
		block:    1,
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[string]domain.Receipt),
		nonces:   make(map[common.Address]uint64),
		gates:    make(map[common.Address]chan struct{}),
	}
}

func (f *fakeBank) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBank) setBalance(account common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = wei
}

// gate makes balance reads of account block until the channel is closed.
func (f *fakeBank) gate(account common.Address) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[account] = ch
	return ch
}

func (f *fakeBank) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return new(big.Int).Set(testChainID), nil
}

func (f *fakeBank) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.logsErr != nil {
		return 0, f.logsErr
	}
	return f.block, nil
}

func (f *fakeBank) Call(ctx context.Context, req domain.CallRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	gate := f.gates[req.From]
	callErr := f.callErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if callErr != nil {
		return nil, callErr
	}
	want, _ := f.bank.PackGetBalanceOfUser(req.From)
	if !bytes.Equal(req.Data, want) {
		return nil, fmt.Errorf("unexpected call data %x", req.Data)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	balance := f.balances[req.From]
	if balance == nil {
		balance = new(big.Int)
	}
	return common.LeftPadBytes(balance.Bytes(), 32), nil
}

func (f *fakeBank) EstimateGas(_ context.Context, req domain.CallRequest) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if amount, ok := f.withdrawAmount(req.Data); ok {
		balance := f.balances[req.From]
		if balance == nil || balance.Cmp(amount) < 0 {
			return 0, revertErr{reason: "insufficient balance"}
		}
	}
	return 50000, nil
}

func (f *fakeBank) GasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return big.NewInt(1), nil
}

func (f *fakeBank) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.nonces[account], nil
}

func (f *fakeBank) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	hash, err := f.sendRaw(raw)
	if err == nil && f.afterSend != nil {
		f.afterSend()
	}
	return hash, err
}

func (f *fakeBank) sendRaw(raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", err
	}
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		return "", err
	}
	if tx.To() == nil || *tx.To() != bankAddress {
		return "", errors.New("transaction not sent to the bank")
	}
	f.nonces[from]++
	f.block++
	hash := tx.Hash().Hex()
	if f.mineFails {
		f.receipts[hash] = domain.Receipt{TxHash: hash, BlockNumber: f.block, Status: 0}
		return hash, nil
	}

	balance := f.balances[from]
	if balance == nil {
		balance = new(big.Int)
	}
	deposit, _ := f.bank.PackDeposit()
	switch {
	case bytes.Equal(tx.Data(), deposit):
		f.balances[from] = new(big.Int).Add(balance, tx.Value())
		f.appendLog(domain.EventDeposit, from, tx.Value(), hash, f.block)
	default:
		amount, ok := f.withdrawAmount(tx.Data())
		if !ok {
			return "", fmt.Errorf("unknown calldata %x", tx.Data())
		}
		if balance.Cmp(amount) < 0 {
			f.receipts[hash] = domain.Receipt{TxHash: hash, BlockNumber: f.block, Status: 0}
			return hash, nil
		}
		f.balances[from] = new(big.Int).Sub(balance, amount)
		f.appendLog(domain.EventWithdraw, from, amount, hash, f.block)
	}
	f.receipts[hash] = domain.Receipt{TxHash: hash, BlockNumber: f.block, Status: 1}
	return hash, nil
}

func (f *fakeBank) TransactionReceipt(_ context.Context, hash string) (domain.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.slowReceipts > 0 {
		f.slowReceipts--
		return domain.Receipt{}, false, nil
	}
	receipt, ok := f.receipts[hash]
	return receipt, ok, nil
}

func (f *fakeBank) FetchLogs(_ context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.logCalls++
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	var out []domain.LogEntry
	for _, log := range f.logs {
		if log.BlockNumber < filter.FromBlock || log.BlockNumber > filter.ToBlock {
			continue
		}
		if common.HexToHash(log.Topics[0]) != filter.Topic0 {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

// addLog records a transfer log at block without touching balances.
func (f *fakeBank) addLog(kind domain.EventKind, account common.Address, amount *big.Int, block uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if block > f.block {
		f.block = block
	}
	f.appendLog(kind, account, amount, fmt.Sprintf("0x%064x", len(f.logs)+1), block)
}

func (f *fakeBank) appendLog(kind domain.EventKind, account common.Address, amount *big.Int, hash string, block uint64) {
	topic, err := f.bank.Topic(kind)
	if err != nil {
		f.t.Fatalf("topic: %v", err)
	}
	f.logs = append(f.logs, domain.LogEntry{
		BlockNumber: block,
		TxHash:      hash,
		LogIndex:    uint64(len(f.logs)),
		Address:     bankAddress.Hex(),
		Data:        hexutil.Encode(common.LeftPadBytes(amount.Bytes(), 32)),
		Topics:      []string{topic.Hex(), common.BytesToHash(account.Bytes()).Hex()},
	})
}

func (f *fakeBank) withdrawAmount(data []byte) (*big.Int, bool) {
	probe, _ := f.bank.PackWithdraw(big.NewInt(0))
	if len(data) != len(probe) || !bytes.Equal(data[:4], probe[:4]) {
		return nil, false
	}
	return new(big.Int).SetBytes(data[4:]), true
}

type revertErr struct {
	reason string
}

func (e revertErr) Error() string {
	return "execution reverted: " + e.reason
}

func (e revertErr) ErrorCode() int { return 3 }

func (e revertErr) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(e.reason)
	if err != nil {
		return nil
	}
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

type keySigner struct {
	key    *ecdsa.PrivateKey
	reject bool
}

func newKeySigner(t *testing.T) *keySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &keySigner{key: key}
}

func (s *keySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *keySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.reject {
		return nil, domain.ErrUserRejected
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

type memoryChunkStore struct {
	mu     sync.Mutex
	chunks map[ChunkKey][]domain.TransferEvent
	loads  int
	hits   int
	saves  int
}

func newMemoryChunkStore() *memoryChunkStore {
	return &memoryChunkStore{chunks: make(map[ChunkKey][]domain.TransferEvent)}
}

func (s *memoryChunkStore) LoadChunk(_ context.Context, key ChunkKey) ([]domain.TransferEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	events, ok := s.chunks[key]
	if ok {
		s.hits++
	}
	return append([]domain.TransferEvent(nil), events...), ok, nil
}

func (s *memoryChunkStore) SaveChunk(_ context.Context, key ChunkKey, events []domain.TransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.chunks[key] = append([]domain.TransferEvent{}, events...)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []streaming.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg streaming.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Messages() []streaming.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]streaming.Message(nil), p.messages...)
}

type countingObserver struct {
	mu        sync.Mutex
	actions   map[string]int
	refreshes int
}

func (o *countingObserver) OnAction(action, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.actions == nil {
		o.actions = make(map[string]int)
	}
	o.actions[action+"/"+outcome]++
}

func (o *countingObserver) OnRefresh(time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshes++
}

type panelFixture struct {
	chain     *fakeBank
	signer    *keySigner
	panel     *Panel
	publisher *recordingPublisher
	observer  *countingObserver
}

func newPanelFixture(t *testing.T, historyCfg HistoryConfig, store ChunkStore) *panelFixture {
	t.Helper()
	chain := newFakeBank(t)
	signer := newKeySigner(t)
	history, err := NewHistory(chain, chain.bank, store, historyCfg)
	if err != nil {
		t.Fatalf("new history: %v", err)
	}
	transactor, err := NewTransactor(chain, signer, TransactorConfig{PollInterval: time.Millisecond, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	publisher := &recordingPublisher{}
	observer := &countingObserver{}
	panel, err := NewPanel(chain.bank, chain, history, transactor, publisher, observer, PanelConfig{ChainID: 31337})
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	return &panelFixture{chain: chain, signer: signer, panel: panel, publisher: publisher, observer: observer}
}

func (f *panelFixture) connect(t *testing.T) {
	t.Helper()
	if err := f.panel.OnSession(context.Background(), domain.Session{Account: f.signer.Address(), Connected: true}); err != nil {
		t.Fatalf("connect: %v", err)
	}
}
