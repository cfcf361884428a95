package contract

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

//go:embed bank.abi.json
var defaultABI string

const (
	MethodDeposit          = "deposit"
	MethodWithdraw         = "withdraw"
	MethodGetBalanceOfUser = "getBalanceOfUser"
	EventDeposited         = "etherDeposited"
	EventWithdrawed        = "etherWithdrawed"
)

var ErrUnknownTopic = errors.New("log topic does not belong to the bank contract")

type Bank struct {
	address common.Address
	abi     abi.ABI
}

func NewBank(address common.Address) (*Bank, error) {
	return NewBankFromABI(address, strings.NewReader(defaultABI))
}

// NewBankFromABI binds an ABI read from r. The ABI must expose the
// deposit/withdraw/getBalanceOfUser methods and both transfer events.
func NewBankFromABI(address common.Address, r io.Reader) (*Bank, error) {
	if address == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	for _, name := range []string{MethodDeposit, MethodWithdraw, MethodGetBalanceOfUser} {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, fmt.Errorf("abi is missing method %s", name)
		}
	}
	for _, name := range []string{EventDeposited, EventWithdrawed} {
		if _, ok := parsed.Events[name]; !ok {
			return nil, fmt.Errorf("abi is missing event %s", name)
		}
	}
	return &Bank{address: address, abi: parsed}, nil
}

func (b *Bank) Address() common.Address {
	return b.address
}

func (b *Bank) PackDeposit() ([]byte, error) {
	return b.abi.Pack(MethodDeposit)
}

func (b *Bank) PackWithdraw(amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, errors.New("withdraw amount is required")
	}
	return b.abi.Pack(MethodWithdraw, amount)
}

func (b *Bank) PackGetBalanceOfUser(account common.Address) ([]byte, error) {
	return b.abi.Pack(MethodGetBalanceOfUser, account)
}

func (b *Bank) UnpackBalance(data []byte) (*big.Int, error) {
	out, err := b.abi.Unpack(MethodGetBalanceOfUser, data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected output count %d", len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", out[0])
	}
	return value, nil
}

func (b *Bank) Topic(kind domain.EventKind) (common.Hash, error) {
	name, err := eventName(kind)
	if err != nil {
		return common.Hash{}, err
	}
	return b.abi.Events[name].ID, nil
}

func (b *Bank) DecodeTransfer(log domain.LogEntry) (domain.TransferEvent, error) {
	if log.Topic(1) == "" {
		return domain.TransferEvent{}, errors.New("missing indexed account topic")
	}
	topic0 := common.HexToHash(log.Topic(0))
	var kind domain.EventKind
	switch topic0 {
	case b.abi.Events[EventDeposited].ID:
		kind = domain.EventDeposit
	case b.abi.Events[EventWithdrawed].ID:
		kind = domain.EventWithdraw
	default:
		return domain.TransferEvent{}, ErrUnknownTopic
	}
	name, _ := eventName(kind)

	account, err := decodeTopicAddress(log.Topic(1))
	if err != nil {
		return domain.TransferEvent{}, err
	}
	data, err := hexutil.Decode(normalizeHex(log.Data))
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("decode log data: %w", err)
	}
	out, err := b.abi.Unpack(name, data)
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("unpack %s: %w", name, err)
	}
	if len(out) != 1 {
		return domain.TransferEvent{}, fmt.Errorf("unexpected %s field count %d", name, len(out))
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return domain.TransferEvent{}, fmt.Errorf("unexpected amount type %T", out[0])
	}
	return domain.TransferEvent{
		Kind:        kind,
		Account:     account,
		Amount:      amount,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
	}, nil
}

func RevertReason(data []byte) (string, bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}

func eventName(kind domain.EventKind) (string, error) {
	switch kind {
	case domain.EventDeposit:
		return EventDeposited, nil
	case domain.EventWithdraw:
		return EventWithdrawed, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", kind)
	}
}

func decodeTopicAddress(topic string) (common.Address, error) {
	if !strings.HasPrefix(topic, "0x") || len(topic) != 66 {
		return common.Address{}, fmt.Errorf("invalid topic address: %s", topic)
	}
	return common.HexToAddress(topic[26:]), nil
}

func normalizeHex(value string) string {
	if value == "" || value == "0x" {
		return "0x"
	}
	if !strings.HasPrefix(value, "0x") {
		return "0x" + value
	}
	return value
}
