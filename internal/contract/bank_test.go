package contract

import (
	"math/big"
	"strings"
	"testing"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var testBankAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	bank, err := NewBank(testBankAddress)
	require.NoError(t, err)
	return bank
}

func TestNewBankRequiresAddress(t *testing.T) {
	_, err := NewBank(common.Address{})
	require.Error(t, err)
}

func TestNewBankFromABIRejectsIncompleteABI(t *testing.T) {
	_, err := NewBankFromABI(testBankAddress, strings.NewReader(`[{"type":"function","name":"deposit","inputs":[],"outputs":[],"stateMutability":"payable"}]`))
	require.ErrorContains(t, err, "missing method withdraw")
}

func TestPackSelectors(t *testing.T) {
	bank := newTestBank(t)

	deposit, err := bank.PackDeposit()
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256([]byte("deposit()"))[:4], deposit)

	withdraw, err := bank.PackWithdraw(big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, withdraw, 4+32)
	require.Equal(t, crypto.Keccak256([]byte("withdraw(uint256)"))[:4], withdraw[:4])
	require.Equal(t, int64(42), new(big.Int).SetBytes(withdraw[4:]).Int64())

	account := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	balance, err := bank.PackGetBalanceOfUser(account)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256([]byte("getBalanceOfUser(address)"))[:4], balance[:4])
	require.Equal(t, account, common.BytesToAddress(balance[4:]))
}

func TestUnpackBalance(t *testing.T) {
	bank := newTestBank(t)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	got, err := bank.UnpackBalance(common.LeftPadBytes(want.Bytes(), 32))
	require.NoError(t, err)
	require.Equal(t, 0, want.Cmp(got))

	_, err = bank.UnpackBalance(nil)
	require.Error(t, err)
}

func TestTopics(t *testing.T) {
	bank := newTestBank(t)
	deposit, err := bank.Topic(domain.EventDeposit)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash([]byte("etherDeposited(address,uint256)")), deposit)

	withdraw, err := bank.Topic(domain.EventWithdraw)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash([]byte("etherWithdrawed(address,uint256)")), withdraw)

	_, err = bank.Topic("transfer")
	require.Error(t, err)
}

func TestDecodeTransfer(t *testing.T) {
	bank := newTestBank(t)
	account := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	amount := big.NewInt(7)
	topic, err := bank.Topic(domain.EventWithdraw)
	require.NoError(t, err)

	event, err := bank.DecodeTransfer(domain.LogEntry{
		BlockNumber: 12,
		TxHash:      "0xabc",
		LogIndex:    3,
		Topics:      []string{topic.Hex(), common.BytesToHash(account.Bytes()).Hex()},
		Data:        hexutil.Encode(common.LeftPadBytes(amount.Bytes(), 32)),
	})
	require.NoError(t, err)
	require.Equal(t, domain.EventWithdraw, event.Kind)
	require.Equal(t, account, event.Account)
	require.Equal(t, int64(7), event.Amount.Int64())
	require.Equal(t, uint64(12), event.BlockNumber)
	require.Equal(t, uint64(3), event.LogIndex)
}

func TestDecodeTransferRejectsForeignTopic(t *testing.T) {
	bank := newTestBank(t)
	_, err := bank.DecodeTransfer(domain.LogEntry{
		Topics: []string{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex(), common.Hash{}.Hex()},
		Data:   "0x",
	})
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestRevertReason(t *testing.T) {
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	payload := append([]byte{}, selector...)
	payload = append(payload, common.LeftPadBytes([]byte{0x20}, 32)...)
	payload = append(payload, common.LeftPadBytes([]byte{byte(len("Not enough funds"))}, 32)...)
	payload = append(payload, common.RightPadBytes([]byte("Not enough funds"), 32)...)

	reason, ok := RevertReason(payload)
	require.True(t, ok)
	require.Equal(t, "Not enough funds", reason)

	_, ok = RevertReason([]byte{0x01})
	require.False(t, ok)
}
