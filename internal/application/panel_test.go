package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bankdapp/internal/domain"
	"bankdapp/internal/streaming"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const oneEther = "1000000000000000000"

func requireKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok, "expected an ActionError, got %v", err)
	require.Equal(t, want, kind, "error: %v", err)
}

func TestDisconnectedPanelIssuesNoCalls(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, f.panel.OnSession(ctx, domain.Session{}))
	require.NoError(t, f.panel.Refresh(ctx))
	requireKind(t, f.panel.Deposit(ctx, "1"), KindNotConnected)
	requireKind(t, f.panel.Withdraw(ctx, "1"), KindNotConnected)

	snap := f.panel.Snapshot()
	require.Equal(t, StateDisconnected, snap.State)
	require.Nil(t, snap.Balance.Wei)
	require.Empty(t, snap.Notifications)
	require.Zero(t, f.chain.CallCount())
}

func TestConnectRefreshesBalanceAndEvents(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	other := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	f.chain.setBalance(f.signer.Address(), weiOf("2500000000000000000"))
	f.chain.addLog(domain.EventDeposit, other, weiOf(oneEther), 3)
	f.chain.addLog(domain.EventWithdraw, other, weiOf("500000000000000000"), 4)

	f.connect(t)

	snap := f.panel.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.Equal(t, "2.5", snap.Balance.Ether)
	require.Len(t, snap.History.Deposits, 1)
	require.Equal(t, other, snap.History.Deposits[0].Account)
	require.Len(t, snap.History.Withdraws, 1)
	require.Equal(t, "500000000000000000", snap.History.Withdraws[0].Amount.String())
}

func TestDepositFromZeroBalance(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.Equal(t, "0", f.panel.Snapshot().Balance.Ether)

	f.panel.SetPendingDeposit("1.5")
	require.NoError(t, f.panel.Deposit(context.Background(), "1.5"))

	snap := f.panel.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.Equal(t, "1.5", snap.Balance.Ether)
	require.Len(t, snap.History.Deposits, 1)
	require.Equal(t, f.signer.Address(), snap.History.Deposits[0].Account)
	require.Equal(t, "1500000000000000000", snap.History.Deposits[0].Amount.String())
	require.Empty(t, snap.History.Withdraws)
	require.Empty(t, snap.PendingDeposit)

	require.Len(t, snap.Notifications, 1)
	require.Equal(t, domain.NotificationSuccess, snap.Notifications[0].Status)
	require.Equal(t, "You have deposited ethers on the contract.", snap.Notifications[0].Description)
	require.Equal(t, 4*time.Second, snap.Notifications[0].Duration)
}

func TestDepositSurvivesCallerCancellation(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.chain.afterSend = cancel
	f.chain.slowReceipts = 2

	f.panel.SetPendingDeposit("1.5")
	require.NoError(t, f.panel.Deposit(ctx, "1.5"))
	require.Error(t, ctx.Err())

	snap := f.panel.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.Equal(t, "1.5", snap.Balance.Ether)
	require.Len(t, snap.History.Deposits, 1)
	require.Empty(t, snap.PendingDeposit)
	require.Len(t, snap.Notifications, 1)
	require.Equal(t, domain.NotificationSuccess, snap.Notifications[0].Status)
}

func TestRefreshIgnoresCancelledCaller(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	f.chain.setBalance(f.signer.Address(), weiOf("2000000000000000000"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.panel.Refresh(ctx))
	require.Equal(t, "2", f.panel.Snapshot().Balance.Ether)
}

func TestWithdrawReducesBalance(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	ctx := context.Background()

	require.NoError(t, f.panel.Deposit(ctx, "2.0"))
	f.panel.SetPendingWithdraw("0.5")
	require.NoError(t, f.panel.Withdraw(ctx, "0.5"))

	snap := f.panel.Snapshot()
	require.Equal(t, "1.5", snap.Balance.Ether)
	require.Len(t, snap.History.Withdraws, 1)
	require.Equal(t, "500000000000000000", snap.History.Withdraws[0].Amount.String())
	require.Empty(t, snap.PendingWithdraw)
	require.Equal(t, "You have withdrawed ethers from the contract.", snap.Notifications[len(snap.Notifications)-1].Description)
}

func TestWithdrawAboveBalanceReverts(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	ctx := context.Background()
	require.NoError(t, f.panel.Deposit(ctx, "2.0"))
	before := f.panel.Snapshot()

	err := f.panel.Withdraw(ctx, "5.0")
	requireKind(t, err, KindReverted)
	require.True(t, errors.Is(err, ErrReverted))
	require.Contains(t, err.Error(), "insufficient balance")

	snap := f.panel.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.Equal(t, "2", snap.Balance.Ether)
	require.Equal(t, before.History, snap.History)
	require.Empty(t, snap.History.Withdraws)
	require.Equal(t, "5.0", snap.PendingWithdraw)
	last := snap.Notifications[len(snap.Notifications)-1]
	require.Equal(t, domain.NotificationError, last.Status)
	require.Equal(t, "An error occured.", last.Description)
}

func TestMinedRevertIsReported(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	f.chain.mineFails = true

	err := f.panel.Deposit(context.Background(), "1")
	requireKind(t, err, KindReverted)
	require.Equal(t, "0", f.panel.Snapshot().Balance.Ether)
}

func TestRejectedSignatureKeepsState(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	f.signer.reject = true
	calls := f.chain.CallCount()

	err := f.panel.Deposit(context.Background(), "1")
	requireKind(t, err, KindUserRejected)
	require.True(t, errors.Is(err, domain.ErrUserRejected))

	snap := f.panel.Snapshot()
	require.Equal(t, "0", snap.Balance.Ether)
	require.Equal(t, "1", snap.PendingDeposit)
	// estimate, chain id, nonce and gas price were read; nothing was sent.
	require.Equal(t, calls+4, f.chain.CallCount())
}

func TestInvalidAmountSendsNothing(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	calls := f.chain.CallCount()

	amounts := []string{"", "abc", "0", "-1", "0.0000000000000000001", "1e999999999", "1" + strings.Repeat("0", 80)}
	for _, amount := range amounts {
		requireKind(t, f.panel.Deposit(context.Background(), amount), KindInvalidAmount)
	}
	require.Equal(t, calls, f.chain.CallCount())
	require.Len(t, f.panel.Notifications(), len(amounts))
	require.Equal(t, StateReady, f.panel.State())
}

func TestTransportFailureKeepsState(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.NoError(t, f.panel.Deposit(context.Background(), "1"))
	before := f.panel.Snapshot()
	f.chain.sendErr = errors.New("connection reset")

	requireKind(t, f.panel.Deposit(context.Background(), "1"), KindTransport)
	after := f.panel.Snapshot()
	require.Equal(t, before.Balance, after.Balance)
	require.Equal(t, before.History, after.History)
}

func TestReadFailureKeepsState(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.NoError(t, f.panel.Deposit(context.Background(), "1.5"))
	before := f.panel.Snapshot()

	f.chain.logsErr = errors.New("node unavailable")
	requireKind(t, f.panel.Refresh(context.Background()), KindRead)
	after := f.panel.Snapshot()
	require.Equal(t, before.Balance, after.Balance)
	require.Equal(t, before.History, after.History)
	require.Equal(t, StateReady, after.State)

	f.chain.logsErr = nil
	f.chain.callErr = errors.New("call failed")
	balance, err := f.panel.GetBalanceOfUser(context.Background(), f.signer.Address())
	require.Nil(t, balance)
	requireKind(t, err, KindRead)
}

func TestFailedRefreshAfterWriteKeepsPendingInput(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	f.chain.logsErr = errors.New("logs unavailable")

	err := f.panel.Deposit(context.Background(), "1")
	requireKind(t, err, KindRead)
	snap := f.panel.Snapshot()
	require.Equal(t, "0", snap.Balance.Ether)
	require.Equal(t, "1", snap.PendingDeposit)
	require.Equal(t, domain.NotificationError, snap.Notifications[0].Status)
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	first := f.signer.Address()
	second := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	f.chain.setBalance(first, weiOf(oneEther))
	f.chain.setBalance(second, weiOf("3000000000000000000"))
	gate := f.chain.gate(first)

	done := make(chan error, 1)
	go func() {
		done <- f.panel.OnSession(context.Background(), domain.Session{Account: first, Connected: true})
	}()
	require.Eventually(t, func() bool { return f.panel.State() == StateLoading }, time.Second, time.Millisecond)

	require.NoError(t, f.panel.OnSession(context.Background(), domain.Session{Account: second, Connected: true}))
	close(gate)
	require.NoError(t, <-done)

	snap := f.panel.Snapshot()
	require.Equal(t, second, snap.Session.Account)
	require.Equal(t, "3", snap.Balance.Ether)
	require.Equal(t, StateReady, snap.State)
}

func TestBusyPanelRejectsActions(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	account := f.signer.Address()
	gate := f.chain.gate(account)

	done := make(chan error, 1)
	go func() {
		done <- f.panel.OnSession(context.Background(), domain.Session{Account: account, Connected: true})
	}()
	require.Eventually(t, func() bool { return f.panel.State() == StateLoading }, time.Second, time.Millisecond)

	requireKind(t, f.panel.Deposit(context.Background(), "1"), KindBusy)
	requireKind(t, f.panel.Refresh(context.Background()), KindBusy)
	close(gate)
	require.NoError(t, <-done)
	require.Equal(t, StateReady, f.panel.State())
}

func TestDisconnectClearsState(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.NoError(t, f.panel.Deposit(context.Background(), "1"))
	f.panel.SetPendingWithdraw("0.3")
	calls := f.chain.CallCount()

	require.NoError(t, f.panel.OnSession(context.Background(), domain.Session{}))
	snap := f.panel.Snapshot()
	require.Equal(t, StateDisconnected, snap.State)
	require.Nil(t, snap.Balance.Wei)
	require.Empty(t, snap.History.Deposits)
	require.Empty(t, snap.PendingWithdraw)
	require.Equal(t, calls, f.chain.CallCount())
}

func TestNotificationsExpireAndDismiss(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.panel.now = func() time.Time { return now }
	f.connect(t)

	require.Error(t, f.panel.Deposit(context.Background(), "nope"))
	require.Error(t, f.panel.Deposit(context.Background(), "nope"))
	notes := f.panel.Notifications()
	require.Len(t, notes, 2)
	require.NotEqual(t, notes[0].ID, notes[1].ID)

	require.True(t, f.panel.DismissNotification(notes[0].ID))
	require.False(t, f.panel.DismissNotification(notes[0].ID))
	require.Len(t, f.panel.Notifications(), 1)

	now = now.Add(4 * time.Second)
	require.Empty(t, f.panel.Notifications())
}

func TestActivityAndObserver(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.NoError(t, f.panel.Deposit(context.Background(), "1"))
	require.Error(t, f.panel.Withdraw(context.Background(), "9"))

	require.Eventually(t, func() bool { return len(f.publisher.Messages()) == 3 }, time.Second, time.Millisecond)
	byType := make(map[streaming.MessageType]streaming.Message)
	for _, msg := range f.publisher.Messages() {
		byType[msg.Type] = msg
		require.Equal(t, bankAddress.Hex(), msg.Contract)
		require.Equal(t, f.signer.Address().Hex(), msg.Account)
		require.NotEmpty(t, msg.ID)
	}
	require.Equal(t, streaming.OutcomeSuccess, byType[streaming.MessageTypeDeposit].Outcome)
	require.Equal(t, oneEther, byType[streaming.MessageTypeDeposit].AmountWei)
	require.NotEmpty(t, byType[streaming.MessageTypeDeposit].TxHash)
	require.Equal(t, streaming.OutcomeFailure, byType[streaming.MessageTypeWithdraw].Outcome)
	require.Equal(t, string(KindReverted), byType[streaming.MessageTypeWithdraw].ErrorKind)

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	require.Equal(t, 1, f.observer.actions["deposit/success"])
	require.Equal(t, 1, f.observer.actions["withdraw/failure"])
	require.Equal(t, 2, f.observer.refreshes)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newPanelFixture(t, HistoryConfig{}, nil)
	f.connect(t)
	require.NoError(t, f.panel.Deposit(context.Background(), "1"))

	snap := f.panel.Snapshot()
	snap.Balance.Wei.SetInt64(0)
	snap.History.Deposits[0].Amount.SetInt64(0)

	again := f.panel.Snapshot()
	require.Equal(t, oneEther, again.Balance.Wei.String())
	require.Equal(t, oneEther, again.History.Deposits[0].Amount.String())
}
