package application

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"bankdapp/internal/contract"
	"bankdapp/internal/domain"
	"bankdapp/internal/streaming"
	"bankdapp/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type PanelState string

const (
	StateDisconnected PanelState = "disconnected"
	StateLoading      PanelState = "loading"
	StateReady        PanelState = "ready"
)

const (
	ActionDeposit  = "deposit"
	ActionWithdraw = "withdraw"
	ActionRefresh  = "refresh"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

const (
	successTitle       = "Congratulations"
	errorTitle         = "Error"
	depositedMessage   = "You have deposited ethers on the contract."
	withdrawnMessage   = "You have withdrawed ethers from the contract."
	genericErrorDetail = "An error occured."
)

const publishTimeout = 5 * time.Second

type PanelConfig struct {
	ChainID        uint64
	NotifyDuration time.Duration
}

type Snapshot struct {
	State           PanelState            `json:"state"`
	Session         domain.Session        `json:"session"`
	Balance         domain.BalanceView    `json:"balance"`
	History         domain.EventHistory   `json:"history"`
	PendingDeposit  string                `json:"pending_deposit"`
	PendingWithdraw string                `json:"pending_withdraw"`
	Notifications   []domain.Notification `json:"notifications"`
}

type Panel struct {
	bank       *contract.Bank
	reader     ContractReader
	history    *History
	transactor *Transactor
	publisher  ActivityPublisher
	observer   PanelObserver
	cfg        PanelConfig
	now        func() time.Time

	mu              sync.Mutex
	session         domain.Session
	inflight        int
	balance         domain.BalanceView
	events          domain.EventHistory
	pendingDeposit  string
	pendingWithdraw string
	notifications   []domain.Notification
	refreshSeq      uint64
	appliedSeq      uint64
}

func NewPanel(bank *contract.Bank, reader ContractReader, history *History, transactor *Transactor, publisher ActivityPublisher, observer PanelObserver, cfg PanelConfig) (*Panel, error) {
	if bank == nil || reader == nil || history == nil || transactor == nil {
		return nil, errors.New("panel dependencies must not be nil")
	}
	if cfg.NotifyDuration <= 0 {
		cfg.NotifyDuration = 4 * time.Second
	}
	return &Panel{
		bank:       bank,
		reader:     reader,
		history:    history,
		transactor: transactor,
		publisher:  publisher,
		observer:   observer,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// OnSession applies a wallet change. Disconnecting clears the panel
// without touching the chain; connecting a new account refreshes it.
func (p *Panel) OnSession(ctx context.Context, session domain.Session) error {
	p.mu.Lock()
	previous := p.session
	p.session = session
	if !session.Connected {
		p.balance = domain.BalanceView{}
		p.events = domain.EventHistory{}
		p.pendingDeposit = ""
		p.pendingWithdraw = ""
		p.mu.Unlock()
		if previous.Connected {
			slog.Info("panel disconnected", "account", previous.Account.Hex())
			p.publish(ctx, streaming.MessageTypeSession, streaming.OutcomeSuccess, previous.Account, nil, domain.Receipt{}, nil)
		}
		return nil
	}
	if previous.Connected && previous.Account == session.Account {
		p.mu.Unlock()
		return nil
	}
	p.balance = domain.BalanceView{}
	p.events = domain.EventHistory{}
	p.inflight++
	p.mu.Unlock()

	slog.Info("panel connected", "account", session.Account.Hex())
	p.publish(ctx, streaming.MessageTypeSession, streaming.OutcomeSuccess, session.Account, nil, domain.Receipt{}, nil)
	defer p.finish()
	return p.refresh(ctx)
}

func (p *Panel) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if !p.session.Connected {
		p.mu.Unlock()
		return nil
	}
	if p.inflight > 0 {
		p.mu.Unlock()
		return newActionError(KindBusy, ActionRefresh, ErrBusy)
	}
	p.inflight++
	p.mu.Unlock()
	defer p.finish()
	ctx = context.WithoutCancel(ctx)

	p.mu.Lock()
	account := p.session.Account
	p.mu.Unlock()

	start := p.now()
	err := p.refresh(ctx)
	outcome := streaming.OutcomeSuccess
	if err != nil {
		outcome = streaming.OutcomeFailure
	}
	p.publish(ctx, streaming.MessageTypeRefresh, outcome, account, nil, domain.Receipt{}, err)
	p.observeAction(ActionRefresh, err, start)
	return err
}

func (p *Panel) Deposit(ctx context.Context, amount string) error {
	return p.write(ctx, ActionDeposit, amount)
}

func (p *Panel) Withdraw(ctx context.Context, amount string) error {
	return p.write(ctx, ActionWithdraw, amount)
}

func (p *Panel) GetBalanceOfUser(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := p.bank.PackGetBalanceOfUser(account)
	if err != nil {
		return nil, newActionError(KindRead, "getBalanceOfUser", err)
	}
	out, err := p.reader.Call(ctx, domain.CallRequest{From: account, To: p.bank.Address(), Data: data})
	if err != nil {
		slog.Error("balance read failed", "account", account.Hex(), "err", err)
		return nil, newActionError(KindRead, "getBalanceOfUser", err)
	}
	balance, err := p.bank.UnpackBalance(out)
	if err != nil {
		slog.Error("balance decode failed", "account", account.Hex(), "err", err)
		return nil, newActionError(KindRead, "getBalanceOfUser", err)
	}
	return balance, nil
}

func (p *Panel) GetEvents(ctx context.Context) (domain.EventHistory, error) {
	events, err := p.history.Load(ctx)
	if err != nil {
		slog.Error("event history read failed", "err", err)
		return domain.EventHistory{}, newActionError(KindRead, "getEvents", err)
	}
	return events, nil
}

func (p *Panel) SetPendingDeposit(amount string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingDeposit = amount
}

func (p *Panel) SetPendingWithdraw(amount string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingWithdraw = amount
}

func (p *Panel) Notifications() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	return append([]domain.Notification(nil), p.notifications...)
}

func (p *Panel) DismissNotification(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, n := range p.notifications {
		if n.ID == id {
			p.notifications = append(p.notifications[:i], p.notifications[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()

	balance := domain.BalanceView{Ether: p.balance.Ether}
	if p.balance.Wei != nil {
		balance.Wei = new(big.Int).Set(p.balance.Wei)
	}
	return Snapshot{
		State:           p.stateLocked(),
		Session:         p.session,
		Balance:         balance,
		History:         p.events.Clone(),
		PendingDeposit:  p.pendingDeposit,
		PendingWithdraw: p.pendingWithdraw,
		Notifications:   append([]domain.Notification(nil), p.notifications...),
	}
}

func (p *Panel) State() PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Panel) stateLocked() PanelState {
	switch {
	case !p.session.Connected:
		return StateDisconnected
	case p.inflight > 0:
		return StateLoading
	default:
		return StateReady
	}
}

func (p *Panel) finish() {
	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()
}

// refresh fetches balance then events and swaps them in together. A
// result is dropped when a later refresh already landed or the account
// changed meanwhile.
func (p *Panel) refresh(ctx context.Context) (err error) {
	ctx, span := otel.Tracer("bankdapp/application").Start(ctx, "panel.refresh")
	start := p.now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if p.observer != nil {
			p.observer.OnRefresh(p.now().Sub(start), err)
		}
	}()

	p.mu.Lock()
	account := p.session.Account
	p.refreshSeq++
	seq := p.refreshSeq
	p.mu.Unlock()
	span.SetAttributes(attribute.String("account", account.Hex()))

	balance, err := p.GetBalanceOfUser(ctx, account)
	if err != nil {
		return err
	}
	events, err := p.GetEvents(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.session.Connected || p.session.Account != account || seq < p.appliedSeq {
		slog.Debug("discarding stale refresh", "account", account.Hex(), "seq", seq)
		return nil
	}
	p.appliedSeq = seq
	p.balance = domain.BalanceView{Wei: balance, Ether: units.FormatEther(balance)}
	p.events = events
	return nil
}

func (p *Panel) write(ctx context.Context, action, amount string) (err error) {
	ctx, span := otel.Tracer("bankdapp/application").Start(ctx, "panel."+action, trace.WithAttributes(attribute.String("amount", amount)))
	start := p.now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.mu.Lock()
	if !p.session.Connected {
		p.mu.Unlock()
		return newActionError(KindNotConnected, action, domain.ErrNotConnected)
	}
	if p.inflight > 0 {
		p.mu.Unlock()
		return newActionError(KindBusy, action, ErrBusy)
	}
	account := p.session.Account
	p.setPendingLocked(action, amount)
	p.inflight++
	p.mu.Unlock()
	// A started transaction outlives its caller; the transactor timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	wei, receipt, err := p.submit(ctx, action, account, amount)
	if err == nil {
		if refreshErr := p.refresh(ctx); refreshErr != nil {
			err = newActionError(KindRead, action, refreshErr)
		}
	}

	p.mu.Lock()
	p.inflight--
	if err == nil {
		p.setPendingLocked(action, "")
		p.notifyLocked(domain.NotificationSuccess, successTitle, successMessage(action))
	} else {
		p.notifyLocked(domain.NotificationError, errorTitle, genericErrorDetail)
	}
	p.mu.Unlock()

	if err != nil {
		kind, _ := KindOf(err)
		slog.Error(action+" failed", "account", account.Hex(), "amount", amount, "kind", kind, "err", err)
		p.publish(ctx, messageType(action), streaming.OutcomeFailure, account, wei, receipt, err)
	} else {
		slog.Info(action+" confirmed", "account", account.Hex(), "amount", amount, "tx", receipt.TxHash, "block", receipt.BlockNumber)
		p.publish(ctx, messageType(action), streaming.OutcomeSuccess, account, wei, receipt, nil)
	}
	p.observeAction(action, err, start)
	return err
}

func (p *Panel) submit(ctx context.Context, action string, account common.Address, amount string) (*big.Int, domain.Receipt, error) {
	wei, err := units.ParsePositiveEther(amount)
	if err != nil {
		return nil, domain.Receipt{}, newActionError(KindInvalidAmount, action, err)
	}

	req := TxRequest{From: account, To: p.bank.Address()}
	switch action {
	case ActionDeposit:
		req.Data, err = p.bank.PackDeposit()
		req.Value = wei
	case ActionWithdraw:
		req.Data, err = p.bank.PackWithdraw(wei)
	}
	if err != nil {
		return wei, domain.Receipt{}, newActionError(KindInvalidAmount, action, err)
	}

	receipt, err := p.transactor.Send(ctx, action, req)
	return wei, receipt, err
}

func (p *Panel) setPendingLocked(action, amount string) {
	if action == ActionDeposit {
		p.pendingDeposit = amount
	} else {
		p.pendingWithdraw = amount
	}
}

func (p *Panel) notifyLocked(status domain.NotificationStatus, title, description string) {
	p.pruneLocked()
	p.notifications = append(p.notifications, domain.Notification{
		ID:          uuid.New(),
		Status:      status,
		Title:       title,
		Description: description,
		CreatedAt:   p.now(),
		Duration:    p.cfg.NotifyDuration,
	})
}

func (p *Panel) pruneLocked() {
	now := p.now()
	kept := p.notifications[:0]
	for _, n := range p.notifications {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	p.notifications = kept
}

func (p *Panel) observeAction(action string, err error, start time.Time) {
	if p.observer == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	p.observer.OnAction(action, outcome, p.now().Sub(start))
}

func (p *Panel) publish(ctx context.Context, kind streaming.MessageType, outcome streaming.Outcome, account common.Address, wei *big.Int, receipt domain.Receipt, cause error) {
	if p.publisher == nil {
		return
	}
	msg := streaming.Message{
		ID:          uuid.NewString(),
		Type:        kind,
		Outcome:     outcome,
		ChainID:     p.cfg.ChainID,
		Contract:    p.bank.Address().Hex(),
		Account:     account.Hex(),
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Time:        p.now().UTC(),
	}
	if wei != nil {
		msg.AmountWei = wei.String()
	}
	if cause != nil {
		if errKind, ok := KindOf(cause); ok {
			msg.ErrorKind = string(errKind)
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	go func() {
		defer cancel()
		if err := p.publisher.Publish(ctx, msg); err != nil {
			slog.Warn("activity publish failed", "type", msg.Type, "err", err)
		}
	}()
}

func successMessage(action string) string {
	if action == ActionDeposit {
		return depositedMessage
	}
	return withdrawnMessage
}

func messageType(action string) streaming.MessageType {
	if action == ActionDeposit {
		return streaming.MessageTypeDeposit
	}
	return streaming.MessageTypeWithdraw
}
