package tui

import (
	"context"
	"time"

	"bankdapp/internal/application"
	"bankdapp/internal/domain"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

const tickInterval = 250 * time.Millisecond

type PanelService interface {
	OnSession(ctx context.Context, session domain.Session) error
	Refresh(ctx context.Context) error
	Deposit(ctx context.Context, amount string) error
	Withdraw(ctx context.Context, amount string) error
	SetPendingDeposit(amount string)
	SetPendingWithdraw(amount string)
	DismissNotification(id uuid.UUID) bool
	Snapshot() application.Snapshot
}

type WalletService interface {
	Connect(ctx context.Context) (domain.Session, error)
	Disconnect() domain.Session
	Session() domain.Session
	Subscribe() (<-chan domain.Session, func())
}

type Options struct {
	ChainID     uint64
	AutoConnect bool
}

type field int

const (
	fieldDeposit field = iota
	fieldWithdraw
)

type (
	sessionMsg    domain.Session
	connectErrMsg struct{ err error }
	actionDoneMsg struct {
		action string
		err    error
	}
	tickMsg time.Time
)

type Model struct {
	ctx    context.Context
	panel  PanelService
	wallet WalletService
	opts   Options

	sessions <-chan domain.Session

	spin     spinner.Model
	deposit  textinput.Model
	withdraw textinput.Model
	focus    field

	snap       application.Snapshot
	running    int
	connectErr string
	width      int
}

func New(ctx context.Context, panel PanelService, wallet WalletService, opts Options) (Model, func()) {
	sessions, cancel := wallet.Subscribe()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = addressStyle

	m := Model{
		ctx:      ctx,
		panel:    panel,
		wallet:   wallet,
		opts:     opts,
		sessions: sessions,
		spin:     sp,
		deposit:  newAmountInput(),
		withdraw: newAmountInput(),
		snap:     panel.Snapshot(),
	}
	m.deposit.Focus()
	return m, cancel
}

func newAmountInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.Placeholder = "Amount in Eth"
	ti.CharLimit = 40
	ti.Width = 24
	return ti
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, waitForSession(m.sessions), tick()}
	if m.opts.AutoConnect {
		cmds = append(cmds, connect(m.ctx, m.wallet))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionMsg:
		m.connectErr = ""
		m.running++
		m.snap = m.panel.Snapshot()
		return m, tea.Batch(
			onSession(m.ctx, m.panel, domain.Session(msg)),
			waitForSession(m.sessions),
		)

	case connectErrMsg:
		m.connectErr = msg.err.Error()
		return m, nil

	case actionDoneMsg:
		if m.running > 0 {
			m.running--
		}
		m.snap = m.panel.Snapshot()
		m.deposit.SetValue(m.snap.PendingDeposit)
		m.withdraw.SetValue(m.snap.PendingWithdraw)
		return m, nil

	case tickMsg:
		m.snap = m.panel.Snapshot()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "c":
		m.connectErr = ""
		return m, connect(m.ctx, m.wallet)
	case "x":
		wallet := m.wallet
		return m, func() tea.Msg {
			wallet.Disconnect()
			return nil
		}
	}

	if !m.snap.Session.Connected || m.busy() {
		return m, nil
	}

	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		m.toggleFocus()
		return m, nil
	case "r":
		m.running++
		return m, runAction(application.ActionRefresh, func() error { return m.panel.Refresh(m.ctx) })
	case "d":
		if len(m.snap.Notifications) > 0 {
			m.panel.DismissNotification(m.snap.Notifications[0].ID)
			m.snap = m.panel.Snapshot()
		}
		return m, nil
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	if m.focus == fieldDeposit {
		m.deposit, cmd = m.deposit.Update(msg)
		m.panel.SetPendingDeposit(m.deposit.Value())
	} else {
		m.withdraw, cmd = m.withdraw.Update(msg)
		m.panel.SetPendingWithdraw(m.withdraw.Value())
	}
	m.snap = m.panel.Snapshot()
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == fieldDeposit {
		m.focus = fieldWithdraw
		m.deposit.Blur()
		m.withdraw.Focus()
		return
	}
	m.focus = fieldDeposit
	m.withdraw.Blur()
	m.deposit.Focus()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	panel, ctx := m.panel, m.ctx
	m.running++
	if m.focus == fieldDeposit {
		amount := m.deposit.Value()
		return m, runAction(application.ActionDeposit, func() error { return panel.Deposit(ctx, amount) })
	}
	amount := m.withdraw.Value()
	return m, runAction(application.ActionWithdraw, func() error { return panel.Withdraw(ctx, amount) })
}

func (m Model) busy() bool {
	return m.running > 0 || m.snap.State == application.StateLoading
}

func connect(ctx context.Context, wallet WalletService) tea.Cmd {
	return func() tea.Msg {
		if _, err := wallet.Connect(ctx); err != nil {
			return connectErrMsg{err: err}
		}
		return nil
	}
}

// waitForSession blocks on the subscription; the wallet only keeps the
// latest session so a slow reader never sees a stale one.
func waitForSession(sessions <-chan domain.Session) tea.Cmd {
	return func() tea.Msg {
		session, ok := <-sessions
		if !ok {
			return nil
		}
		return sessionMsg(session)
	}
}

func onSession(ctx context.Context, panel PanelService, session domain.Session) tea.Cmd {
	return runAction("session", func() error { return panel.OnSession(ctx, session) })
}

func runAction(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
