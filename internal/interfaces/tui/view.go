package tui

import (
	"fmt"
	"strings"

	"bankdapp/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	sections := []string{m.connectionBar(), m.accountPanel()}
	if toasts := m.notifications(); toasts != "" {
		sections = append(sections, toasts)
	}
	sections = append(sections, m.help())
	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) connectionBar() string {
	left := barStyle.Render("Logo")
	var right string
	if session := m.snap.Session; session.Connected {
		right = addressStyle.Render(ShortenAddr(session.Account))
	} else {
		right = hotkeyKey.Render("[c]") + hotkeyStyle.Render(" Connect Wallet")
	}
	if m.opts.ChainID != 0 {
		right += mutedStyle.Render(fmt.Sprintf("  chain %d", m.opts.ChainID))
	}

	gap := 4
	if m.width > 0 {
		if fill := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4; fill > gap {
			gap = fill
		}
	}
	bar := left + strings.Repeat(" ", gap) + right
	if m.connectErr != "" {
		bar += "\n" + errorLineStyle.Render(m.connectErr)
	}
	return bar
}

func (m Model) accountPanel() string {
	if !m.snap.Session.Connected {
		return "\n" + warnStyle.Render("Please connect your Wallet to our DApp.")
	}
	if m.busy() {
		return "\n" + m.spin.View() + mutedStyle.Render(" Loading...")
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("Your balance in the Bank"))
	b.WriteString("\n")
	b.WriteString(formatBalance(m.snap.Balance))
	b.WriteString("\n")

	b.WriteString(m.label("Deposit", m.focus == fieldDeposit))
	b.WriteString("\n")
	b.WriteString(m.deposit.View())
	b.WriteString("\n")
	b.WriteString(m.label("Withdraw", m.focus == fieldWithdraw))
	b.WriteString("\n")
	b.WriteString(m.withdraw.View())
	b.WriteString("\n")

	b.WriteString(eventList("Deposit Events", "No Deposit Events", m.snap.History.Deposits))
	b.WriteString(eventList("Withdraw Events", "No Withdraw Events", m.snap.History.Withdraws))
	return b.String()
}

func (m Model) label(text string, focused bool) string {
	if focused {
		return focusedLabel.MarginTop(1).Render(text)
	}
	return headingStyle.Render(text)
}

func eventList(title, empty string, events []domain.TransferEvent) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(title))
	b.WriteString("\n")
	if len(events) == 0 {
		b.WriteString(mutedStyle.Render(empty))
		b.WriteString("\n")
		return b.String()
	}
	for _, event := range events {
		b.WriteString(formatEvent(event))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) notifications() string {
	if len(m.snap.Notifications) == 0 {
		return ""
	}
	rows := make([]string, 0, len(m.snap.Notifications))
	for _, n := range m.snap.Notifications {
		style := successToast
		if n.Status == domain.NotificationError {
			style = errorToast
		}
		rows = append(rows, style.Render(n.Title+"\n"+n.Description))
	}
	return "\n" + strings.Join(rows, "\n")
}

func (m Model) help() string {
	keys := [][2]string{{"tab", "switch"}, {"enter", "submit"}, {"r", "refresh"}, {"d", "dismiss"}, {"c", "connect"}, {"x", "disconnect"}, {"q", "quit"}}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, hotkeyKey.Render(k[0])+" "+hotkeyStyle.Render(k[1]))
	}
	return "\n" + strings.Join(parts, hotkeyStyle.Render(" · "))
}
