package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bankdapp/internal/bootstrap"
	"bankdapp/internal/config"
	"bankdapp/internal/interfaces/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "bankpanel", Quiet: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup error:", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	model, unsubscribe := tui.New(ctx, app.Panel, app.Wallet, tui.Options{
		ChainID:     cfg.ChainID,
		AutoConnect: cfg.WalletAutoConnect,
	})
	defer unsubscribe()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		slog.Error("panel exited", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
