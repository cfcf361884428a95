package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bankdapp/internal/bootstrap"
	"bankdapp/internal/config"
	"bankdapp/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := httpapi.NewMetrics()
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "bankapi", Observer: metrics})
	if err != nil {
		slog.Error("startup error", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	server, err := httpapi.NewServer(cfg, app.Panel, app.Wallet, app.RPC, app.Store(), metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	if app.Activity != nil {
		server.WithActivity(app.Activity)
		go func() {
			if err := app.RunActivity(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("activity consumer stopped", "err", err)
			}
		}()
	}

	if cfg.WalletAutoConnect {
		session, err := app.Wallet.Connect(ctx)
		if err != nil {
			slog.Warn("wallet auto-connect failed", "err", err)
		} else if err := app.Panel.OnSession(ctx, session); err != nil {
			slog.Warn("initial refresh failed", "account", session.Account.Hex(), "err", err)
		}
	}

	slog.Info("http server listening", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}
}
