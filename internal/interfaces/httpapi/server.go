package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bankdapp/internal/application"
	"bankdapp/internal/config"
	"bankdapp/internal/domain"
	"bankdapp/internal/streaming"
	"bankdapp/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type PanelService interface {
	OnSession(ctx context.Context, session domain.Session) error
	Refresh(ctx context.Context) error
	Deposit(ctx context.Context, amount string) error
	Withdraw(ctx context.Context, amount string) error
	GetBalanceOfUser(ctx context.Context, account common.Address) (*big.Int, error)
	GetEvents(ctx context.Context) (domain.EventHistory, error)
	Snapshot() application.Snapshot
	DismissNotification(id uuid.UUID) bool
}

type WalletService interface {
	Connect(ctx context.Context) (domain.Session, error)
	Disconnect() domain.Session
	Session() domain.Session
}

type RPCStatus interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ActivityFeed interface {
	Recent(n int) []streaming.Message
}

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	cfg       config.Config
	panel     PanelService
	wallet    WalletService
	rpc       RPCStatus
	store     Pinger
	metrics   *Metrics
	buildInfo BuildInfo
	activity  ActivityFeed
}

const genericError = "An error occured."

func NewServer(cfg config.Config, panel PanelService, wallet WalletService, rpc RPCStatus, store Pinger, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if panel == nil || wallet == nil || rpc == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, panel: panel, wallet: wallet, rpc: rpc, store: store, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) WithActivity(feed ActivityFeed) *Server {
	s.activity = feed
	return s
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "/healthz", http.MethodGet, s.handleHealth)
	s.handle(mux, "/readyz", http.MethodGet, s.handleReady)
	s.handle(mux, "/session", http.MethodGet, s.handleSession)
	s.handle(mux, "/session/connect", http.MethodPost, s.handleConnect)
	s.handle(mux, "/session/disconnect", http.MethodPost, s.handleDisconnect)
	s.handle(mux, "/panel", http.MethodGet, s.handlePanel)
	s.handle(mux, "/balance", http.MethodGet, s.handleBalance)
	s.handle(mux, "/events", http.MethodGet, s.handleEvents)
	s.handle(mux, "/deposit", http.MethodPost, s.handleWrite(application.ActionDeposit))
	s.handle(mux, "/withdraw", http.MethodPost, s.handleWrite(application.ActionWithdraw))
	s.handle(mux, "/refresh", http.MethodPost, s.handleRefresh)
	s.handle(mux, "/notifications/dismiss", http.MethodPost, s.handleDismiss)
	s.handle(mux, "/activity", http.MethodGet, s.handleActivity)
	s.handle(mux, "/config", http.MethodGet, s.handleConfig)
	s.handle(mux, "/metrics", http.MethodGet, s.handleMetrics)
	s.handle(mux, "/version", http.MethodGet, s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handle(mux *http.ServeMux, path, method string, handler http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.metrics.IncHTTPRequest(path)
		if r.Method != method {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handler(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "event store not ready")
			return
		}
	}
	if _, err := s.rpc.LatestBlockNumber(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.wallet.Session())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	session, err := s.wallet.Connect(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "wallet connect failed")
		return
	}
	if err := s.panel.OnSession(r.Context(), session); err != nil {
		respondActionError(w, err, s.panel.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, s.panel.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	session := s.wallet.Disconnect()
	if err := s.panel.OnSession(r.Context(), session); err != nil {
		respondActionError(w, err, s.panel.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, s.panel.Snapshot())
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.panel.Snapshot())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := s.accountParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.panel.GetBalanceOfUser(r.Context(), account)
	if err != nil {
		respondError(w, http.StatusBadGateway, "balance read failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account": account.Hex(),
		"balance": domain.BalanceView{Wei: balance, Ether: units.FormatEther(balance)},
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.panel.GetEvents(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "event read failed")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleWrite(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := parseAmount(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if action == application.ActionDeposit {
			err = s.panel.Deposit(r.Context(), amount)
		} else {
			err = s.panel.Withdraw(r.Context(), amount)
		}
		if err != nil {
			respondActionError(w, err, s.panel.Snapshot())
			return
		}
		respondJSON(w, http.StatusOK, s.panel.Snapshot())
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.Refresh(r.Context()); err != nil {
		respondActionError(w, err, s.panel.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, s.panel.Snapshot())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !s.panel.DismissNotification(id) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		respondError(w, http.StatusNotFound, "activity feed disabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	respondJSON(w, http.StatusOK, s.activity.Recent(limit))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"rpc_url":            s.cfg.RPCURL,
		"contract_address":   s.cfg.ContractAddress.Hex(),
		"chain_id":           s.cfg.ChainID,
		"log_from_block":     s.cfg.LogFromBlock,
		"log_window_blocks":  s.cfg.LogWindowBlocks,
		"log_chunk_size":     s.cfg.LogChunkSize,
		"log_cache_depth":    s.cfg.LogCacheDepth,
		"event_store_driver": s.cfg.EventStoreDriver,
		"redis_enabled":      s.cfg.RedisAddr != "",
		"kafka_enabled":      len(s.cfg.KafkaBrokers) > 0,
		"activity_enabled":   s.activity != nil,
		"receipt_timeout":    s.cfg.ReceiptTimeout.String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	fmt.Fprintf(w, "bankdapp_uptime_seconds %.0f\n", time.Since(snap.StartTime).Seconds())
	for _, action := range snap.Actions {
		fmt.Fprintf(w, "bankdapp_actions_total{action=%q,outcome=%q} %d\n", action.Action, action.Outcome, action.Count)
		fmt.Fprintf(w, "bankdapp_action_seconds_total{action=%q,outcome=%q} %.3f\n", action.Action, action.Outcome, action.Seconds)
	}
	fmt.Fprintf(w, "bankdapp_refreshes_total %d\n", snap.Refreshes)
	fmt.Fprintf(w, "bankdapp_refresh_errors_total %d\n", snap.RefreshErrors)
	fmt.Fprintf(w, "bankdapp_last_refresh_seconds %.3f\n", snap.LastRefresh.Seconds())
	for path, count := range snap.HTTPRequests {
		fmt.Fprintf(w, "bankdapp_http_requests_total{path=%q} %d\n", path, count)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func (s *Server) accountParam(r *http.Request) (common.Address, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("address"))
	if raw == "" {
		session := s.wallet.Session()
		if !session.Connected {
			return common.Address{}, errors.New("address is required when no wallet is connected")
		}
		return session.Account, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid address")
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(r *http.Request) (string, error) {
	if raw := r.URL.Query().Get("amount"); raw != "" {
		return raw, nil
	}
	var payload struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Amount) == 0 {
		return "", errors.New("amount is required")
	}
	var amount string
	if err := json.Unmarshal(payload.Amount, &amount); err == nil {
		return amount, nil
	}
	// Accept bare JSON numbers without going through float64.
	return string(payload.Amount), nil
}

func respondActionError(w http.ResponseWriter, err error, snapshot application.Snapshot) {
	kind, _ := application.KindOf(err)
	respondJSON(w, statusForKind(kind), map[string]any{
		"error": genericError,
		"kind":  kind,
		"panel": snapshot,
	})
}

func statusForKind(kind application.ErrorKind) int {
	switch kind {
	case application.KindInvalidAmount:
		return http.StatusBadRequest
	case application.KindNotConnected, application.KindBusy:
		return http.StatusConflict
	case application.KindUserRejected:
		return http.StatusForbidden
	case application.KindReverted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
