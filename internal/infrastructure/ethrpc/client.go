package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
}

type Config struct {
	URL     string
	Timeout time.Duration
}

// RPCError is an error object returned by the node. It satisfies
// rpc.Error and rpc.DataError so callers need not import this package.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) ErrorCode() int { return e.Code }

func (e *RPCError) ErrorData() interface{} { return e.Data }

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc status %d", e.StatusCode)
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_chainId", []any{}, &result); err != nil {
		return nil, err
	}
	return parseHexBig(result)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

func (c *Client) Call(ctx context.Context, req domain.CallRequest) ([]byte, error) {
	var result string
	if err := c.call(ctx, "eth_call", []any{toCallArg(req), "latest"}, &result); err != nil {
		return nil, err
	}
	return hexutil.Decode(result)
}

func (c *Client) EstimateGas(ctx context.Context, req domain.CallRequest) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_estimateGas", []any{toCallArg(req)}, &result); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_gasPrice", []any{}, &result); err != nil {
		return nil, err
	}
	return parseHexBig(result)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_getTransactionCount", []any{account.Hex(), "pending"}, &result); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var result string
	if err := c.call(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(raw)}, &result); err != nil {
		return "", err
	}
	return result, nil
}

// TransactionReceipt returns the receipt of txHash; ok is false while the
// transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error) {
	var result *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &result); err != nil {
		return domain.Receipt{}, false, err
	}
	if result == nil {
		return domain.Receipt{}, false, nil
	}
	blockNumber, err := parseHexUint(result.BlockNumber)
	if err != nil {
		return domain.Receipt{}, false, err
	}
	status, err := parseHexUint(result.Status)
	if err != nil {
		return domain.Receipt{}, false, err
	}
	var gasUsed uint64
	if result.GasUsed != "" {
		if gasUsed, err = parseHexUint(result.GasUsed); err != nil {
			return domain.Receipt{}, false, err
		}
	}
	return domain.Receipt{
		TxHash:      result.TxHash,
		BlockNumber: blockNumber,
		BlockHash:   result.BlockHash,
		Status:      status,
		GasUsed:     gasUsed,
	}, true, nil
}

func (c *Client) FetchLogs(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	query := map[string]any{
		"fromBlock": formatHexUint(filter.FromBlock),
		"toBlock":   formatHexUint(filter.ToBlock),
		"address":   strings.ToLower(filter.Address.Hex()),
	}
	if filter.Topic0 != (common.Hash{}) {
		query["topics"] = []any{strings.ToLower(filter.Topic0.Hex())}
	}

	var result []rpcLog
	if err := c.call(ctx, "eth_getLogs", []any{query}, &result); err != nil {
		return nil, err
	}

	logs := make([]domain.LogEntry, 0, len(result))
	for _, log := range result {
		if log.Removed {
			continue
		}
		blockNumber, err := parseHexUint(log.BlockNumber)
		if err != nil {
			return nil, err
		}
		logIndex, err := parseHexUint(log.LogIndex)
		if err != nil {
			return nil, err
		}
		logs = append(logs, domain.LogEntry{
			BlockNumber: blockNumber,
			TxHash:      log.TxHash,
			LogIndex:    logIndex,
			Address:     strings.ToLower(log.Address),
			Data:        log.Data,
			Topics:      log.Topics,
		})
	}

	return logs, nil
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

type rpcReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
	Status      string `json:"status"`
	GasUsed     string `json:"gasUsed"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func toCallArg(req domain.CallRequest) map[string]any {
	arg := map[string]any{
		"to": req.To.Hex(),
	}
	if req.From != (common.Address{}) {
		arg["from"] = req.From.Hex()
	}
	if len(req.Data) > 0 {
		arg["data"] = hexutil.Encode(req.Data)
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		arg["value"] = hexutil.EncodeBig(req.Value)
	}
	return arg
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	ctx, span := otel.Tracer("bankdapp/ethrpc").Start(ctx, "ethrpc."+method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("rpc.method", method))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}

func parseHexUint(value string) (uint64, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return 0, errors.New("empty hex value")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

func parseHexBig(value string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return nil, errors.New("empty hex value")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", value)
	}
	return parsed, nil
}

func formatHexUint(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}
