package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"bankdapp/internal/application"
	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const (
	chunkCacheKeyPrefix = "bankdapp:chunks:v1:"
	defaultCacheTTL     = time.Hour
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

type kvStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedRepository puts redis in front of a ChunkStore. Redis failures
// degrade to the underlying store.
type CachedRepository struct {
	base   application.ChunkStore
	cache  kvStore
	client *redis.Client
	ttl    time.Duration
}

func NewCachedRepository(base application.ChunkStore, cfg CacheConfig) (*CachedRepository, error) {
	if base == nil {
		return nil, errors.New("base repository is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRepository{base: base}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &CachedRepository{base: base, cache: client, client: client, ttl: cfg.TTL}, nil
}

func (r *CachedRepository) LoadChunk(ctx context.Context, key application.ChunkKey) ([]domain.TransferEvent, bool, error) {
	if r.cache == nil {
		return r.base.LoadChunk(ctx, key)
	}
	cacheKey := chunkCacheKey(key)
	if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
		if events, err := decodeChunk(cached, key.Kind); err == nil {
			return events, true, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		slog.Debug("chunk cache get failed", "key", cacheKey, "err", err)
	}

	events, ok, err := r.base.LoadChunk(ctx, key)
	if err != nil || !ok {
		return events, ok, err
	}
	r.put(ctx, cacheKey, events)
	return events, true, nil
}

func (r *CachedRepository) SaveChunk(ctx context.Context, key application.ChunkKey, events []domain.TransferEvent) error {
	if err := r.base.SaveChunk(ctx, key, events); err != nil {
		return err
	}
	if r.cache != nil {
		r.put(ctx, chunkCacheKey(key), events)
	}
	return nil
}

func (r *CachedRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *CachedRepository) put(ctx context.Context, cacheKey string, events []domain.TransferEvent) {
	payload, err := encodeChunk(events)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey, payload, r.ttl).Err(); err != nil {
		slog.Debug("chunk cache set failed", "key", cacheKey, "err", err)
	}
}

type cachedEvent struct {
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	BlockNumber uint64 `json:"block"`
	TxHash      string `json:"tx"`
	LogIndex    uint64 `json:"index"`
}

func encodeChunk(events []domain.TransferEvent) ([]byte, error) {
	out := make([]cachedEvent, 0, len(events))
	for _, event := range events {
		if event.Amount == nil {
			return nil, errors.New("event without amount")
		}
		out = append(out, cachedEvent{
			Account:     event.Account.Hex(),
			Amount:      event.Amount.String(),
			BlockNumber: event.BlockNumber,
			TxHash:      event.TxHash,
			LogIndex:    event.LogIndex,
		})
	}
	return json.Marshal(out)
}

func decodeChunk(payload string, kind domain.EventKind) ([]domain.TransferEvent, error) {
	var cached []cachedEvent
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		return nil, err
	}
	events := make([]domain.TransferEvent, 0, len(cached))
	for _, c := range cached {
		amount, ok := new(big.Int).SetString(c.Amount, 10)
		if !ok {
			return nil, errors.New("invalid cached amount")
		}
		events = append(events, domain.TransferEvent{
			Kind:        kind,
			Account:     common.HexToAddress(c.Account),
			Amount:      amount,
			BlockNumber: c.BlockNumber,
			TxHash:      c.TxHash,
			LogIndex:    c.LogIndex,
		})
	}
	return events, nil
}

func chunkCacheKey(key application.ChunkKey) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(chunkCacheKeyPrefix)
	b.WriteString(strconv.FormatUint(key.ChainID, 10))
	b.WriteString(":")
	b.WriteString(strings.ToLower(key.Contract.Hex()))
	b.WriteString(":")
	b.WriteString(string(key.Kind))
	b.WriteString(":")
	b.WriteString(strconv.FormatUint(key.FromBlock, 10))
	b.WriteString("-")
	b.WriteString(strconv.FormatUint(key.ToBlock, 10))
	return b.String()
}
