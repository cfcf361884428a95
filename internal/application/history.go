package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"bankdapp/internal/contract"
	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// HistoryConfig bounds the log query. Zero values keep the full
// [FromBlock, latest] range in a single eth_getLogs call per stream.
type HistoryConfig struct {
	ChainID      uint64
	FromBlock    uint64
	WindowBlocks uint64
	ChunkSize    uint64
	CacheDepth   uint64
}

type History struct {
	source LogSource
	bank   *contract.Bank
	store  ChunkStore
	cfg    HistoryConfig
}

type blockRange struct {
	from uint64
	to   uint64
}

func NewHistory(source LogSource, bank *contract.Bank, store ChunkStore, cfg HistoryConfig) (*History, error) {
	if source == nil || bank == nil {
		return nil, errors.New("history dependencies must not be nil")
	}
	return &History{source: source, bank: bank, store: store, cfg: cfg}, nil
}

func (h *History) Load(ctx context.Context) (domain.EventHistory, error) {
	latest, err := h.source.LatestBlockNumber(ctx)
	if err != nil {
		return domain.EventHistory{}, fmt.Errorf("latest block: %w", err)
	}
	from, ok := h.startBlock(latest)
	if !ok {
		return domain.EventHistory{Deposits: []domain.TransferEvent{}, Withdraws: []domain.TransferEvent{}}, nil
	}

	deposits, err := h.loadKind(ctx, domain.EventDeposit, from, latest)
	if err != nil {
		return domain.EventHistory{}, err
	}
	withdraws, err := h.loadKind(ctx, domain.EventWithdraw, from, latest)
	if err != nil {
		return domain.EventHistory{}, err
	}
	return domain.EventHistory{Deposits: deposits, Withdraws: withdraws}, nil
}

func (h *History) startBlock(latest uint64) (uint64, bool) {
	from := h.cfg.FromBlock
	if h.cfg.WindowBlocks > 0 && latest > h.cfg.WindowBlocks && latest-h.cfg.WindowBlocks > from {
		from = latest - h.cfg.WindowBlocks
	}
	return from, from <= latest
}

func (h *History) loadKind(ctx context.Context, kind domain.EventKind, from, latest uint64) ([]domain.TransferEvent, error) {
	topic, err := h.bank.Topic(kind)
	if err != nil {
		return nil, err
	}

	events := make([]domain.TransferEvent, 0)
	for _, r := range splitRange(from, latest, h.cfg.ChunkSize) {
		chunk, err := h.loadChunk(ctx, kind, topic, r, latest)
		if err != nil {
			return nil, err
		}
		events = append(events, chunk...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
	return events, nil
}

func (h *History) loadChunk(ctx context.Context, kind domain.EventKind, topic common.Hash, r blockRange, latest uint64) ([]domain.TransferEvent, error) {
	key := ChunkKey{
		ChainID:   h.cfg.ChainID,
		Contract:  h.bank.Address(),
		Kind:      kind,
		FromBlock: r.from,
		ToBlock:   r.to,
	}
	cacheable := h.settled(r, latest)
	if cacheable {
		cached, ok, err := h.store.LoadChunk(ctx, key)
		if err != nil {
			slog.Warn("event chunk lookup failed", "chunk", key.String(), "err", err)
		} else if ok {
			return cached, nil
		}
	}

	logs, err := h.source.FetchLogs(ctx, domain.LogFilter{
		Address:   h.bank.Address(),
		Topic0:    topic,
		FromBlock: r.from,
		ToBlock:   r.to,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s logs %d-%d: %w", kind, r.from, r.to, err)
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, log := range logs {
		event, err := h.bank.DecodeTransfer(log)
		if errors.Is(err, contract.ErrUnknownTopic) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s log %s: %w", kind, log.TxHash, err)
		}
		if event.Kind != kind {
			continue
		}
		events = append(events, event)
	}

	if cacheable {
		if err := h.store.SaveChunk(ctx, key, events); err != nil {
			slog.Warn("event chunk store failed", "chunk", key.String(), "err", err)
		}
	}
	return events, nil
}

func (h *History) settled(r blockRange, latest uint64) bool {
	if h.store == nil || latest < h.cfg.CacheDepth {
		return false
	}
	return r.to <= latest-h.cfg.CacheDepth
}

// splitRange cuts [from, to] at multiples of size so that chunk bounds
// stay stable while latest moves.
func splitRange(from, to, size uint64) []blockRange {
	if size == 0 {
		return []blockRange{{from: from, to: to}}
	}
	var ranges []blockRange
	for start := from; start <= to; {
		end := (start/size+1)*size - 1
		if end > to {
			end = to
		}
		ranges = append(ranges, blockRange{from: start, to: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return ranges
}
