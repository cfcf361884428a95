package application

import (
	"context"
	"fmt"

	"bankdapp/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

type ChunkKey struct {
	ChainID   uint64
	Contract  common.Address
	Kind      domain.EventKind
	FromBlock uint64
	ToBlock   uint64
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%d:%s:%s:%d-%d", k.ChainID, k.Contract.Hex(), k.Kind, k.FromBlock, k.ToBlock)
}

// ChunkStore keeps decoded events of settled block ranges. ok is false
// when the range was never stored; an empty stored range is ok with no
// events.
type ChunkStore interface {
	LoadChunk(ctx context.Context, key ChunkKey) ([]domain.TransferEvent, bool, error)
	SaveChunk(ctx context.Context, key ChunkKey, events []domain.TransferEvent) error
}
