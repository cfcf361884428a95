package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventDeposit  EventKind = "deposit"
	EventWithdraw EventKind = "withdraw"
)

type TransferEvent struct {
	Kind        EventKind      `json:"kind"`
	Account     common.Address `json:"address"`
	Amount      *big.Int       `json:"amount"`
	BlockNumber uint64         `json:"block_number"`
	TxHash      string         `json:"tx_hash"`
	LogIndex    uint64         `json:"log_index"`
}

type EventHistory struct {
	Deposits  []TransferEvent `json:"deposits"`
	Withdraws []TransferEvent `json:"withdraws"`
}

// Clone returns a deep copy so callers cannot mutate panel state.
func (h EventHistory) Clone() EventHistory {
	return EventHistory{
		Deposits:  cloneEvents(h.Deposits),
		Withdraws: cloneEvents(h.Withdraws),
	}
}

func cloneEvents(events []TransferEvent) []TransferEvent {
	if events == nil {
		return nil
	}
	out := make([]TransferEvent, len(events))
	for i, event := range events {
		out[i] = event
		if event.Amount != nil {
			out[i].Amount = new(big.Int).Set(event.Amount)
		}
	}
	return out
}
