package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type CallRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

type LogFilter struct {
	Address   common.Address
	Topic0    common.Hash
	FromBlock uint64
	ToBlock   uint64
}
