package domain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotConnected = errors.New("wallet is not connected")
	ErrUserRejected = errors.New("user rejected the request")
)

type Session struct {
	Account   common.Address `json:"account"`
	Connected bool           `json:"connected"`
}
