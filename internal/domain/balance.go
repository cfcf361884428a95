package domain

import "math/big"

type BalanceView struct {
	Wei   *big.Int `json:"wei"`
	Ether string   `json:"ether"`
}
