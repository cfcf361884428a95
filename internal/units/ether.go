package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"
)

const (
	EtherDecimals = 18
	// maxAmountLen bounds the input before it reaches decimal; a uint256 of
	// wei needs 60 integer digits and 18 decimals.
	maxAmountLen = 96
)

var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrInvalidAmount  = errors.New("amount is not a decimal number")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than 18 decimals")
	ErrAmountTooLarge = errors.New("amount exceeds uint256")
)

func ParseEther(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, ErrEmptyAmount
	}
	if len(clean) > maxAmountLen {
		return nil, ErrAmountTooLarge
	}
	if strings.ContainsAny(clean, "eE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	value, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if value.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if -value.Exponent() > EtherDecimals {
		trimmed := value.Truncate(EtherDecimals)
		if !trimmed.Equal(value) {
			return nil, ErrTooPrecise
		}
		value = trimmed
	}
	wei := value.Shift(EtherDecimals).BigInt()
	if wei.Cmp(abi.MaxUint256) > 0 {
		return nil, ErrAmountTooLarge
	}
	return wei, nil
}

func ParsePositiveEther(raw string) (*big.Int, error) {
	wei, err := ParseEther(raw)
	if err != nil {
		return nil, err
	}
	if wei.Sign() == 0 {
		return nil, errors.New("amount must be greater than zero")
	}
	return wei, nil
}

func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
