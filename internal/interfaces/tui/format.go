package tui

import (
	"fmt"

	"bankdapp/internal/domain"
	"bankdapp/internal/units"

	"github.com/ethereum/go-ethereum/common"
)

// ShortenAddr renders an address as 0x1234...abcde.
func ShortenAddr(address common.Address) string {
	hex := address.Hex()
	return hex[:6] + "..." + hex[len(hex)-5:]
}

func formatEvent(event domain.TransferEvent) string {
	return fmt.Sprintf("%s - %s Eth", ShortenAddr(event.Account), units.FormatEther(event.Amount))
}

func formatBalance(balance domain.BalanceView) string {
	if balance.Ether == "" {
		return "0 Eth"
	}
	return balance.Ether + " Eth"
}
