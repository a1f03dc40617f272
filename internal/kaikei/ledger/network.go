// Package ledger talks to the Cardano network on behalf of the dialogue
// core: balances, address checks, transfer submission and status lookups.
package ledger

import (
	"fmt"
	"strings"
)

// Network identifies which chain a wallet, balance or staged transfer
// belongs to.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// Networks lists every supported network in display order.
var Networks = []Network{Testnet, Mainnet}

// ParseNetwork accepts "testnet"/"mainnet" in any case, plus the common
// alias "preprod" for testnet.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "testnet", "preprod":
		return Testnet, nil
	case "mainnet":
		return Mainnet, nil
	}
	return "", fmt.Errorf("ledger: unknown network %q", s)
}

func (n Network) String() string { return string(n) }

// AddressPrefix is the bech32 human-readable part plus separator used for
// payment addresses on n.
func (n Network) AddressPrefix() string {
	if n == Mainnet {
		return "addr1"
	}
	return "addr_test1"
}
