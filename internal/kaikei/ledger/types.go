package ledger

import (
	"context"
	"errors"
	"math"
	"time"
)

// LovelacePerADA is the fixed ADA subunit ratio.
const LovelacePerADA = 1_000_000

var (
	// ErrNotConfigured is returned when no backend exists for a network.
	ErrNotConfigured = errors.New("ledger: network not configured")
	// ErrNotFound is returned for unknown transactions.
	ErrNotFound = errors.New("ledger: not found")
)

// Lovelace converts an ADA amount, rounding to the nearest lovelace.
func Lovelace(ada float64) int64 {
	return int64(math.Round(ada * LovelacePerADA))
}

// ADA converts lovelace to ADA.
func ADA(lovelace int64) float64 {
	return float64(lovelace) / LovelacePerADA
}

// Balance is the spendable amount held at an address.
type Balance struct {
	Address  string
	Network  Network
	Lovelace int64
	Currency string
}

// ADA returns the balance in whole units.
func (b Balance) ADA() float64 { return ADA(b.Lovelace) }

// Transfer is a request to move funds out of a funding source.
type Transfer struct {
	SourceID      string
	SourceAddress string
	Recipient     string
	Lovelace      int64
	Network       Network
}

// Receipt identifies a submitted transfer.
type Receipt struct {
	TxRef   string
	Network Network
}

// TxStatus is a point-in-time view of a transaction.
type TxStatus struct {
	TxRef         string
	Network       Network
	State         string // "submitted", "confirmed"
	Block         string
	BlockHeight   int64
	Confirmations int64
	SubmittedAt   time.Time
}

// Backend is the full ledger contract the gateway consumes.
type Backend interface {
	Balance(ctx context.Context, network Network, address string) (Balance, error)
	ValidateAddress(ctx context.Context, network Network, address string) (bool, error)
	SubmitTransfer(ctx context.Context, t Transfer) (Receipt, error)
	TransactionStatus(ctx context.Context, network Network, txRef string) (TxStatus, error)
}
