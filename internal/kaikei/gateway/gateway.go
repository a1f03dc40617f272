// Package gateway is the only path from a confirmed dialogue action to the
// ledger. It resolves wallet references, applies the pre-flight checks and
// hands the transfer to the backend exactly once. It never retries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

var (
	ErrUnknownWallet     = errors.New("gateway: unknown wallet")
	ErrNetworkMismatch   = errors.New("gateway: wallet belongs to another network")
	ErrInvalidRecipient  = errors.New("gateway: invalid recipient address")
	ErrInsufficientFunds = errors.New("gateway: insufficient funds")
	ErrInvalidAmount     = errors.New("gateway: amount must be positive")
)

// Sources resolves wallet references.
type Sources interface {
	Get(ctx context.Context, id string) (wallet.FundingSource, error)
}

// BalanceReport pairs a balance with the wallet it belongs to.
type BalanceReport struct {
	Source  wallet.FundingSource
	Balance ledger.Balance
}

// SendRequest is a confirmed transfer. Network is the network recorded when
// the action was staged.
type SendRequest struct {
	WalletRef string
	Recipient string
	Amount    float64
	Network   ledger.Network
}

// Gateway adapts the ledger backend for the dialogue engine.
type Gateway struct {
	backend ledger.Backend
	sources Sources
}

// New returns a gateway over backend and sources.
func New(backend ledger.Backend, sources Sources) *Gateway {
	return &Gateway{backend: backend, sources: sources}
}

// Balance reports the spendable balance of the referenced wallet.
func (g *Gateway) Balance(ctx context.Context, walletRef string) (BalanceReport, error) {
	src, err := g.source(ctx, walletRef)
	if err != nil {
		return BalanceReport{}, err
	}
	bal, err := g.backend.Balance(ctx, src.Network, src.Address)
	if err != nil {
		return BalanceReport{}, fmt.Errorf("gateway: balance: %w", err)
	}
	return BalanceReport{Source: src, Balance: bal}, nil
}

// Send validates req against the wallet and ledger state, then submits it.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (ledger.Receipt, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return ledger.Receipt{}, ErrInvalidAmount
	}
	lovelace := ledger.Lovelace(req.Amount)
	if lovelace <= 0 {
		return ledger.Receipt{}, ErrInvalidAmount
	}

	src, err := g.source(ctx, req.WalletRef)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if src.Network != req.Network {
		return ledger.Receipt{}, fmt.Errorf("%w: wallet is on %s, transfer is on %s", ErrNetworkMismatch, src.Network, req.Network)
	}

	ok, err := g.backend.ValidateAddress(ctx, req.Network, req.Recipient)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("gateway: validate address: %w", err)
	}
	if !ok {
		return ledger.Receipt{}, fmt.Errorf("%w for %s", ErrInvalidRecipient, req.Network)
	}

	bal, err := g.backend.Balance(ctx, req.Network, src.Address)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("gateway: balance: %w", err)
	}
	if bal.Lovelace < lovelace {
		return ledger.Receipt{}, fmt.Errorf("%w: have %.6f ADA, need %.6f ADA", ErrInsufficientFunds, bal.ADA(), ledger.ADA(lovelace))
	}

	rcpt, err := g.backend.SubmitTransfer(ctx, ledger.Transfer{
		SourceID:      src.ID,
		SourceAddress: src.Address,
		Recipient:     req.Recipient,
		Lovelace:      lovelace,
		Network:       req.Network,
	})
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("gateway: submit: %w", err)
	}
	return rcpt, nil
}

// Status looks up a transaction on network.
func (g *Gateway) Status(ctx context.Context, network ledger.Network, txRef string) (ledger.TxStatus, error) {
	st, err := g.backend.TransactionStatus(ctx, network, txRef)
	if err != nil {
		return ledger.TxStatus{}, fmt.Errorf("gateway: status: %w", err)
	}
	return st, nil
}

func (g *Gateway) source(ctx context.Context, ref string) (wallet.FundingSource, error) {
	src, err := g.sources.Get(ctx, ref)
	if errors.Is(err, wallet.ErrNotFound) {
		return wallet.FundingSource{}, fmt.Errorf("%w: %s", ErrUnknownWallet, ref)
	}
	if err != nil {
		return wallet.FundingSource{}, fmt.Errorf("gateway: resolve wallet: %w", err)
	}
	return src, nil
}
