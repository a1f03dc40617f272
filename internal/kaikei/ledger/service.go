package ledger

import (
	"context"
	"fmt"
)

// Service is the production Backend: Blockfrost for chain reads, the
// journal for submissions and their status.
type Service struct {
	readers map[Network]*Blockfrost
	journal *Journal
}

// NewService wires one Blockfrost client per configured network. Networks
// with no client answer ErrNotConfigured for chain reads.
func NewService(journal *Journal, readers ...*Blockfrost) *Service {
	s := &Service{readers: make(map[Network]*Blockfrost), journal: journal}
	for _, r := range readers {
		s.readers[r.network] = r
	}
	return s
}

var _ Backend = (*Service)(nil)

// Balance returns the chain balance less any journaled outflow still in flight.
func (s *Service) Balance(ctx context.Context, network Network, address string) (Balance, error) {
	r, ok := s.readers[network]
	if !ok {
		return Balance{}, fmt.Errorf("%w: %s", ErrNotConfigured, network)
	}
	bal, err := r.Balance(ctx, address)
	if err != nil {
		return Balance{}, err
	}
	if s.journal != nil {
		out, err := s.journal.Outflow(ctx, network, address)
		if err != nil {
			return Balance{}, err
		}
		bal.Lovelace -= out
		if bal.Lovelace < 0 {
			bal.Lovelace = 0
		}
	}
	return bal, nil
}

// ValidateAddress checks address shape for network locally.
func (s *Service) ValidateAddress(_ context.Context, network Network, address string) (bool, error) {
	return ValidAddress(network, address), nil
}

// SubmitTransfer records t in the journal.
func (s *Service) SubmitTransfer(ctx context.Context, t Transfer) (Receipt, error) {
	if s.journal == nil {
		return Receipt{}, fmt.Errorf("%w: no transfer journal", ErrNotConfigured)
	}
	return s.journal.Record(ctx, t)
}

// TransactionStatus answers local references from the journal and
// everything else from Blockfrost.
func (s *Service) TransactionStatus(ctx context.Context, network Network, txRef string) (TxStatus, error) {
	if IsLocalRef(txRef) {
		if s.journal == nil {
			return TxStatus{}, ErrNotFound
		}
		return s.journal.Lookup(ctx, network, txRef)
	}
	r, ok := s.readers[network]
	if !ok {
		return TxStatus{}, fmt.Errorf("%w: %s", ErrNotConfigured, network)
	}
	return r.TransactionStatus(ctx, txRef)
}
