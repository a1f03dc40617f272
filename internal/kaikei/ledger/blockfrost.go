package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBlockfrostTimeout = 15 * time.Second
	blockfrostTestnetURL     = "https://cardano-preprod.blockfrost.io/api/v0"
	blockfrostMainnetURL     = "https://cardano-mainnet.blockfrost.io/api/v0"
)

// BlockfrostConfig configures a read-only client for one network.
type BlockfrostConfig struct {
	Network   Network
	ProjectID string
	// BaseURL overrides the public endpoint for Network.
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client (useful for tests).
	HTTPClient *http.Client
}

// Blockfrost reads balances and transaction status from the Blockfrost API.
type Blockfrost struct {
	network   Network
	projectID string
	baseURL   string
	http      *http.Client
}

// NewBlockfrost returns a client for cfg.Network.
func NewBlockfrost(cfg BlockfrostConfig) *Blockfrost {
	base := cfg.BaseURL
	if base == "" {
		base = blockfrostTestnetURL
		if cfg.Network == Mainnet {
			base = blockfrostMainnetURL
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultBlockfrostTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Blockfrost{
		network:   cfg.Network,
		projectID: cfg.ProjectID,
		baseURL:   strings.TrimRight(base, "/"),
		http:      hc,
	}
}

type bfAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type bfAddress struct {
	Address string     `json:"address"`
	Amount  []bfAmount `json:"amount"`
}

type bfTx struct {
	Hash        string `json:"hash"`
	Block       string `json:"block"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

type bfBlock struct {
	Height int64 `json:"height"`
}

type bfError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Balance returns the lovelace held at address. Addresses the chain has
// never seen are reported with a zero balance.
func (b *Blockfrost) Balance(ctx context.Context, address string) (Balance, error) {
	bal := Balance{Address: address, Network: b.network, Currency: "ADA"}

	var out bfAddress
	err := b.get(ctx, "/addresses/"+url.PathEscape(address), &out)
	if errors.Is(err, ErrNotFound) {
		return bal, nil
	}
	if err != nil {
		return Balance{}, err
	}

	for _, a := range out.Amount {
		if a.Unit != "lovelace" {
			continue
		}
		n, err := strconv.ParseInt(a.Quantity, 10, 64)
		if err != nil {
			return Balance{}, fmt.Errorf("blockfrost: parse lovelace quantity %q: %w", a.Quantity, err)
		}
		bal.Lovelace = n
	}
	return bal, nil
}

// TransactionStatus looks up a confirmed transaction and derives its depth
// from the latest block height.
func (b *Blockfrost) TransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	var tx bfTx
	if err := b.get(ctx, "/txs/"+url.PathEscape(txHash), &tx); err != nil {
		return TxStatus{}, err
	}

	st := TxStatus{
		TxRef:       tx.Hash,
		Network:     b.network,
		State:       "confirmed",
		Block:       tx.Block,
		BlockHeight: tx.BlockHeight,
	}
	if tx.BlockTime > 0 {
		st.SubmittedAt = time.Unix(tx.BlockTime, 0).UTC()
	}

	var tip bfBlock
	if err := b.get(ctx, "/blocks/latest", &tip); err == nil && tip.Height >= tx.BlockHeight {
		st.Confirmations = tip.Height - tx.BlockHeight + 1
	}
	return st, nil
}

func (b *Blockfrost) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("blockfrost: build request: %w", err)
	}
	req.Header.Set("project_id", b.projectID)
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("blockfrost: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("blockfrost: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr bfError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("blockfrost: %s: status %d: %s", path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("blockfrost: %s: status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("blockfrost: decode %s: %w", path, err)
	}
	return nil
}
