package dialogue_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kaikei/internal/kaikei/dialogue"
	"github.com/bdobrica/Kaikei/internal/kaikei/gateway"
	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
	"github.com/bdobrica/Kaikei/internal/kaikei/store"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

type fakeWallets struct {
	mu      sync.Mutex
	sources map[string][]wallet.FundingSource
	seq     int
	listErr error
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{sources: make(map[string][]wallet.FundingSource)}
}

func walletKey(userID string, n ledger.Network) string { return userID + "|" + string(n) }

func (f *fakeWallets) List(_ context.Context, userID string, n ledger.Network) ([]wallet.FundingSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]wallet.FundingSource(nil), f.sources[walletKey(userID, n)]...), nil
}

func (f *fakeWallets) Create(_ context.Context, userID string, n ledger.Network, name string) (wallet.FundingSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = wallet.SanitizeName(name)
	if name == "" {
		name = "wallet_abc123"
	}
	key := walletKey(userID, n)
	for _, s := range f.sources[key] {
		if s.Name == name {
			return wallet.FundingSource{}, wallet.ErrDuplicateName
		}
	}
	f.seq++
	src := wallet.FundingSource{
		ID:        fmt.Sprintf("w%d", f.seq),
		UserID:    userID,
		Network:   n,
		Name:      name,
		Address:   fmt.Sprintf("%sqz%040d", n.AddressPrefix(), f.seq),
		CreatedAt: time.Now(),
	}
	f.sources[key] = append(f.sources[key], src)
	return src, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	lovelace  int64
	sends     []gateway.SendRequest
	sendErr   error
	statusErr error
}

func (g *fakeGateway) Balance(_ context.Context, ref string) (gateway.BalanceReport, error) {
	return gateway.BalanceReport{
		Source:  wallet.FundingSource{ID: ref, Name: "main", Address: "addr_test1qz0000", Network: ledger.Testnet},
		Balance: ledger.Balance{Network: ledger.Testnet, Lovelace: g.lovelace, Currency: "ADA"},
	}, nil
}

func (g *fakeGateway) Send(_ context.Context, req gateway.SendRequest) (ledger.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, req)
	if g.sendErr != nil {
		return ledger.Receipt{}, g.sendErr
	}
	return ledger.Receipt{TxRef: fmt.Sprintf("local_%d", len(g.sends)), Network: req.Network}, nil
}

func (g *fakeGateway) Status(_ context.Context, n ledger.Network, ref string) (ledger.TxStatus, error) {
	if g.statusErr != nil {
		return ledger.TxStatus{}, g.statusErr
	}
	return ledger.TxStatus{TxRef: ref, Network: n, State: "submitted"}, nil
}

func (g *fakeGateway) sent() []gateway.SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.SendRequest(nil), g.sends...)
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

func (a *fakeAuditor) WriteAudit(_ context.Context, e store.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action + ":" + e.Result
	}
	return out
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	if _, err := io.ReadAll(audio); err != nil {
		return "", err
	}
	return f.text, f.err
}

type resolverFunc func(ctx context.Context, text string) intent.Result

func (f resolverFunc) Resolve(ctx context.Context, text string) intent.Result { return f(ctx, text) }

type harness struct {
	engine   *dialogue.Engine
	sessions *session.Store
	wallets  *fakeWallets
	gateway  *fakeGateway
	audit    *fakeAuditor
}

type option func(*dialogue.Config)

func withResolver(r dialogue.Resolver) option {
	return func(c *dialogue.Config) { c.Resolver = r }
}

func withTranscriber(tr dialogue.Transcriber) option {
	return func(c *dialogue.Config) { c.Transcriber = tr }
}

func withAllowList(ids ...string) option {
	return func(c *dialogue.Config) { c.Authorizer = dialogue.NewAllowList(ids) }
}

func withSessions(st *session.Store) option {
	return func(c *dialogue.Config) { c.Sessions = st }
}

// newHarness wires an engine whose resolver is the pattern tier alone.
func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	m, err := intent.NewMatcher(intent.DefaultLexicon())
	require.NoError(t, err)

	h := &harness{
		sessions: session.New(session.Config{}),
		wallets:  newFakeWallets(),
		gateway:  &fakeGateway{lovelace: 100 * ledger.LovelacePerADA},
		audit:    &fakeAuditor{},
	}
	cfg := dialogue.Config{
		Sessions: h.sessions,
		Resolver: intent.NewResolver(m),
		Gateway:  h.gateway,
		Wallets:  h.wallets,
		Audit:    h.audit,
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.sessions = cfg.Sessions

	h.engine, err = dialogue.New(cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) addWallet(t *testing.T, userID string, n ledger.Network, name string) wallet.FundingSource {
	t.Helper()
	src, err := h.wallets.Create(context.Background(), userID, n, name)
	require.NoError(t, err)
	return src
}

func (h *harness) text(t *testing.T, userID, text string) []dialogue.Reply {
	t.Helper()
	replies, err := h.engine.HandleText(context.Background(), userID, text)
	require.NoError(t, err)
	return replies
}

func (h *harness) choice(t *testing.T, userID, token string) []dialogue.Reply {
	t.Helper()
	replies, err := h.engine.HandleChoice(context.Background(), userID, token)
	require.NoError(t, err)
	return replies
}

var errBoom = errors.New("boom")
