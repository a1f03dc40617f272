package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := New(Config{TTL: time.Minute})
	st.now = c.now
	return st, c
}

func sampleAction() StagedAction {
	return StagedAction{Amount: 5, Recipient: "abc123xyz", Network: ledger.Testnet, WalletRef: "w1", WalletName: "main"}
}

func TestGetOrCreate_Defaults(t *testing.T) {
	st := New(Config{})
	s := st.GetOrCreate("@alice:example.com")

	assert.Equal(t, "@alice:example.com", s.UserID)
	assert.Equal(t, ledger.Testnet, s.Network)
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Pending)
	assert.Equal(t, DefaultTTL, st.TTL())

	mainnet := New(Config{DefaultNetwork: ledger.Mainnet})
	assert.Equal(t, ledger.Mainnet, mainnet.GetOrCreate("@bob:example.com").Network)
}

func TestStage_RequiresIdle(t *testing.T) {
	st, c := newTestStore(t)
	const u = "@alice:example.com"

	require.NoError(t, st.Stage(u, sampleAction()))
	s := st.GetOrCreate(u)
	require.NotNil(t, s.Pending)
	assert.Equal(t, AwaitingConfirmation, s.State)
	assert.Equal(t, u, s.Pending.Owner)
	assert.Equal(t, SendFunds, s.Pending.Kind)
	assert.Equal(t, c.now().Add(time.Minute), s.Pending.ExpiresAt)

	err := st.Stage(u, sampleAction())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = st.BeginWalletDraft(u)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTakePending_SingleShot(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	a, err := st.TakePending(u)
	require.NoError(t, err)
	assert.Equal(t, 5.0, a.Amount)
	assert.Equal(t, "abc123xyz", a.Recipient)

	s := st.GetOrCreate(u)
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Pending)

	_, err = st.TakePending(u)
	assert.ErrorIs(t, err, ErrNoPendingAction)
}

func TestTakePending_ConcurrentCallersOneWins(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.TakePending(u); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSetNetwork_KeepsSnapshot(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	st.SetNetwork(u, ledger.Mainnet)

	s := st.GetOrCreate(u)
	assert.Equal(t, ledger.Mainnet, s.Network)
	assert.Equal(t, ledger.Testnet, s.Pending.Network)
	assert.Equal(t, AwaitingConfirmation, s.State)
}

func TestCrossUserIsolation(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.Stage("@alice:example.com", sampleAction()))
	st.SetNetwork("@bob:example.com", ledger.Mainnet)
	tokens := st.Offer("@alice:example.com", ChoiceAction{Kind: ChoiceConfirm})

	_, err := st.TakePending("@bob:example.com")
	assert.ErrorIs(t, err, ErrNoPendingAction)
	_, ok := st.TakeChoice("@bob:example.com", tokens[0])
	assert.False(t, ok, "bob must not redeem alice's token")

	alice := st.GetOrCreate("@alice:example.com")
	assert.Equal(t, ledger.Testnet, alice.Network)
	assert.Equal(t, AwaitingConfirmation, alice.State)
	assert.Len(t, alice.Choices, 1)
}

func TestWalletDraft(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	st.SetNetwork(u, ledger.Mainnet)

	d, err := st.BeginWalletDraft(u)
	require.NoError(t, err)
	assert.Equal(t, ledger.Mainnet, d.Network)
	assert.Equal(t, AwaitingWalletName, st.GetOrCreate(u).State)

	assert.ErrorIs(t, st.Stage(u, sampleAction()), ErrInvalidTransition)

	got, err := st.TakeWalletDraft(u)
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, Idle, st.GetOrCreate(u).State)

	_, err = st.TakeWalletDraft(u)
	assert.ErrorIs(t, err, ErrNoWalletDraft)
}

func TestChoices_ClearedOnTransition(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"

	tokens := st.Offer(u, ChoiceAction{Kind: ChoiceNetwork, Value: "testnet"}, ChoiceAction{Kind: ChoiceNetwork, Value: "mainnet"})
	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0], tokens[1])

	require.NoError(t, st.Stage(u, sampleAction()))
	_, ok := st.TakeChoice(u, tokens[1])
	assert.False(t, ok, "staging must clear earlier choices")

	tokens = st.Offer(u, ChoiceAction{Kind: ChoiceConfirm}, ChoiceAction{Kind: ChoiceDecline})
	a, ok := st.TakeChoice(u, tokens[1])
	require.True(t, ok)
	assert.Equal(t, ChoiceDecline, a.Kind)

	_, ok = st.TakeChoice(u, tokens[0])
	assert.False(t, ok, "a choice set is answered once")

	st.Offer(u, ChoiceAction{Kind: ChoiceConfirm})
	_, err := st.TakePending(u)
	require.NoError(t, err)
	assert.Empty(t, st.GetOrCreate(u).Choices)
}

func TestReset_Idempotent(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	prev := st.Reset(u)
	assert.Equal(t, AwaitingConfirmation, prev.State)
	require.NotNil(t, prev.Pending)

	prev = st.Reset(u)
	assert.Equal(t, Idle, prev.State)
	assert.Equal(t, Idle, st.GetOrCreate(u).State)
}

func TestExpire(t *testing.T) {
	st, c := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	_, expired := st.Expire(u)
	assert.False(t, expired)

	c.advance(time.Minute)
	prev, expired := st.Expire(u)
	require.True(t, expired)
	assert.Equal(t, AwaitingConfirmation, prev.State)
	assert.Equal(t, Idle, st.GetOrCreate(u).State)

	_, err := st.BeginWalletDraft(u)
	require.NoError(t, err)
	c.advance(2 * time.Minute)
	prev, expired = st.Expire(u)
	require.True(t, expired)
	assert.Equal(t, AwaitingWalletName, prev.State)
}

func TestLock_SerializesAndCancels(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"

	unlock, err := st.Lock(context.Background(), u)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = st.Lock(ctx, u)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// Other users are not blocked.
	unlockBob, err := st.Lock(context.Background(), "@bob:example.com")
	require.NoError(t, err)
	unlockBob()

	acquired := make(chan struct{})
	go func() {
		u2, err := st.Lock(context.Background(), u)
		if err == nil {
			u2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second turn ran while the first held the lock")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	unlock() // second release is a no-op
	<-acquired
}

func TestPrune(t *testing.T) {
	st, c := newTestStore(t)
	st.GetOrCreate("@idle:example.com")
	require.NoError(t, st.Stage("@busy:example.com", sampleAction()))
	unlock, err := st.Lock(context.Background(), "@locked:example.com")
	require.NoError(t, err)
	defer unlock()

	c.advance(time.Hour)
	assert.Equal(t, 1, st.Prune(30*time.Minute))
	assert.Equal(t, 2, st.Len())
}

func TestStats(t *testing.T) {
	st, _ := newTestStore(t)
	st.GetOrCreate("@a:example.com")
	require.NoError(t, st.Stage("@b:example.com", sampleAction()))
	_, err := st.BeginWalletDraft("@c:example.com")
	require.NoError(t, err)

	assert.Equal(t, Stats{Sessions: 3, AwaitingConfirmation: 1, AwaitingWalletName: 1}, st.Stats())
}

func TestSnapshotsAreCopies(t *testing.T) {
	st, _ := newTestStore(t)
	const u = "@alice:example.com"
	require.NoError(t, st.Stage(u, sampleAction()))

	s := st.GetOrCreate(u)
	s.Pending.Amount = 999
	assert.Equal(t, 5.0, st.GetOrCreate(u).Pending.Amount)
}
