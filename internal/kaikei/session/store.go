package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

// DefaultTTL is how long a staged action or wallet draft stays valid.
const DefaultTTL = 5 * time.Minute

// Config configures a Store.
type Config struct {
	// DefaultNetwork is assigned on first contact. Defaults to testnet.
	DefaultNetwork ledger.Network
	// TTL bounds staged actions and wallet drafts. Defaults to DefaultTTL.
	TTL time.Duration
}

// Store is the keyed per-user session map. It is safe for concurrent use.
//
// The map mutex guards lookups only. Each entry carries its own field
// mutex plus a turn lock that serializes whole turns of one user.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	now     func() time.Time
}

type entry struct {
	// turn is a one-slot semaphore; holding it means owning the turn.
	turn chan struct{}
	// refs counts turn-lock holders and waiters; guarded by Store.mu.
	refs int

	mu sync.Mutex
	s  Session
}

// New returns an empty Store.
func New(cfg Config) *Store {
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = ledger.Testnet
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		cfg:     cfg,
		now:     time.Now,
	}
}

// TTL returns the configured staging deadline.
func (st *Store) TTL() time.Duration { return st.cfg.TTL }

func (st *Store) lookup(userID string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lookupLocked(userID)
}

func (st *Store) lookupLocked(userID string) *entry {
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{
			turn: make(chan struct{}, 1),
			s: Session{
				UserID:   userID,
				Network:  st.cfg.DefaultNetwork,
				State:    Idle,
				LastSeen: st.now(),
			},
		}
		st.entries[userID] = e
	}
	return e
}

// Lock acquires userID's turn lock, waiting until it is free or ctx is
// done. The returned function releases it and must be called exactly once.
func (st *Store) Lock(ctx context.Context, userID string) (func(), error) {
	st.mu.Lock()
	e := st.lookupLocked(userID)
	e.refs++
	st.mu.Unlock()

	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		st.release(e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.turn
			st.release(e)
		})
	}, nil
}

func (st *Store) release(e *entry) {
	st.mu.Lock()
	e.refs--
	st.mu.Unlock()
}

// GetOrCreate returns a snapshot of userID's session, creating it on first
// contact, and records the contact time.
func (st *Store) GetOrCreate(userID string) Session {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.LastSeen = st.now()
	return e.s.clone()
}

// SetNetwork switches userID's network. It is allowed in every state and
// leaves a staged action's snapshot untouched.
func (st *Store) SetNetwork(userID string, n ledger.Network) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.Network = n
}

// Stage records a as userID's pending action and moves the session to
// AWAITING_CONFIRMATION. The session must be IDLE.
func (st *Store) Stage(userID string, a StagedAction) error {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != Idle {
		return ErrInvalidTransition
	}
	now := st.now()
	a.Owner = userID
	if a.Kind == "" {
		a.Kind = SendFunds
	}
	a.StagedAt = now
	a.ExpiresAt = now.Add(st.cfg.TTL)

	e.s.State = AwaitingConfirmation
	e.s.Pending = &a
	e.s.Draft = nil
	e.s.Choices = nil
	return nil
}

// TakePending removes and returns userID's staged action, returning the
// session to IDLE in the same step. A second call returns
// ErrNoPendingAction.
func (st *Store) TakePending(userID string) (StagedAction, error) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != AwaitingConfirmation || e.s.Pending == nil {
		return StagedAction{}, ErrNoPendingAction
	}
	a := *e.s.Pending
	e.s.toIdle()
	return a, nil
}

// BeginWalletDraft moves an IDLE session to AWAITING_WALLET_NAME with the
// current network snapshotted.
func (st *Store) BeginWalletDraft(userID string) (WalletDraft, error) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != Idle {
		return WalletDraft{}, ErrInvalidTransition
	}
	now := st.now()
	d := WalletDraft{Network: e.s.Network, StartedAt: now, ExpiresAt: now.Add(st.cfg.TTL)}
	e.s.State = AwaitingWalletName
	e.s.Draft = &d
	e.s.Pending = nil
	e.s.Choices = nil
	return d, nil
}

// TakeWalletDraft removes and returns the open wallet draft.
func (st *Store) TakeWalletDraft(userID string) (WalletDraft, error) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != AwaitingWalletName || e.s.Draft == nil {
		return WalletDraft{}, ErrNoWalletDraft
	}
	d := *e.s.Draft
	e.s.toIdle()
	return d, nil
}

// Offer replaces userID's active choice set with actions and returns one
// fresh token per action, in order.
func (st *Store) Offer(userID string, actions ...ChoiceAction) []string {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := make([]string, len(actions))
	e.s.Choices = make(map[string]ChoiceAction, len(actions))
	for i, a := range actions {
		tokens[i] = newToken()
		e.s.Choices[tokens[i]] = a
	}
	return tokens
}

// TakeChoice resolves token against userID's active set. A hit consumes
// the whole set, so a choice list can be answered once.
func (st *Store) TakeChoice(userID, token string) (ChoiceAction, bool) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.s.Choices[token]
	if !ok {
		return ChoiceAction{}, false
	}
	e.s.Choices = nil
	return a, true
}

// Reset returns userID's session to IDLE and reports the state before.
// It is idempotent.
func (st *Store) Reset(userID string) Session {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.s.clone()
	e.s.toIdle()
	return prev
}

// Expire discards a staged action or wallet draft whose deadline has
// passed. It reports the session as it was and whether anything expired.
func (st *Store) Expire(userID string) (Session, bool) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := st.now()
	expired := (e.s.Pending != nil && e.s.Pending.Expired(now)) ||
		(e.s.Draft != nil && e.s.Draft.Expired(now))
	if !expired {
		return Session{}, false
	}
	prev := e.s.clone()
	e.s.toIdle()
	return prev, true
}

// Prune drops IDLE sessions not seen within idle and not held by a turn.
// It returns the number removed.
func (st *Store) Prune(idle time.Duration) int {
	cutoff := st.now().Add(-idle)

	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for id, e := range st.entries {
		if e.refs > 0 {
			continue
		}
		e.mu.Lock()
		stale := e.s.State == Idle && e.s.LastSeen.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(st.entries, id)
			n++
		}
	}
	return n
}

// Stats counts sessions per state.
type Stats struct {
	Sessions             int `json:"sessions"`
	AwaitingConfirmation int `json:"awaiting_confirmation"`
	AwaitingWalletName   int `json:"awaiting_wallet_name"`
}

// Stats returns a point-in-time count.
func (st *Store) Stats() Stats {
	st.mu.Lock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.Unlock()

	out := Stats{Sessions: len(entries)}
	for _, e := range entries {
		e.mu.Lock()
		switch e.s.State {
		case AwaitingConfirmation:
			out.AwaitingConfirmation++
		case AwaitingWalletName:
			out.AwaitingWalletName++
		}
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of known sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

func newToken() string {
	return "c" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
