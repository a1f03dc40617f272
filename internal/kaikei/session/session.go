// Package session keeps the per-user conversation state: the selected
// network, the dialogue state, the one staged action or wallet draft, and
// the active set of offered choices.
//
// Sessions live in process memory only. A restart returns every user to
// IDLE.
package session

import (
	"errors"
	"time"

	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
)

var (
	// ErrInvalidTransition is returned when an operation requires a state
	// the session is not in.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrNoPendingAction is returned by TakePending when nothing is staged.
	ErrNoPendingAction = errors.New("session: no pending action")
	// ErrNoWalletDraft is returned by TakeWalletDraft when no wallet name
	// is being collected.
	ErrNoWalletDraft = errors.New("session: no wallet draft")
)

// State is the dialogue state of one user.
type State string

const (
	Idle                 State = "IDLE"
	AwaitingConfirmation State = "AWAITING_CONFIRMATION"
	AwaitingWalletName   State = "AWAITING_WALLET_NAME"
)

// ActionKind names what a staged action does when confirmed.
type ActionKind string

const SendFunds ActionKind = "SEND_FUNDS"

// StagedAction is a transfer waiting for its owner's confirmation. Network
// is snapshotted at staging time; later network switches do not change it.
type StagedAction struct {
	Owner      string
	Kind       ActionKind
	Amount     float64
	Recipient  string
	Network    ledger.Network
	WalletRef  string
	WalletName string
	StagedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the action is past its deadline at now.
func (a StagedAction) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// WalletDraft holds the network a wallet will be created on while the
// user is asked for its name.
type WalletDraft struct {
	Network   ledger.Network
	StartedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the draft is past its deadline at now.
func (d WalletDraft) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// ChoiceKind is what selecting an offered choice means.
type ChoiceKind string

const (
	ChoiceConfirm      ChoiceKind = "confirm"
	ChoiceDecline      ChoiceKind = "decline"
	ChoiceNetwork      ChoiceKind = "network"
	ChoiceCreateWallet ChoiceKind = "create_wallet"
)

// ChoiceAction is the meaning behind an opaque choice token.
type ChoiceAction struct {
	Kind  ChoiceKind
	Value string
}

// Session is a snapshot of one user's state. Values returned by the Store
// are copies.
type Session struct {
	UserID   string
	Network  ledger.Network
	State    State
	Pending  *StagedAction
	Draft    *WalletDraft
	Choices  map[string]ChoiceAction
	LastSeen time.Time
}

func (s Session) clone() Session {
	cp := s
	if s.Pending != nil {
		p := *s.Pending
		cp.Pending = &p
	}
	if s.Draft != nil {
		d := *s.Draft
		cp.Draft = &d
	}
	if s.Choices != nil {
		cp.Choices = make(map[string]ChoiceAction, len(s.Choices))
		for k, v := range s.Choices {
			cp.Choices[k] = v
		}
	}
	return cp
}

// toIdle clears every slot. It is the single exit from a non-IDLE state.
func (s *Session) toIdle() {
	s.State = Idle
	s.Pending = nil
	s.Draft = nil
	s.Choices = nil
}
