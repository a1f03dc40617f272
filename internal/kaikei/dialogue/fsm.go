package dialogue

import (
	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
)

// EventKind classifies an input to the state machine.
type EventKind int

const (
	// EventIntent is a resolved free-text message or an intent-backed
	// command such as /balance.
	EventIntent EventKind = iota
	// EventReply is free text (or a choice) answering an open prompt.
	EventReply
	// EventBeginWallet asks for a new wallet without a name.
	EventBeginWallet
	// EventCancel is /cancel.
	EventCancel
	// EventExpire is the TTL check at the start of a turn.
	EventExpire
)

// Event is one input to Transition.
type Event struct {
	Kind EventKind

	// EventIntent
	Intent           intent.Result
	HasFundingSource bool

	// EventReply
	Affirmative bool
	Cancel      bool
	Text        string
}

// Effect is an instruction for the engine. Effects are executed in order.
type Effect int

const (
	EffectHelp Effect = iota
	EffectUnknown
	EffectClarify
	EffectNeedFundingSource
	EffectReportBalance
	EffectStage
	EffectExecute
	EffectDiscard
	EffectCreateWallet
	EffectPromptWalletName
	EffectCancelWalletName
	EffectNothingPending
	EffectBusy
	EffectExpired
)

var effectNames = [...]string{
	EffectHelp:              "help",
	EffectUnknown:           "unknown",
	EffectClarify:           "clarify",
	EffectNeedFundingSource: "need_funding_source",
	EffectReportBalance:     "report_balance",
	EffectStage:             "stage",
	EffectExecute:           "execute",
	EffectDiscard:           "discard",
	EffectCreateWallet:      "create_wallet",
	EffectPromptWalletName:  "prompt_wallet_name",
	EffectCancelWalletName:  "cancel_wallet_name",
	EffectNothingPending:    "nothing_pending",
	EffectBusy:              "busy",
	EffectExpired:           "expired",
}

func (e Effect) String() string {
	if int(e) < len(effectNames) {
		return effectNames[e]
	}
	return "effect(?)"
}

func effectStrings(effects []Effect) []string {
	out := make([]string, len(effects))
	for i, eff := range effects {
		out[i] = eff.String()
	}
	return out
}

// Transition is the dialogue state machine. It is pure: the engine applies
// the returned effects against the session store.
//
// Every exit from AWAITING_CONFIRMATION or AWAITING_WALLET_NAME lands in
// IDLE, whatever the reply was.
func Transition(state session.State, ev Event) (session.State, []Effect) {
	switch ev.Kind {
	case EventExpire:
		if state == session.Idle {
			return session.Idle, nil
		}
		return session.Idle, []Effect{EffectExpired}

	case EventCancel:
		switch state {
		case session.AwaitingConfirmation:
			return session.Idle, []Effect{EffectDiscard}
		case session.AwaitingWalletName:
			return session.Idle, []Effect{EffectCancelWalletName}
		}
		return session.Idle, []Effect{EffectNothingPending}

	case EventReply:
		switch state {
		case session.AwaitingConfirmation:
			if ev.Affirmative {
				return session.Idle, []Effect{EffectExecute}
			}
			return session.Idle, []Effect{EffectDiscard}
		case session.AwaitingWalletName:
			if ev.Cancel {
				return session.Idle, []Effect{EffectCancelWalletName}
			}
			return session.Idle, []Effect{EffectCreateWallet}
		}
		return session.Idle, []Effect{EffectNothingPending}

	case EventBeginWallet:
		if state != session.Idle {
			return state, []Effect{EffectBusy}
		}
		return session.AwaitingWalletName, []Effect{EffectPromptWalletName}

	case EventIntent:
		if state != session.Idle {
			return state, []Effect{EffectBusy}
		}
		return intentTransition(ev)
	}
	return state, nil
}

func intentTransition(ev Event) (session.State, []Effect) {
	switch ev.Intent.Intent {
	case intent.Help:
		return session.Idle, []Effect{EffectHelp}
	case intent.CheckBalance:
		if !ev.HasFundingSource {
			return session.Idle, []Effect{EffectNeedFundingSource}
		}
		return session.Idle, []Effect{EffectReportBalance}
	case intent.SendFunds:
		if !ev.Intent.Entities.Complete() {
			return session.Idle, []Effect{EffectClarify}
		}
		if !ev.HasFundingSource {
			return session.Idle, []Effect{EffectNeedFundingSource}
		}
		return session.AwaitingConfirmation, []Effect{EffectStage}
	}
	return session.Idle, []Effect{EffectUnknown}
}
