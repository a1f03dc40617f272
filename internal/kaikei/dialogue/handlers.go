package dialogue

import (
	"context"

	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
)

func (e *Engine) registerCommands() {
	e.router.register("start", e.handleStart)
	e.router.register("help", e.handleHelp)
	e.router.register("balance", e.handleBalance)
	e.router.register("network", e.handleNetwork)
	e.router.register("wallets", e.handleWallets)
	e.router.register("newwallet", e.handleNewWallet)
	e.router.register("tx", e.handleTx)
	e.router.register("cancel", e.handleCancel)
}

func (e *Engine) handleStart(_ context.Context, t *turn, _ *Command) {
	t.say(msgWelcome)
}

func (e *Engine) handleHelp(_ context.Context, t *turn, _ *Command) {
	t.say(msgHelp)
}

func (e *Engine) handleBalance(ctx context.Context, t *turn, _ *Command) {
	e.handleIntent(ctx, t, e.sessions.GetOrCreate(t.userID), intent.Result{Intent: intent.CheckBalance})
}

func (e *Engine) handleNetwork(_ context.Context, t *turn, cmd *Command) {
	arg, ok := cmd.Arg(0)
	if ok {
		n, err := ledger.ParseNetwork(arg)
		if err != nil {
			t.say(msgUnknownNetwork(arg))
			return
		}
		e.switchNetwork(t, n)
		return
	}

	s := e.sessions.GetOrCreate(t.userID)
	actions := make([]session.ChoiceAction, len(ledger.Networks))
	for i, n := range ledger.Networks {
		actions[i] = session.ChoiceAction{Kind: session.ChoiceNetwork, Value: string(n)}
	}
	tokens := e.sessions.Offer(t.userID, actions...)
	choices := make([]Choice, len(tokens))
	for i, n := range ledger.Networks {
		label := string(n)
		if n == s.Network {
			label += " ✓"
		}
		choices[i] = Choice{Label: label, Token: tokens[i]}
	}
	t.say(msgNetworkCurrent(s.Network), choices...)
}

func (e *Engine) handleWallets(ctx context.Context, t *turn, _ *Command) {
	s := e.sessions.GetOrCreate(t.userID)
	sources, err := e.wallets.List(ctx, t.userID, s.Network)
	if err != nil {
		e.internalError(ctx, t, "list wallets", err)
		return
	}
	if len(sources) == 0 {
		if s.State != session.Idle {
			t.say(msgNeedFundingSource(s.Network))
			return
		}
		tokens := e.sessions.Offer(t.userID, session.ChoiceAction{Kind: session.ChoiceCreateWallet})
		t.say(msgNeedFundingSource(s.Network), Choice{Label: labelCreateWallet, Token: tokens[0]})
		return
	}
	t.say(msgWallets(s.Network, sources))
}

func (e *Engine) handleNewWallet(ctx context.Context, t *turn, cmd *Command) {
	s := e.sessions.GetOrCreate(t.userID)
	name, ok := cmd.Arg(0)
	switch {
	case !ok:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventBeginWallet}})
	case s.State == session.AwaitingWalletName:
		// The name completes the open draft on the draft's network.
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Text: name}})
	default:
		e.createWallet(ctx, t, s.Network, name)
	}
}

func (e *Engine) handleTx(ctx context.Context, t *turn, cmd *Command) {
	ref, ok := cmd.Arg(0)
	if !ok {
		t.say(msgTxUsage)
		return
	}
	s := e.sessions.GetOrCreate(t.userID)
	st, err := e.gateway.Status(ctx, s.Network, ref)
	if err != nil {
		t.say(msgTxFailed(s.Network, ref, err))
		return
	}
	t.say(msgTxStatus(st))
}

func (e *Engine) handleCancel(ctx context.Context, t *turn, _ *Command) {
	e.apply(ctx, t, step{s: e.sessions.GetOrCreate(t.userID), ev: Event{Kind: EventCancel}})
}
