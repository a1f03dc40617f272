// Package dialogue is the conversation engine. Each inbound message is one
// turn: authorization, stale-state reset, then either a slash command, the
// answer to an open prompt, or a freshly resolved intent. The state
// machine itself is the pure Transition function; Engine executes its
// effects against the session store and the ledger gateway.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/common/trace"
	"github.com/bdobrica/Kaikei/internal/kaikei/gateway"
	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
	"github.com/bdobrica/Kaikei/internal/kaikei/store"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

// Resolver classifies free text. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, text string) intent.Result
}

// Gateway reads balances and submits confirmed transfers.
type Gateway interface {
	Balance(ctx context.Context, walletRef string) (gateway.BalanceReport, error)
	Send(ctx context.Context, req gateway.SendRequest) (ledger.Receipt, error)
	Status(ctx context.Context, network ledger.Network, txRef string) (ledger.TxStatus, error)
}

// Wallets lists and creates funding sources. List is ordered; the first
// entry is the default.
type Wallets interface {
	List(ctx context.Context, userID string, network ledger.Network) ([]wallet.FundingSource, error)
	Create(ctx context.Context, userID string, network ledger.Network, name string) (wallet.FundingSource, error)
}

// Transcriber turns a voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// Auditor persists audit entries.
type Auditor interface {
	WriteAudit(ctx context.Context, e store.AuditEntry) error
}

// Choice is one selectable option attached to a reply.
type Choice struct {
	Label string
	Token string
}

// Reply is one outbound message. Text is Markdown.
type Reply struct {
	Text    string
	Choices []Choice
}

// Audit actions.
const (
	AuditTransferExecute = "transfer.execute"
	AuditTransferDecline = "transfer.decline"
	AuditTransferExpire  = "transfer.expire"
	AuditWalletCreate    = "wallet.create"
	AuditAuthDeny        = "auth.deny"
	AuditInternal        = "internal.error"
)

// Config wires an Engine. Transcriber, Audit and Authorizer are optional.
type Config struct {
	Sessions    *session.Store
	Resolver    Resolver
	Gateway     Gateway
	Wallets     Wallets
	Transcriber Transcriber
	Audit       Auditor
	Authorizer  Authorizer
	Lexicon     *intent.Lexicon
}

// Engine runs dialogue turns. It is safe for concurrent use; turns of one
// user are serialized, turns of different users run in parallel.
type Engine struct {
	sessions    *session.Store
	resolver    Resolver
	gateway     Gateway
	wallets     Wallets
	transcriber Transcriber
	audit       Auditor
	auth        Authorizer
	lex         *intent.Lexicon
	router      *Router
	log         zerolog.Logger
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("dialogue: session store is required")
	case cfg.Resolver == nil:
		return nil, errors.New("dialogue: resolver is required")
	case cfg.Gateway == nil:
		return nil, errors.New("dialogue: gateway is required")
	case cfg.Wallets == nil:
		return nil, errors.New("dialogue: wallets are required")
	}
	if cfg.Lexicon == nil {
		cfg.Lexicon = intent.DefaultLexicon()
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = NewAllowList(nil)
	}

	e := &Engine{
		sessions:    cfg.Sessions,
		resolver:    cfg.Resolver,
		gateway:     cfg.Gateway,
		wallets:     cfg.Wallets,
		transcriber: cfg.Transcriber,
		audit:       cfg.Audit,
		auth:        cfg.Authorizer,
		lex:         cfg.Lexicon,
		router:      NewRouter(CommandPrefix),
		log:         logx.With("dialogue"),
	}
	e.registerCommands()
	return e, nil
}

// Commands returns the slash commands the engine understands.
func (e *Engine) Commands() []string { return e.router.Commands() }

// turn collects the replies of one inbound message.
type turn struct {
	userID  string
	replies []Reply
}

func (t *turn) say(text string, choices ...Choice) {
	t.replies = append(t.replies, Reply{Text: text, Choices: choices})
}

// HandleText runs one text turn. The error is non-nil only when the turn
// could not start (ctx done while waiting for the user's previous turn).
func (e *Engine) HandleText(ctx context.Context, userID, text string) ([]Reply, error) {
	return e.run(ctx, userID, "text", func(ctx context.Context, t *turn) {
		e.handleText(ctx, t, text)
	})
}

// HandleAudio transcribes a voice message and handles the transcript as
// text, echoing it first.
func (e *Engine) HandleAudio(ctx context.Context, userID string, audio io.Reader) ([]Reply, error) {
	return e.run(ctx, userID, "audio", func(ctx context.Context, t *turn) {
		if e.transcriber == nil {
			t.say(msgVoiceFailed)
			return
		}
		text, err := e.transcriber.Transcribe(ctx, audio)
		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			e.log.Warn().Err(err).Str("trace_id", trace.FromContext(ctx)).Msg("transcription failed")
			t.say(msgVoiceFailed)
			return
		}
		t.say(fmt.Sprintf("I understood: \"%s\"", text))
		e.handleText(ctx, t, text)
	})
}

// HandleChoice runs the turn for a selected choice token.
func (e *Engine) HandleChoice(ctx context.Context, userID, token string) ([]Reply, error) {
	return e.run(ctx, userID, "choice", func(ctx context.Context, t *turn) {
		e.handleChoice(ctx, t, token)
	})
}

func (e *Engine) run(ctx context.Context, userID, kind string, fn func(context.Context, *turn)) (replies []Reply, err error) {
	ctx = trace.Begin(ctx, userID)

	if !e.auth.Authorized(userID) {
		e.log.Warn().Str("user", userID).Str("kind", kind).Msg("unauthorized message rejected")
		e.record(ctx, store.AuditEntry{Action: AuditAuthDeny, Target: kind, Result: store.ResultDenied})
		return []Reply{{Text: msgDenied}}, nil
	}

	unlock, err := e.sessions.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("dialogue: acquire turn for %s: %w", userID, err)
	}
	defer unlock()

	t := &turn{userID: userID}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("user", userID).
				Str("trace_id", trace.FromContext(ctx)).
				Msg("turn panicked; session reset")
			e.sessions.Reset(userID)
			replies, err = append(t.replies, Reply{Text: msgInternal}), nil
		}
	}()

	e.expire(ctx, t)
	fn(ctx, t)

	e.log.Debug().
		Str("user", userID).
		Str("kind", kind).
		Int("replies", len(t.replies)).
		Str("trace_id", trace.FromContext(ctx)).
		Msg("turn complete")
	return t.replies, nil
}

// expire drops a staged action or wallet draft past its TTL so the rest of
// the turn starts from IDLE.
func (e *Engine) expire(ctx context.Context, t *turn) {
	prev, ok := e.sessions.Expire(t.userID)
	if !ok {
		return
	}
	_, effects := Transition(prev.State, Event{Kind: EventExpire})
	for _, eff := range effects {
		if eff != EffectExpired {
			continue
		}
		if prev.Pending != nil {
			e.record(ctx, store.AuditEntry{
				Action:  AuditTransferExpire,
				Target:  prev.Pending.WalletRef,
				Payload: transferPayload(*prev.Pending),
				Result:  store.ResultSuccess,
			})
		}
		t.say(msgExpired(prev))
	}
}

func (e *Engine) handleText(ctx context.Context, t *turn, text string) {
	text = strings.TrimSpace(text)

	if cmd, err := e.router.Parse(text); err == nil {
		if err := e.router.route(ctx, t, cmd); errors.Is(err, ErrUnknownCommand) {
			t.say(msgUnknownCommand(cmd.Name))
		}
		return
	}

	s := e.sessions.GetOrCreate(t.userID)
	switch s.State {
	case session.AwaitingConfirmation:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Affirmative: e.lex.IsAffirmative(text), Text: text}})
	case session.AwaitingWalletName:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Cancel: e.lex.IsCancel(text), Text: text}})
	default:
		if e.lex.IsAffirmative(text) || e.lex.IsCancel(text) {
			// A bare "ja" or "nein" with nothing staged.
			e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Text: text}})
			return
		}
		e.handleIntent(ctx, t, s, e.resolver.Resolve(ctx, text))
	}
}

func (e *Engine) handleChoice(ctx context.Context, t *turn, token string) {
	a, ok := e.sessions.TakeChoice(t.userID, token)
	if !ok {
		t.say(msgChoiceStale)
		return
	}

	s := e.sessions.GetOrCreate(t.userID)
	switch a.Kind {
	case session.ChoiceConfirm:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Affirmative: true}})
	case session.ChoiceDecline:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventReply, Cancel: true}})
	case session.ChoiceNetwork:
		n, err := ledger.ParseNetwork(a.Value)
		if err != nil {
			t.say(msgUnknownNetwork(a.Value))
			return
		}
		e.switchNetwork(t, n)
	case session.ChoiceCreateWallet:
		e.apply(ctx, t, step{s: s, ev: Event{Kind: EventBeginWallet}})
	default:
		t.say(msgChoiceStale)
	}
}

func (e *Engine) handleIntent(ctx context.Context, t *turn, s session.Session, res intent.Result) {
	st := step{s: s, ev: Event{Kind: EventIntent, Intent: res}}

	if s.State == session.Idle && needsFundingSource(res) {
		sources, err := e.wallets.List(ctx, t.userID, s.Network)
		if err != nil {
			e.internalError(ctx, t, "list wallets", err)
			return
		}
		if len(sources) > 0 {
			st.src = &sources[0]
			st.ev.HasFundingSource = true
		}
	}
	e.apply(ctx, t, st)
}

func needsFundingSource(res intent.Result) bool {
	switch res.Intent {
	case intent.CheckBalance:
		return true
	case intent.SendFunds:
		return res.Entities.Complete()
	}
	return false
}

// step is the input to one Transition call plus what the engine looked up
// to build it.
type step struct {
	s   session.Session
	ev  Event
	src *wallet.FundingSource
}

func (e *Engine) apply(ctx context.Context, t *turn, st step) {
	next, effects := Transition(st.s.State, st.ev)
	e.log.Debug().
		Str("user", t.userID).
		Str("from", string(st.s.State)).
		Str("to", string(next)).
		Strs("effects", effectStrings(effects)).
		Str("trace_id", trace.FromContext(ctx)).
		Msg("transition")

	for _, eff := range effects {
		e.execute(ctx, t, st, eff)
	}
}

func (e *Engine) execute(ctx context.Context, t *turn, st step, eff Effect) {
	switch eff {
	case EffectHelp:
		t.say(msgHelp)

	case EffectUnknown:
		t.say(msgUnknown)

	case EffectClarify:
		t.say(msgClarify)

	case EffectNeedFundingSource:
		tokens := e.sessions.Offer(t.userID, session.ChoiceAction{Kind: session.ChoiceCreateWallet})
		t.say(msgNeedFundingSource(st.s.Network), Choice{Label: labelCreateWallet, Token: tokens[0]})

	case EffectReportBalance:
		rep, err := e.gateway.Balance(ctx, st.src.ID)
		if err != nil {
			e.log.Warn().Err(err).Str("user", t.userID).Str("trace_id", trace.FromContext(ctx)).Msg("balance lookup failed")
			t.say(msgBalanceFailed(st.s.Network, err, trace.FromContext(ctx)))
			return
		}
		t.say(msgBalance(rep))

	case EffectStage:
		e.stage(ctx, t, st)

	case EffectExecute:
		e.executeTransfer(ctx, t)

	case EffectDiscard:
		a, err := e.sessions.TakePending(t.userID)
		if err != nil {
			t.say(msgNothingPending)
			return
		}
		e.record(ctx, store.AuditEntry{
			Action:  AuditTransferDecline,
			Target:  a.WalletRef,
			Payload: transferPayload(a),
			Result:  store.ResultSuccess,
		})
		t.say(msgDiscarded)

	case EffectCreateWallet:
		d, err := e.sessions.TakeWalletDraft(t.userID)
		if err != nil {
			t.say(msgNothingPending)
			return
		}
		e.createWallet(ctx, t, d.Network, st.ev.Text)

	case EffectPromptWalletName:
		if _, err := e.sessions.BeginWalletDraft(t.userID); err != nil {
			t.say(msgBusy(e.sessions.GetOrCreate(t.userID)))
			return
		}
		t.say(msgWalletPrompt)

	case EffectCancelWalletName:
		_, _ = e.sessions.TakeWalletDraft(t.userID)
		t.say(msgWalletCancel)

	case EffectNothingPending:
		t.say(msgNothingPending)

	case EffectBusy:
		t.say(msgBusy(st.s))

	case EffectExpired:
		// Handled at the start of the turn.
	}
}

func (e *Engine) stage(ctx context.Context, t *turn, st step) {
	a := session.StagedAction{
		Kind:       session.SendFunds,
		Amount:     st.ev.Intent.Entities.Amount,
		Recipient:  st.ev.Intent.Entities.Recipient,
		Network:    st.s.Network,
		WalletRef:  st.src.ID,
		WalletName: st.src.Name,
	}
	if err := e.sessions.Stage(t.userID, a); err != nil {
		e.internalError(ctx, t, "stage transfer", err)
		return
	}
	tokens := e.sessions.Offer(t.userID,
		session.ChoiceAction{Kind: session.ChoiceConfirm},
		session.ChoiceAction{Kind: session.ChoiceDecline},
	)
	t.say(msgConfirm(a),
		Choice{Label: labelConfirm, Token: tokens[0]},
		Choice{Label: labelCancel, Token: tokens[1]},
	)
}

func (e *Engine) executeTransfer(ctx context.Context, t *turn) {
	a, err := e.sessions.TakePending(t.userID)
	if err != nil {
		t.say(msgNothingPending)
		return
	}
	traceID := trace.FromContext(ctx)

	rcpt, err := e.gateway.Send(ctx, gateway.SendRequest{
		WalletRef: a.WalletRef,
		Recipient: a.Recipient,
		Amount:    a.Amount,
		Network:   a.Network,
	})
	payload := transferPayload(a)
	if err != nil {
		e.log.Warn().Err(err).Str("user", t.userID).Str("trace_id", traceID).Msg("transfer failed")
		e.record(ctx, store.AuditEntry{
			Action:       AuditTransferExecute,
			Target:       a.WalletRef,
			Payload:      payload,
			Result:       store.ResultError,
			ErrorMessage: err.Error(),
		})
		t.say(msgSendFailed(a, err, traceID))
		return
	}

	payload["tx_ref"] = rcpt.TxRef
	e.record(ctx, store.AuditEntry{
		Action:  AuditTransferExecute,
		Target:  rcpt.TxRef,
		Payload: payload,
		Result:  store.ResultSuccess,
	})
	e.log.Info().
		Str("user", t.userID).
		Str("tx_ref", rcpt.TxRef).
		Str("network", string(rcpt.Network)).
		Str("trace_id", traceID).
		Msg("transfer submitted")
	t.say(msgSent(a, rcpt, traceID))
}

func (e *Engine) createWallet(ctx context.Context, t *turn, network ledger.Network, name string) {
	src, err := e.wallets.Create(ctx, t.userID, network, name)
	if err != nil {
		e.log.Warn().Err(err).Str("user", t.userID).Str("trace_id", trace.FromContext(ctx)).Msg("wallet creation failed")
		e.record(ctx, store.AuditEntry{
			Action:       AuditWalletCreate,
			Target:       wallet.SanitizeName(name),
			Payload:      map[string]any{"network": string(network)},
			Result:       store.ResultError,
			ErrorMessage: err.Error(),
		})
		t.say(msgWalletFailed(name, err))
		return
	}
	e.record(ctx, store.AuditEntry{
		Action:  AuditWalletCreate,
		Target:  src.ID,
		Payload: map[string]any{"network": string(src.Network), "name": src.Name, "address": src.Address},
		Result:  store.ResultSuccess,
	})
	t.say(msgWalletCreated(src))
}

func (e *Engine) switchNetwork(t *turn, n ledger.Network) {
	e.sessions.SetNetwork(t.userID, n)
	s := e.sessions.GetOrCreate(t.userID)
	t.say(msgNetworkSwitched(n, s.Pending))
}

func (e *Engine) internalError(ctx context.Context, t *turn, op string, err error) {
	e.log.Error().Err(err).Str("op", op).Str("user", t.userID).Str("trace_id", trace.FromContext(ctx)).Msg("turn failed")
	e.record(ctx, store.AuditEntry{Action: AuditInternal, Target: op, Result: store.ResultError, ErrorMessage: err.Error()})
	t.say(msgInternal)
}

// record fills the trace and actor from ctx. Audit failures are logged and
// never reach the user.
func (e *Engine) record(ctx context.Context, entry store.AuditEntry) {
	if e.audit == nil {
		return
	}
	entry.TraceID = trace.FromContext(ctx)
	entry.Actor = trace.ActorFromContext(ctx)
	if err := e.audit.WriteAudit(ctx, entry); err != nil {
		e.log.Warn().Err(err).Str("action", entry.Action).Msg("audit write failed")
	}
}

func transferPayload(a session.StagedAction) map[string]any {
	return map[string]any{
		"amount_ada": a.Amount,
		"recipient":  a.Recipient,
		"network":    string(a.Network),
		"wallet":     a.WalletName,
	}
}
