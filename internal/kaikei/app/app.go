// Package app wires the Kaikei bot together: storage, the ledger backend,
// the intent pipeline, the dialogue engine and the Matrix transport.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Kaikei/common/crypto"
	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/internal/kaikei/config"
	"github.com/bdobrica/Kaikei/internal/kaikei/dialogue"
	"github.com/bdobrica/Kaikei/internal/kaikei/gateway"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/matrix"
	"github.com/bdobrica/Kaikei/internal/kaikei/session"
	"github.com/bdobrica/Kaikei/internal/kaikei/store"
	"github.com/bdobrica/Kaikei/internal/kaikei/transcribe"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

// PruneInterval is how often idle sessions are dropped.
const PruneInterval = time.Minute

// App is the running bot.
type App struct {
	cfg      *config.Config
	store    *store.Store
	wallets  *wallet.Store
	sessions *session.Store
	engine   *dialogue.Engine
	pipeline *Pipeline
	matrix   *matrix.Client
	health   *HealthServer
	log      zerolog.Logger
}

// New builds the bot from cfg. cfg must pass Validate.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := NewLocal(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.matrix, err = matrix.New(matrix.Config{
		Homeserver:  cfg.MatrixHomeserver,
		UserID:      cfg.MatrixUserID,
		AccessToken: cfg.MatrixAccessToken,
		Rooms:       cfg.MatrixRooms,
		DB:          a.store.DB(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.HTTPAddr != "" {
		a.health = NewHealthServer(cfg.HTTPAddr, a.sessions)
	}
	return a, nil
}

// NewLocal builds everything except the Matrix transport. The chat and
// wallets subcommands use it to drive the engine from a terminal.
func NewLocal(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, log: logx.With("app")}

	key, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("app: master key: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("app: master key: %w", err)
	}

	a.store, err = store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	a.wallets = wallet.NewStore(a.store.DB(), sealer)

	var readers []*ledger.Blockfrost
	for network, project := range cfg.BlockfrostProjects() {
		readers = append(readers, ledger.NewBlockfrost(ledger.BlockfrostConfig{Network: network, ProjectID: project}))
	}
	if len(readers) == 0 {
		a.log.Warn().Msg("no Blockfrost project configured; balance lookups will fail")
	}
	backend := ledger.NewService(ledger.NewJournal(a.store.DB()), readers...)

	a.pipeline, err = NewPipeline(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sessions = session.New(session.Config{DefaultNetwork: cfg.Network(), TTL: cfg.PendingTTL})

	var transcriber dialogue.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber = transcribe.New(transcribe.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.TranscribeModel,
			Language: cfg.TranscribeLanguage,
		})
	} else {
		a.log.Warn().Msg("no OpenAI key configured; voice messages are disabled")
	}

	a.engine, err = dialogue.New(dialogue.Config{
		Sessions:    a.sessions,
		Resolver:    a.pipeline.Resolver,
		Gateway:     gateway.New(backend, a.wallets),
		Wallets:     a.wallets,
		Transcriber: transcriber,
		Audit:       a.store,
		Authorizer:  dialogue.NewAllowList(cfg.AuthorizedUsers),
		Lexicon:     a.pipeline.Lexicon,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if len(cfg.AuthorizedUsers) == 0 {
		a.log.Warn().Msg("no authorized users configured; every sender is allowed")
	}
	return a, nil
}

// Engine exposes the dialogue engine.
func (a *App) Engine() *dialogue.Engine { return a.engine }

// Wallets exposes the wallet store.
func (a *App) Wallets() *wallet.Store { return a.wallets }

// Run serves until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.matrix == nil {
		return errors.New("app: built without a Matrix transport")
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.health != nil {
		g.Go(func() error { return a.health.Run(ctx) })
	}
	g.Go(func() error {
		a.pruneLoop(ctx)
		return nil
	})
	g.Go(func() error { return a.matrix.Run(ctx, a.handleMessage) })

	a.log.Info().
		Strs("rooms", a.matrix.Rooms()).
		Strs("commands", a.engine.Commands()).
		Str("network", a.cfg.Network().String()).
		Msg("Kaikei is running")

	err := g.Wait()
	a.log.Info().Msg("shutting down")
	return err
}

// Close releases the database and the rate-limit backend.
func (a *App) Close() error {
	var errs []error
	if a.pipeline != nil {
		errs = append(errs, a.pipeline.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Prune(a.cfg.SessionIdleTTL); n > 0 {
				a.log.Debug().Int("pruned", n).Msg("idle sessions dropped")
			}
		}
	}
}

// handleMessage routes one Matrix message into the engine.
func (a *App) handleMessage(ctx context.Context, msg matrix.Message) []matrix.Outbound {
	return route(ctx, a.engine, msg, a.log)
}

// turnHandler is the part of the engine the transport drives.
type turnHandler interface {
	HandleText(ctx context.Context, userID, text string) ([]dialogue.Reply, error)
	HandleAudio(ctx context.Context, userID string, audio io.Reader) ([]dialogue.Reply, error)
	HandleChoice(ctx context.Context, userID, token string) ([]dialogue.Reply, error)
}

func route(ctx context.Context, h turnHandler, msg matrix.Message, log zerolog.Logger) []matrix.Outbound {
	user := msg.Sender.String()

	var (
		replies []dialogue.Reply
		err     error
	)
	switch msg.Kind {
	case matrix.KindText:
		replies, err = h.HandleText(ctx, user, msg.Text)
	case matrix.KindAudio:
		replies, err = h.HandleAudio(ctx, user, bytes.NewReader(msg.Audio))
	case matrix.KindChoice:
		replies, err = h.HandleChoice(ctx, user, msg.Choice)
	default:
		return nil
	}
	if err != nil {
		log.Error().Err(err).Str("sender", user).Stringer("kind", msg.Kind).Msg("turn failed")
		return nil
	}
	return toOutbound(replies)
}

func toOutbound(replies []dialogue.Reply) []matrix.Outbound {
	out := make([]matrix.Outbound, 0, len(replies))
	for _, r := range replies {
		o := matrix.Outbound{Text: r.Text}
		for _, c := range r.Choices {
			o.Options = append(o.Options, matrix.Option{Label: c.Label, Token: c.Token})
		}
		out = append(out, o)
	}
	return out
}
