// Package matrix is the Kaikei chat transport: a mautrix client that turns
// room events into Messages for the dialogue engine and sends its replies
// back, with choices offered as numbered reactions.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/common/retry"
	"github.com/bdobrica/Kaikei/internal/kaikei/transcribe"
)

// DefaultTurnTimeout bounds the handling of one inbound message, including
// the audio download and sending the replies.
const DefaultTurnTimeout = 2 * time.Minute

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. When non-empty, events from other rooms
	// are ignored.
	Rooms []string
	// DB persists the sync token. When nil an in-memory store is used and
	// history replays on every restart.
	DB *sql.DB

	TurnTimeout    time.Duration
	QueueDepth     int
	ChoiceCapacity int
}

// Kind tells what an inbound Message carries.
type Kind int

const (
	KindText Kind = iota
	KindAudio
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindChoice:
		return "choice"
	}
	return "unknown"
}

// Message is one inbound event, normalized.
type Message struct {
	Kind    Kind
	RoomID  id.RoomID
	Sender  id.UserID
	EventID id.EventID

	Text string // KindText

	AudioURI  id.ContentURI // KindAudio
	AudioSize int
	Audio     []byte // filled in before the handler runs

	Choice string // KindChoice: the token behind the reaction
}

// Option is a selectable choice under an outbound message.
type Option struct {
	Label string
	Token string
}

// Outbound is one reply. Text is Markdown.
type Outbound struct {
	Text    string
	Options []Option
}

// Handler answers one inbound message. It runs on the sender's worker, so
// calls for one sender never overlap.
type Handler func(ctx context.Context, msg Message) []Outbound

// api is the part of mautrix.Client the transport uses after start-up.
type api interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, reaction string) (*mautrix.RespSendEvent, error)
	DownloadBytes(ctx context.Context, mxcURL id.ContentURI) ([]byte, error)
}

// Client wraps the mautrix client.
type Client struct {
	mx      *mautrix.Client
	api     api
	cfg     Config
	self    id.UserID
	rooms   map[id.RoomID]bool
	choices *choiceIndex
	disp    *dispatcher
	handler Handler
	log     zerolog.Logger
}

// New creates a client. Nothing talks to the homeserver until Run.
func New(cfg Config) (*Client, error) {
	mx, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	c := newClient(cfg, mx)
	c.mx = mx
	mx.Log = c.log

	if cfg.DB != nil {
		mx.Store = NewDBSyncStore(cfg.DB)
		c.log.Info().Msg("sync store: using persistent SQLite store")
	} else {
		c.log.Warn().Msg("sync store: no DB configured, history will replay on restart")
	}
	return c, nil
}

func newClient(cfg Config, a api) *Client {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	c := &Client{
		api:     a,
		cfg:     cfg,
		self:    id.UserID(cfg.UserID),
		rooms:   make(map[id.RoomID]bool, len(cfg.Rooms)),
		choices: newChoiceIndex(cfg.ChoiceCapacity),
		log:     logx.With("matrix"),
	}
	for _, r := range cfg.Rooms {
		c.rooms[id.RoomID(r)] = true
	}
	c.disp = newDispatcher(cfg.QueueDepth, c.process)
	return c
}

// Run joins the configured rooms and syncs until ctx is done, reconnecting
// with exponential back-off. In-flight messages are drained before it
// returns.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if c.mx == nil {
		return errors.New("matrix: client not created with New")
	}
	c.handler = handler

	c.log.Warn().Msg("E2EE is not enabled; messages are transmitted in plaintext")

	syncer := c.mx.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnSync(c.mx.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, c.onEvent)
	syncer.OnEventType(event.EventReaction, c.onEvent)

	for _, room := range c.cfg.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("matrix: join room %s: %w", room, err)
		}
	}

	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.mx.SyncWithContext(ctx)
		if ctx.Err() != nil || err == nil {
			break
		}
		// A sync that ran for a while was healthy; start over from the minimum.
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		c.log.Error().Err(err).Dur("backoff", backoff).Msg("sync stopped; reconnecting")
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			break
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}

	c.disp.wait()
	c.log.Info().Msg("sync stopped")
	return nil
}

// Rooms returns the configured room IDs.
func (c *Client) Rooms() []string {
	return append([]string(nil), c.cfg.Rooms...)
}

func (c *Client) onEvent(ctx context.Context, evt *event.Event) {
	msg, ok := c.inbound(evt)
	if !ok {
		return
	}
	if !c.disp.submit(ctx, msg) {
		c.log.Warn().
			Str("sender", msg.Sender.String()).
			Str("event_id", msg.EventID.String()).
			Msg("sender backlog full; dropping message")
	}
}

// inbound normalizes evt. It reports false for events the bot does not act
// on: its own, foreign rooms, edits, non-text messages and reactions that
// do not answer an open offer.
func (c *Client) inbound(evt *event.Event) (Message, bool) {
	if evt.Sender == c.self {
		return Message{}, false
	}
	if len(c.rooms) > 0 && !c.rooms[evt.RoomID] {
		return Message{}, false
	}
	msg := Message{RoomID: evt.RoomID, Sender: evt.Sender, EventID: evt.ID}

	switch evt.Type {
	case event.EventMessage:
		content := evt.Content.AsMessage()
		if content == nil || content.RelatesTo.GetReplaceID() != "" {
			return Message{}, false
		}
		switch content.MsgType {
		case event.MsgText:
			msg.Kind = KindText
			msg.Text = strings.TrimSpace(content.Body)
			if msg.Text == "" {
				return Message{}, false
			}
		case event.MsgAudio:
			msg.Kind = KindAudio
			if uri, err := content.URL.Parse(); err == nil {
				msg.AudioURI = uri
			}
			if content.Info != nil {
				msg.AudioSize = content.Info.Size
			}
		default:
			return Message{}, false
		}
	case event.EventReaction:
		content := evt.Content.AsReaction()
		if content == nil {
			return Message{}, false
		}
		token, ok := c.choices.take(content.RelatesTo.GetAnnotationID(), content.RelatesTo.GetAnnotationKey(), evt.Sender)
		if !ok {
			return Message{}, false
		}
		msg.Kind = KindChoice
		msg.Choice = token
	default:
		return Message{}, false
	}
	return msg, true
}

func (c *Client) process(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TurnTimeout)
	defer cancel()

	log := c.log.With().
		Str("sender", msg.Sender.String()).
		Str("event_id", msg.EventID.String()).
		Stringer("kind", msg.Kind).
		Logger()

	if msg.Kind == KindAudio {
		data, err := c.download(ctx, msg)
		if err != nil {
			// The handler still runs; empty audio yields the voice failure reply.
			log.Warn().Err(err).Msg("audio download failed")
		}
		msg.Audio = data
	}

	for _, out := range c.handler(ctx, msg) {
		if err := c.send(ctx, msg.RoomID, msg.Sender, out); err != nil {
			log.Error().Err(err).Msg("failed to send reply")
		}
	}
}

func (c *Client) download(ctx context.Context, msg Message) ([]byte, error) {
	if msg.AudioURI.IsEmpty() {
		return nil, errors.New("matrix: audio event without a content URI")
	}
	if msg.AudioSize > transcribe.MaxAudioBytes {
		return nil, fmt.Errorf("matrix: audio of %d bytes: %w", msg.AudioSize, transcribe.ErrTooLarge)
	}
	data, err := c.api.DownloadBytes(ctx, msg.AudioURI)
	if err != nil {
		return nil, fmt.Errorf("matrix: download %s: %w", msg.AudioURI, err)
	}
	return data, nil
}

// send posts out to room and, when it carries options, reacts to it with
// one numbered key per option. Only user's reactions select an option.
func (c *Client) send(ctx context.Context, room id.RoomID, user id.UserID, out Outbound) error {
	options := out.Options
	if len(options) > len(choiceKeys) {
		options = options[:len(choiceKeys)]
	}

	text := out.Text
	if len(options) > 0 {
		legend := make([]string, len(options))
		for i, o := range options {
			legend[i] = choiceKeys[i] + " " + o.Label
		}
		text += "\n\n" + strings.Join(legend, "  ")
	}

	content := format.RenderMarkdown(text, true, false)
	resp, err := c.api.SendMessageEvent(ctx, room, event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	if len(options) == 0 {
		return nil
	}

	tokens := make(map[string]string, len(options))
	for i, o := range options {
		tokens[choiceKeys[i]] = o.Token
	}
	c.choices.put(resp.EventID, user, tokens)

	for i := range options {
		if _, err := c.api.SendReaction(ctx, room, resp.EventID, choiceKeys[i]); err != nil {
			c.log.Warn().Err(err).Str("event_id", resp.EventID.String()).Msg("failed to add choice reaction")
		}
	}
	return nil
}

// joinRoom joins roomID with retries. M_FORBIDDEN usually means the bot is
// already a member and is not retried.
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	return retry.Do(ctx, "matrix.join", retry.DefaultPolicy, func(ctx context.Context) error {
		_, err := c.mx.JoinRoomByID(ctx, roomID)
		if errors.Is(err, mautrix.MForbidden) {
			c.log.Warn().Str("room", roomID.String()).Msg("join: already a member or access denied, continuing")
			return nil
		}
		return err
	})
}
