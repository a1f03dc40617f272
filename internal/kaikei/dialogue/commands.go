package dialogue

import (
	"context"
	"errors"
	"strings"
)

// CommandPrefix marks a message as a slash command.
const CommandPrefix = "/"

// Command is a parsed slash command.
type Command struct {
	Name    string
	Args    []string
	RawText string
}

// ErrNotACommand is returned by Parse for text without the prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// ErrUnknownCommand is returned by Route when no handler is registered.
var ErrUnknownCommand = errors.New("unknown command")

// commandHandler runs one command inside a turn.
type commandHandler func(ctx context.Context, t *turn, cmd *Command)

// Router routes slash commands to handlers.
type Router struct {
	handlers map[string]commandHandler
	order    []string
	prefix   string
}

// NewRouter creates an empty router for prefix.
func NewRouter(prefix string) *Router {
	return &Router{
		handlers: make(map[string]commandHandler),
		prefix:   prefix,
	}
}

func (r *Router) register(name string, h commandHandler) {
	if _, ok := r.handlers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.handlers[name] = h
}

// Commands lists the registered command names in registration order.
func (r *Router) Commands() []string {
	return append([]string(nil), r.order...)
}

// Parse splits text into a command. Names are case-insensitive and a
// Matrix-style "@bot" suffix on the name ("/help@kaikei") is dropped.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.prefix) {
		return nil, ErrNotACommand
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, r.prefix))

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, ErrNotACommand
	}
	name := strings.ToLower(parts[0])
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return &Command{Name: name, Args: parts[1:], RawText: text}, nil
}

func (r *Router) route(ctx context.Context, t *turn, cmd *Command) error {
	h, ok := r.handlers[cmd.Name]
	if !ok {
		return ErrUnknownCommand
	}
	h(ctx, t, cmd)
	return nil
}

// Arg returns an argument by index.
func (c *Command) Arg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}
