package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kaikei/internal/kaikei/app"
	"github.com/bdobrica/Kaikei/internal/kaikei/dialogue"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		user  string
		style string
		width int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the engine from the terminal, without Matrix",
		Long: "chat reads one message per line from stdin and prints the replies as rendered Markdown. " +
			"When a reply offers choices, answer with its number to pick one.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			if err := cfg.ValidateClassifier(); err != nil {
				return err
			}
			a, err := app.NewLocal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := newRenderer(style, width)
			if err != nil {
				return err
			}
			return chatLoop(cmd, a.Engine(), r, user)
		},
	}
	cmd.Flags().StringVar(&user, "user", "@local:kaikei", "user ID the messages are sent as")
	cmd.Flags().StringVar(&style, "style", "auto", "glamour style: auto, dark, light or notty")
	cmd.Flags().IntVar(&width, "width", 80, "word-wrap width")
	return cmd
}

func newRenderer(style string, width int) (*glamour.TermRenderer, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "auto" {
		styleOpt = glamour.WithStylePath(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("chat: renderer: %w", err)
	}
	return r, nil
}

func chatLoop(cmd *cobra.Command, engine *dialogue.Engine, r *glamour.TermRenderer, user string) error {
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	ctx := cmd.Context()

	var offered []dialogue.Choice
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		var (
			replies []dialogue.Reply
			err     error
		)
		if n, convErr := strconv.Atoi(line); convErr == nil && n >= 1 && n <= len(offered) {
			replies, err = engine.HandleChoice(ctx, user, offered[n-1].Token)
		} else {
			replies, err = engine.HandleText(ctx, user, line)
		}
		if err != nil {
			return err
		}

		offered = nil
		for _, reply := range replies {
			if err := printReply(out, r, reply); err != nil {
				return err
			}
			if len(reply.Choices) > 0 {
				offered = reply.Choices
			}
		}
	}
}

func printReply(w io.Writer, r *glamour.TermRenderer, reply dialogue.Reply) error {
	text := reply.Text
	if len(reply.Choices) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\n")
		for i, c := range reply.Choices {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Label)
		}
		text = b.String()
	}
	rendered, err := r.Render(text)
	if err != nil {
		// Fall back to the raw Markdown rather than dropping the reply.
		rendered = text + "\n"
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}
