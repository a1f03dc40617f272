package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/common/version"
	"github.com/bdobrica/Kaikei/internal/kaikei/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Matrix bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logx.Info().
				Str("version", version.Version).
				Str("commit", version.GitCommit).
				Str("build_time", version.BuildTime).
				Msg("starting Kaikei")

			a, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer a.Close()

			// A signal cancels ctx; whatever Run returns after that is shutdown noise.
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
