package main

import (
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/internal/kaikei/config"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "kaikei",
		Short:         "Kaikei: a chat-driven ledger assistant for Matrix",
		Long:          "kaikei turns chat and voice commands into staged ledger actions that run only after the user confirms them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file read before the environment")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newResolveCmd(opts),
		newWalletsCmd(opts),
		newChatCmd(opts),
	)
	return rootCmd
}

// load reads the configuration and sets up logging from it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	logx.Init(logx.Options{
		Environment: logx.Environment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	return cfg, nil
}
