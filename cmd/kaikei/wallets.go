package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kaikei/common/crypto"
	"github.com/bdobrica/Kaikei/internal/kaikei/ledger"
	"github.com/bdobrica/Kaikei/internal/kaikei/store"
	"github.com/bdobrica/Kaikei/internal/kaikei/wallet"
)

type walletFlags struct {
	user    string
	network string
}

func (f *walletFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "Matrix user ID that owns the wallets")
	cmd.Flags().StringVar(&f.network, "network", "testnet", "testnet or mainnet")
	_ = cmd.MarkFlagRequired("user")
}

func newWalletsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "Inspect and create funding sources",
	}
	cmd.AddCommand(
		newWalletsListCmd(opts),
		newWalletsCreateCmd(opts),
	)
	return cmd
}

// openWallets opens the database and the wallet store on it. The caller
// closes the returned store.
func openWallets(opts *rootOptions) (*store.Store, *wallet.Store, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, nil, err
	}
	key, err := cfg.MasterKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return st, wallet.NewStore(st.DB(), sealer), nil
}

func newWalletsListCmd(opts *rootOptions) *cobra.Command {
	var flags walletFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's wallets; the first is the default",
		RunE: func(cmd *cobra.Command, _ []string) error {
			network, err := ledger.ParseNetwork(flags.network)
			if err != nil {
				return err
			}
			st, wallets, err := openWallets(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			sources, err := wallets.List(cmd.Context(), flags.user, network)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "no wallets for %s on %s\n", flags.user, network)
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tADDRESS\tCREATED\tID")
			for _, s := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Address, s.CreatedAt.Format(time.RFC3339), s.ID)
			}
			return tw.Flush()
		},
	}
	flags.bind(cmd)
	return cmd
}

func newWalletsCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags walletFlags
		name  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet; an empty name picks a random one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			network, err := ledger.ParseNetwork(flags.network)
			if err != nil {
				return err
			}
			st, wallets, err := openWallets(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			src, err := wallets.Create(cmd.Context(), flags.user, network, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s on %s: %s\n", src.Name, src.Network, src.Address)
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&name, "name", "", "wallet name")
	return cmd
}
