package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kaikei/internal/kaikei/app"
	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

type resolveOutput struct {
	Outcome      string        `json:"outcome"`
	Tier         string        `json:"tier,omitempty"`
	Result       intent.Result `json:"result"`
	SoftFailures []string      `json:"soft_failures,omitempty"`
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve <text>",
		Short: "Classify text offline and show which tier answered",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateClassifier(); err != nil {
				return err
			}
			p, err := app.NewPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			text := strings.Join(args, " ")
			res := p.Resolver.ResolveDetailed(cmd.Context(), text)

			out := resolveOutput{Outcome: res.Outcome.String(), Tier: res.Tier, Result: res.Result}
			for _, e := range res.SoftFailures {
				out.SoftFailures = append(out.SoftFailures, e.Error())
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "intent: %s\n", out.Result.Intent)
			if out.Result.Entities.Amount > 0 {
				fmt.Fprintf(&b, "amount: %g\n", out.Result.Entities.Amount)
			}
			if out.Result.Entities.Recipient != "" {
				fmt.Fprintf(&b, "recipient: %s\n", out.Result.Entities.Recipient)
			}
			fmt.Fprintf(&b, "outcome: %s\n", out.Outcome)
			if out.Tier != "" {
				fmt.Fprintf(&b, "tier: %s\n", out.Tier)
			}
			for _, f := range out.SoftFailures {
				fmt.Fprintf(&b, "soft failure: %s\n", f)
			}
			_, err = fmt.Fprint(w, b.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	return cmd
}
