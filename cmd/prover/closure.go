package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) closureCmd() *cobra.Command {
	var known []string
	cmd := &cobra.Command{
		Use:   "closure",
		Short: "List every fact derivable from the known facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			p, cfg, err := a.newProver(ctx, cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			if len(known) == 0 {
				known = cfg.Known
			}
			facts, err := p.Closure(known)
			if err != nil {
				return err
			}
			for _, f := range facts {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&known, "known", "k", nil, "Known facts, comma separated")
	return cmd
}
