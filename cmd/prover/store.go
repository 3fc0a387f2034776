package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cognicore/prover/pkg/prover/store/sqlite"
)

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Store a knowledge base read from text files",
		Long: `Reads --facts and --rules and saves them in --store under --kb-name, replacing
any knowledge base stored under that name.

Example:
  prover import --facts facts.txt --rules rules.txt --store prover.db --kb-name adventure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store == "" || cfg.Facts == "" || cfg.Rules == "" {
				return errors.New("import needs --store, --facts and --rules")
			}

			p, cfg, err := a.newProver(ctx, cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.SaveKnowledgeBase(ctx); err != nil {
				return err
			}
			k := p.KnowledgeBase()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %q: %d facts, %d rules\n", cfg.KBName, k.FactCount(), k.RuleCount())
			return nil
		},
	}
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show one run's proof",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store == "" {
				return errors.New("runs needs --store")
			}

			st, err := sqlite.OpenSQLite(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s, %s)\n", run.ID, run.KB, run.Method)
				fmt.Fprintf(out, "Known: %s\n", strings.Join(run.Known, ", "))
				fmt.Fprintf(out, "Goal:  %s\n", strings.Join(run.Goal, ", "))
				if !run.Proved {
					fmt.Fprintln(out, "NOT REACHABLE")
					return nil
				}
				fmt.Fprintf(out, "Proved in %d step(s), depth %d:\n", len(run.Proof), run.Depth)
				for i, line := range run.Proof {
					fmt.Fprintf(out, "  %d. %s\n", i+1, line)
				}
				return nil
			}

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKB\tMETHOD\tVERDICT\tDEPTH\tELAPSED\tGOAL")
			for _, r := range runs {
				verdict := "unreachable"
				if r.Proved {
					verdict = "proved"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.KB, r.Method, verdict, r.Depth, r.Elapsed, strings.Join(r.Goal, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
