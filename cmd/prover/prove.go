package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/prover/pkg/prover"
	"github.com/cognicore/prover/pkg/prover/config"
	"github.com/cognicore/prover/pkg/prover/report"
)

// searchFlags are the per-command flags shared by prove and forward
type searchFlags struct {
	known    []string
	goal     []string
	htmlPath string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.known, "known", "k", nil, "Known facts, comma separated")
	cmd.Flags().StringSliceVarP(&f.goal, "goal", "g", nil, "Goal facts, comma separated")
	cmd.Flags().StringVar(&f.htmlPath, "html", "", "Also write the report as HTML to this file")
}

func (f *searchFlags) request(cfg *config.Config) (prover.Request, error) {
	req := prover.Request{Known: cfg.Known, Goal: cfg.Goal}
	if len(f.known) > 0 {
		req.Known = f.known
	}
	if len(f.goal) > 0 {
		req.Goal = f.goal
	}
	if len(req.Goal) == 0 {
		return req, fmt.Errorf("no goal facts: use --goal or set goal in the config")
	}
	return req, nil
}

func (a *app) proveCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Find a shortest proof of the goal by backward chaining",
		Long: `Builds the AND/OR proof graph backward from the goal facts and prints the
rules of a proof of minimal depth, each after the rules it depends on.

Example:
  prover prove --facts facts.txt --rules rules.txt --known Weapon,Shield,Luck --goal Castle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, &f, (*prover.Prover).Prove)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) forwardCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Find a shortest rule sequence by breadth-first forward search",
		Long: `Explores fact states forward from the known facts, one rule application at a
time, and prints the first path reaching a state that holds every goal fact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, &f, (*prover.Prover).Forward)
		},
	}
	f.register(cmd)
	return cmd
}

type searchFunc func(*prover.Prover, context.Context, prover.Request) (report.Report, error)

func (a *app) runSearch(cmd *cobra.Command, f *searchFlags, search searchFunc) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	p, cfg, err := a.newProver(baseCtx, cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	req, err := f.request(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(baseCtx, cfg.Timeout)
	defer cancel()

	a.logger.Info("Searching", zap.Strings("known", req.Known), zap.Strings("goal", req.Goal))
	r, err := search(p, ctx, req)
	if err != nil {
		return err
	}

	if err := r.WriteText(cmd.OutOrStdout()); err != nil {
		return err
	}
	if f.htmlPath != "" {
		if err := writeHTMLFile(f.htmlPath, r); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "HTML report written to %s\n", f.htmlPath)
	}
	return nil
}

func writeHTMLFile(path string, r report.Report) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := report.WriteHTML(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write html report: %w", err)
	}
	return out.Close()
}
