package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/prover/pkg/prover"
	"github.com/cognicore/prover/pkg/prover/config"
)

// app holds the flags and logger shared by every subcommand
type app struct {
	verbose    bool
	configPath string
	factsPath  string
	rulesPath  string
	storePath  string
	kbName     string
	strategy   string
	timeout    time.Duration
	maxStates  int

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	return (&app{logger: zap.NewNop()}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "prover",
		Short: "Backward-chaining prover over a rule knowledge base",
		Long: `prover decides whether goal facts follow from known facts under a set of
"a, b -> c" rules, and prints a shortest proof when they do.

Facts are listed one per line; rules are written "antecedent, ... -> consequent".

Example:
  prover prove --facts facts.txt --rules rules.txt --known Map,Water,Luck --goal Castle`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logger
			cfg := zap.NewProductionConfig()
			if a.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			} else {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&a.factsPath, "facts", "", "Facts file, one description per line")
	flags.StringVar(&a.rulesPath, "rules", "", "Rules file, one \"a, b -> c\" rule per line")
	flags.StringVar(&a.storePath, "store", "", "SQLite database for knowledge bases and run history")
	flags.StringVar(&a.kbName, "kb-name", "default", "Knowledge base name inside the store")
	flags.StringVar(&a.strategy, "strategy", "", "Backward strategy: shortest or first-proof")
	flags.DurationVar(&a.timeout, "timeout", time.Minute, "Search timeout")
	flags.IntVar(&a.maxStates, "max-states", 0, "Forward search state cap, 0 for unbounded")

	root.AddCommand(
		a.proveCmd(),
		a.forwardCmd(),
		a.closureCmd(),
		a.importCmd(),
		a.runsCmd(),
	)
	return root
}

// loadConfig merges the --config file with the command's flags. A flag set
// on the command line wins over the file; an unset flag only fills what the
// file leaves empty.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("facts") {
		cfg.Facts = a.factsPath
	}
	if flags.Changed("rules") {
		cfg.Rules = a.rulesPath
	}
	if flags.Changed("store") {
		cfg.Store = a.storePath
	}
	if flags.Changed("kb-name") || cfg.KBName == "" {
		cfg.KBName = a.kbName
	}
	if flags.Changed("strategy") {
		cfg.Strategy = a.strategy
	}
	if flags.Changed("timeout") || cfg.Timeout == 0 {
		cfg.Timeout = a.timeout
	}
	if flags.Changed("max-states") {
		cfg.MaxStates = a.maxStates
	}
	return cfg, nil
}

// newProver loads the configured knowledge base and wraps it in a Prover.
func (a *app) newProver(ctx context.Context, cmd *cobra.Command) (*prover.Prover, *config.Config, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	comp, err := (&config.Loader{Config: cfg}).Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("knowledge base loaded",
		zap.Int("facts", comp.KB.FactCount()),
		zap.Int("rules", comp.KB.RuleCount()),
		zap.Bool("store", comp.Store != nil),
	)

	p, err := prover.New(prover.Options{
		KB:          comp.KB,
		Store:       comp.Store,
		Logger:      a.logger,
		Strategy:    comp.Strategy,
		Parallelism: cfg.Parallelism,
		KBName:      cfg.KBName,
		MaxStates:   cfg.MaxStates,
	})
	if err != nil {
		comp.Close()
		return nil, nil, err
	}
	return p, cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
