package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/prover/pkg/prover/backward"
	"github.com/cognicore/prover/pkg/prover/internalerr"
)

// Config describes one proving setup: where the knowledge base lives, what
// is known, what to prove and how.
type Config struct {
	Facts       string        `yaml:"facts"`
	Rules       string        `yaml:"rules"`
	Known       []string      `yaml:"known"`
	Goal        []string      `yaml:"goal"`
	Store       string        `yaml:"store"`
	KBName      string        `yaml:"kb_name"`
	Strategy    string        `yaml:"strategy"`
	Timeout     time.Duration `yaml:"timeout"`
	Parallelism int           `yaml:"parallelism"`
	MaxStates   int           `yaml:"max_states"` // forward search cap; 0 is unbounded
}

// Load loads a config from a YAML file. Relative paths inside the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Facts = resolve(dir, cfg.Facts)
	cfg.Rules = resolve(dir, cfg.Rules)
	cfg.Store = resolve(dir, cfg.Store)

	return &cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks that the config names a usable knowledge base source.
func (c *Config) Validate() error {
	switch {
	case (c.Facts == "") != (c.Rules == ""):
		return fmt.Errorf("facts and rules must be set together: %w", internalerr.ErrInvalidConfig)
	case c.Facts == "" && (c.Store == "" || c.KBName == ""):
		return fmt.Errorf("need facts and rules files, or a store with kb_name: %w", internalerr.ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("negative timeout %s: %w", c.Timeout, internalerr.ErrInvalidConfig)
	case c.Parallelism < 0:
		return fmt.Errorf("negative parallelism %d: %w", c.Parallelism, internalerr.ErrInvalidConfig)
	case c.MaxStates < 0:
		return fmt.Errorf("negative max_states %d: %w", c.MaxStates, internalerr.ErrInvalidConfig)
	}
	if _, err := backward.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("%v: %w", err, internalerr.ErrInvalidConfig)
	}
	return nil
}
