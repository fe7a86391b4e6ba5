package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mgeaghan/cpg-chip/internal/config"
	"github.com/mgeaghan/cpg-chip/internal/log"
)

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type commonFlags struct {
	configs  stringList
	dryRun   bool
	logLevel string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.Var(&c.configs, "config", "Path to a configuration file (repeatable)")
	fs.BoolVar(&c.dryRun, "dry-run", false, "Print the batch spec instead of submitting")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// loadConfig resolves and loads the config files, then configures logging.
func (c *commonFlags) loadConfig() (*config.Config, error) {
	paths, err := config.ResolvePaths(c.configs)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	log.Setup(level, cfg.Logging.Format)
	return cfg, nil
}

func parseFlags(fs *flag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return false
	}
	return true
}
