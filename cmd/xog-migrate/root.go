package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/xog-migrate/internal/config"
	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds state shared by all subcommands.
type app struct {
	envFile     string
	concurrency int
	runID       string
	logLevel    string
	noJournal   bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "xog-migrate",
		Short: "Migrate PPM records between two instances over XOG",
		Long: `xog-migrate reads records page by page from a source PPM instance and
imports every page into a destination instance, keeping a bounded number of
imports in flight. The first failed page stops the run.

Endpoints are configured with XOGM_SOURCE_* and XOGM_DEST_* variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", "", "load configuration from this file instead of ./.env")
	flags.IntVar(&a.concurrency, "concurrency", 0, "destination writes in flight (overrides XOGM_CONCURRENCY)")
	flags.StringVar(&a.runID, "run-id", "", "journal run ID (default: <command>-<timestamp>)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&a.noJournal, "no-journal", false, "do not journal the run even if XOGM_REDIS_URL is set")

	root.AddCommand(
		newProjectsCmd(a),
		newInvestmentsCmd(a),
		newLookupsCmd(a),
		newCheckCmd(a),
		newStatusCmd(a),
	)

	return root
}

// setup loads configuration and logging before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if a.concurrency > 0 {
		cfg.Concurrency = a.concurrency
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	logCfg := cfg.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)
	a.logger = logging.NewLogger(logging.ComponentCLI)

	if a.runID == "" {
		a.runID = fmt.Sprintf("%s-%s", cmd.Name(), time.Now().UTC().Format("20060102T150405"))
	}

	return nil
}
