package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/logging"
)

// options holds the global flags and what PersistentPreRunE derives from them.
type options struct {
	configPath string
	db         string
	debug      bool

	cfg *config.Config
	log *zap.Logger
}

// applyDB points the store at --db: a postgres URL selects the postgres
// driver, anything else is a sqlite file path.
func (o *options) applyDB() {
	switch {
	case o.db == "":
	case strings.HasPrefix(o.db, "postgres://"), strings.HasPrefix(o.db, "postgresql://"):
		o.cfg.DB.Driver = "postgres"
		o.cfg.DB.DSN = o.db
	default:
		o.cfg.DB.Driver = "sqlite"
		o.cfg.DB.Path = o.db
	}
}

func (o *options) setup(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return errors.Wrapf(err, "failed to load config from %s", o.configPath)
	}
	o.cfg = cfg
	o.applyDB()

	level := cfg.Log.Level
	if o.debug {
		level = "debug"
	}
	o.log, err = logging.NewLogger(cfg.Log.Dir, level)
	if err != nil {
		return errors.Wrapf(err, "failed to create logger")
	}
	return nil
}

func (o *options) teardown(_ *cobra.Command, _ []string) {
	if o.log != nil {
		_ = o.log.Sync()
	}
}

// NewRootCommand creates the uptimealert command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:               "uptimealert",
		Short:             "Probe HTTP endpoints, record results and dispatch alerts.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: o.setup,
		PersistentPostRun: o.teardown,
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "config.yaml", "Path to the YAML config file.")
	cmd.PersistentFlags().StringVar(&o.db, "db", "", "SQLite path or postgres:// URL; overrides the config.")
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "Enable debug logging.")

	cmd.AddCommand(
		newInitCommand(),
		newDaemonCommand(o),
		newCheckCommand(o),
		newCheckURLCommand(o),
		newRotateCommand(o),
		newDispatchCommand(o),
		newMonitorCommand(o),
	)
	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
